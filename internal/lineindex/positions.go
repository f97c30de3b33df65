// Package lineindex implements the append-only line position array
// described in spec.md §3/§4.1 (C1 LinePositionArray): for each indexed
// line it stores the byte offset of the first byte after that line's
// terminator, plus the "fake final LF" bookkeeping needed when a file
// doesn't end in a terminator.
package lineindex

// Positions is an append-only, strictly increasing sequence of
// post-terminator byte offsets. It is not safe for concurrent use; callers
// serialize access the way indexdata.Data does for its embedded Positions.
type Positions struct {
	offsets     []uint64
	fakeFinalLF bool
}

// New returns an empty Positions array.
func New() *Positions {
	return &Positions{}
}

// Append adds one line-terminator offset. If a fake final LF is currently
// present, it is dropped before the new offset is appended, per spec.md
// §4.1: "appending a non-empty batch must drop a pre-existing fake entry
// before merging".
func (p *Positions) Append(offset uint64) {
	if p.fakeFinalLF && len(p.offsets) > 0 {
		p.offsets = p.offsets[:len(p.offsets)-1]
		p.fakeFinalLF = false
	}
	p.offsets = append(p.offsets, offset)
}

// AppendBatch concatenates other's offsets onto the receiver, honoring the
// same fake-LF-drop rule, then adopts other's fake-final-LF flag.
func (p *Positions) AppendBatch(other *Positions) {
	if len(other.offsets) == 0 {
		return
	}
	if p.fakeFinalLF && len(p.offsets) > 0 {
		p.offsets = p.offsets[:len(p.offsets)-1]
		p.fakeFinalLF = false
	}
	p.offsets = append(p.offsets, other.offsets...)
	p.fakeFinalLF = other.fakeFinalLF
}

// SetFakeFinalLF marks (or unmarks) the last entry as synthetic.
func (p *Positions) SetFakeFinalLF(v bool) {
	p.fakeFinalLF = v
}

// FakeFinalLF reports whether the last entry is synthetic.
func (p *Positions) FakeFinalLF() bool {
	return p.fakeFinalLF
}

// At returns the post-terminator offset for line i.
func (p *Positions) At(i int) uint64 {
	return p.offsets[i]
}

// Size returns the number of indexed lines.
func (p *Positions) Size() int {
	return len(p.offsets)
}

// StartOf returns the byte offset where line i begins: offsets[i-1], or 0
// for i==0.
func (p *Positions) StartOf(i int) uint64 {
	if i == 0 {
		return 0
	}
	return p.offsets[i-1]
}

// Clear resets the array to empty.
func (p *Positions) Clear() {
	p.offsets = p.offsets[:0]
	p.fakeFinalLF = false
}
