// Package bitmap implements C7, SearchResultBitmap: an ordered, sparse set
// of matching line numbers, backed by a compressed roaring bitmap (spec.md
// §4.7). Line numbers are represented as uint32 internally — sufficient
// for any file with fewer than 4 billion lines, which covers every
// realistic log file this core is built to index.
package bitmap

import (
	"bytes"
	"io"

	"github.com/RoaringBitmap/roaring"
)

// Bitmap is an ordered set of uint64 line numbers.
type Bitmap struct {
	rb *roaring.Bitmap
}

// New returns an empty Bitmap.
func New() *Bitmap {
	return &Bitmap{rb: roaring.NewBitmap()}
}

// Add inserts line into the set.
func (b *Bitmap) Add(line uint64) {
	b.rb.Add(uint32(line))
}

// Remove deletes line from the set, if present.
func (b *Bitmap) Remove(line uint64) {
	b.rb.Remove(uint32(line))
}

// Contains reports whether line is a member, via the bitmap's own
// logarithmic-time lookup (spec.md §4.7 "membership-by-binary-search").
func (b *Bitmap) Contains(line uint64) bool {
	return b.rb.Contains(uint32(line))
}

// Cardinality returns the number of members.
func (b *Bitmap) Cardinality() uint64 {
	return b.rb.GetCardinality()
}

// OrWith unions other into the receiver in place.
func (b *Bitmap) OrWith(other *Bitmap) {
	b.rb.Or(other.rb)
}

// ForEach calls fn for every member in ascending order. Iteration stops
// early if fn returns false.
func (b *Bitmap) ForEach(fn func(line uint64) bool) {
	it := b.rb.Iterator()
	for it.HasNext() {
		if !fn(uint64(it.Next())) {
			return
		}
	}
}

// ToSlice materializes every member in ascending order.
func (b *Bitmap) ToSlice() []uint64 {
	arr := b.rb.ToArray()
	out := make([]uint64, len(arr))
	for i, v := range arr {
		out[i] = uint64(v)
	}
	return out
}

// Clone returns an independent copy.
func (b *Bitmap) Clone() *Bitmap {
	return &Bitmap{rb: b.rb.Clone()}
}

// Clear empties the set in place.
func (b *Bitmap) Clear() {
	b.rb.Clear()
}

// WriteTo serializes the bitmap in roaring's compact wire format, used by
// internal/searchcache to store compressed cache entries.
func (b *Bitmap) WriteTo(w io.Writer) (int64, error) {
	return b.rb.WriteTo(w)
}

// ReadFrom deserializes a bitmap previously produced by WriteTo.
func ReadFrom(r io.Reader) (*Bitmap, error) {
	rb := roaring.NewBitmap()
	if _, err := rb.ReadFrom(r); err != nil {
		return nil, err
	}
	return &Bitmap{rb: rb}, nil
}

// Bytes serializes the bitmap to a byte slice.
func (b *Bitmap) Bytes() []byte {
	var buf bytes.Buffer
	b.rb.WriteTo(&buf)
	return buf.Bytes()
}

// FromBytes deserializes a bitmap from Bytes' output.
func FromBytes(data []byte) (*Bitmap, error) {
	return ReadFrom(bytes.NewReader(data))
}
