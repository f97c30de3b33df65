// Package indexdata implements C2, IndexingData: the thread-safe aggregate
// that IndexingEngine (internal/indexer) writes to and LogData reads from.
// It exposes exactly two entry points, matching spec.md §4.2: a shared
// "read" accessor usable by many concurrent goroutines, and an exclusive
// "mutate" accessor usable only by the active indexing worker.
package indexdata

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/mimecast/logdcore/internal/encoding"
	"github.com/mimecast/logdcore/internal/lineindex"
)

// Hash is the (sizeHashed, contentDigest) pair used by IndexingEngine's
// ChangeCheck operation (spec.md §4.4).
type Hash struct {
	SizeHashed uint64
	Digest     uint64
}

// Data is the guarded aggregate described in spec.md §3 IndexingData.
type Data struct {
	mu sync.RWMutex

	indexedSize    uint64
	maxLength      int
	positions      *lineindex.Positions
	encodingGuess  encoding.Codec
	guessSet       bool
	encodingForced encoding.Codec
	forcedSet      bool
	hash           Hash
	digest         *xxhash.Digest // incremental content hash, folded block by block
}

// New returns an empty, just-constructed Data.
func New() *Data {
	return &Data{positions: lineindex.New(), digest: xxhash.New()}
}

// --- read accessor: many concurrent callers ---

// Read runs fn with a shared lock held, for atomic multi-field reads.
func (d *Data) Read(fn func(r Snapshot)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn(Snapshot{d: d})
}

// Snapshot is the read-only view handed to Read's callback. It is only
// valid for the duration of that callback.
type Snapshot struct{ d *Data }

// NbLines returns the number of indexed lines.
func (s Snapshot) NbLines() int { return s.d.positions.Size() }

// IndexedSize returns the number of bytes successfully indexed so far.
func (s Snapshot) IndexedSize() uint64 { return s.d.indexedSize }

// MaxLength returns the maximum tab-expanded line length seen so far.
func (s Snapshot) MaxLength() int { return s.d.maxLength }

// LineStart returns the byte offset where line i begins.
func (s Snapshot) LineStart(i int) uint64 { return s.d.positions.StartOf(i) }

// LineEnd returns the byte offset one past line i's payload (i.e. where
// its terminator begins).
func (s Snapshot) LineEnd(i int, lfWidth int) uint64 {
	end := s.d.positions.At(i)
	if end < uint64(lfWidth) {
		return 0
	}
	return end - uint64(lfWidth)
}

// FakeFinalLF reports whether the last line lacks a real terminator.
func (s Snapshot) FakeFinalLF() bool { return s.d.positions.FakeFinalLF() }

// DetectedEncoding returns the forced encoding if set, else the guessed
// one, else UTF-8 (spec.md §3: "encodingForced ... takes precedence").
func (s Snapshot) DetectedEncoding() encoding.Codec {
	if s.d.forcedSet {
		return s.d.encodingForced
	}
	if s.d.guessSet {
		return s.d.encodingGuess
	}
	return encoding.UTF8
}

// Hash returns the current (sizeHashed, digest) pair.
func (s Snapshot) Hash() Hash { return s.d.hash }

// --- mutate accessor: exclusive, single active indexing worker ---

// Mutator is the exclusive handle returned by Lock; only it may call
// Clear/AddAll/ForceEncoding/SetEncodingGuess, matching spec.md §4.2's
// restriction.
type Mutator struct{ d *Data }

// Lock acquires exclusive access for the duration of fn.
func (d *Data) Lock(fn func(m Mutator)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(Mutator{d: d})
}

// Clear resets all fields; called at the start of a Full re-index.
func (m Mutator) Clear() {
	m.d.indexedSize = 0
	m.d.maxLength = 0
	m.d.positions.Clear()
	m.d.guessSet = false
	m.d.hash = Hash{}
	m.d.digest.Reset()
	// encodingForced is intentionally preserved across Clear: a forced
	// display codec survives a reload (spec.md §4.5 setDisplayEncoding).
}

// ForceEncoding sets a user override that takes precedence over any guess.
func (m Mutator) ForceEncoding(c encoding.Codec) {
	m.d.encodingForced = c
	m.d.forcedSet = true
}

// ClearForcedEncoding removes a previously forced encoding.
func (m Mutator) ClearForcedEncoding() {
	m.d.forcedSet = false
}

// SetEncodingGuess records the sniffed encoding if not already set; an
// incremental (Partial) operation must never regress an established guess
// (spec.md §3).
func (m Mutator) SetEncodingGuess(c encoding.Codec) {
	if !m.d.guessSet {
		m.d.encodingGuess = c
		m.d.guessSet = true
	}
}

// AddAll folds one parsed block into the aggregate: raises maxLength,
// appends positions, rolls the content hash forward, and records the
// encoding guess if not yet set. block is the raw bytes that were parsed
// to produce positions; it is hashed in full.
func (m Mutator) AddAll(block []byte, maxLenInBatch int, positions *lineindex.Positions, detectedEncoding encoding.Codec) {
	if maxLenInBatch > m.d.maxLength {
		m.d.maxLength = maxLenInBatch
	}
	m.d.positions.AppendBatch(positions)
	m.SetEncodingGuess(detectedEncoding)

	m.d.indexedSize += uint64(len(block))
	m.d.digest.Write(block)
	m.d.hash = Hash{SizeHashed: m.d.indexedSize, Digest: m.d.digest.Sum64()}
}

// SetIndexedSize records a byte count without folding any content into
// the hash.
func (m Mutator) SetIndexedSize(n uint64) {
	m.d.indexedSize = n
}
