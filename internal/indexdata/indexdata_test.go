package indexdata

import (
	"testing"

	"github.com/mimecast/logdcore/internal/encoding"
	"github.com/mimecast/logdcore/internal/lineindex"
)

func TestAddAllAccumulates(t *testing.T) {
	d := New()
	pos1 := lineindex.New()
	pos1.Append(10)
	pos1.Append(20)

	d.Lock(func(m Mutator) {
		m.AddAll([]byte("0123456789\n0123456789\n"), 10, pos1, encoding.UTF8)
	})

	d.Read(func(r Snapshot) {
		if r.NbLines() != 2 {
			t.Fatalf("expected 2 lines, got %d", r.NbLines())
		}
		if r.IndexedSize() != 22 {
			t.Errorf("expected indexed size 22, got %d", r.IndexedSize())
		}
		if r.MaxLength() != 10 {
			t.Errorf("expected maxLength 10, got %d", r.MaxLength())
		}
		if r.DetectedEncoding() != encoding.UTF8 {
			t.Errorf("expected UTF-8 guess, got %v", r.DetectedEncoding())
		}
	})
}

func TestEncodingGuessNotRegressed(t *testing.T) {
	d := New()
	pos := lineindex.New()
	pos.Append(5)

	d.Lock(func(m Mutator) {
		m.AddAll([]byte("aaaaa"), 5, pos, encoding.UTF16LE)
	})
	d.Lock(func(m Mutator) {
		// A later AddAll call passing a different guess must not override
		// the first one (spec.md §3: "never regressed during an
		// incremental operation").
		m.AddAll([]byte(""), 0, lineindex.New(), encoding.UTF8)
	})
	d.Read(func(r Snapshot) {
		if r.DetectedEncoding() != encoding.UTF16LE {
			t.Errorf("expected first guess UTF16LE to stick, got %v", r.DetectedEncoding())
		}
	})
}

func TestForcedEncodingTakesPrecedence(t *testing.T) {
	d := New()
	d.Lock(func(m Mutator) {
		m.SetEncodingGuess(encoding.UTF8)
		m.ForceEncoding(encoding.Windows1251)
	})
	d.Read(func(r Snapshot) {
		if r.DetectedEncoding() != encoding.Windows1251 {
			t.Errorf("expected forced encoding to win, got %v", r.DetectedEncoding())
		}
	})
}

func TestClearResetsButKeepsForcedEncoding(t *testing.T) {
	d := New()
	pos := lineindex.New()
	pos.Append(5)
	d.Lock(func(m Mutator) {
		m.ForceEncoding(encoding.UTF16BE)
		m.AddAll([]byte("aaaaa"), 5, pos, encoding.UTF8)
	})
	d.Lock(func(m Mutator) {
		m.Clear()
	})
	d.Read(func(r Snapshot) {
		if r.NbLines() != 0 {
			t.Errorf("expected 0 lines after clear, got %d", r.NbLines())
		}
		if r.IndexedSize() != 0 {
			t.Errorf("expected 0 indexed size after clear, got %d", r.IndexedSize())
		}
		if r.DetectedEncoding() != encoding.UTF16BE {
			t.Errorf("expected forced encoding to survive Clear, got %v", r.DetectedEncoding())
		}
	})
}

func TestHashChangesWithContent(t *testing.T) {
	d := New()
	pos := lineindex.New()
	pos.Append(5)
	d.Lock(func(m Mutator) {
		m.AddAll([]byte("aaaaa"), 5, pos, encoding.UTF8)
	})
	var h1 Hash
	d.Read(func(r Snapshot) { h1 = r.Hash() })

	pos2 := lineindex.New()
	pos2.Append(10)
	d.Lock(func(m Mutator) {
		m.AddAll([]byte("bbbbb"), 5, pos2, encoding.UTF8)
	})
	var h2 Hash
	d.Read(func(r Snapshot) { h2 = r.Hash() })

	if h1.Digest == h2.Digest {
		t.Error("expected digest to change after more content folded in")
	}
	if h2.SizeHashed != 10 {
		t.Errorf("expected sizeHashed 10, got %d", h2.SizeHashed)
	}
}
