package searchcache

import (
	"testing"

	"github.com/mimecast/logdcore/internal/bitmap"
)

func sampleBitmap(lines ...uint64) *bitmap.Bitmap {
	b := bitmap.New()
	for _, l := range lines {
		b.Add(l)
	}
	return b
}

func TestPutGetRoundTrip(t *testing.T) {
	c, err := New(8, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	key := Key{Pattern: "abc", StartLine: 0, EndLine: 100}
	c.Put(key, sampleBitmap(1, 5, 99), 42)

	bm, maxLength, ok := c.Get(key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if maxLength != 42 {
		t.Errorf("expected maxLength 42, got %d", maxLength)
	}
	if bm.Cardinality() != 3 || !bm.Contains(99) {
		t.Error("expected restored bitmap to match stored one")
	}
}

func TestGetMissReturnsFalse(t *testing.T) {
	c, _ := New(8, 0)
	_, _, ok := c.Get(Key{Pattern: "nope", StartLine: 0, EndLine: 10})
	if ok {
		t.Error("expected miss")
	}
}

func TestMatchingLineCapEvictsOldEntries(t *testing.T) {
	c, err := New(64, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.Put(Key{Pattern: "a", StartLine: 0, EndLine: 10}, sampleBitmap(1, 2, 3, 4, 5), 1)
	c.Put(Key{Pattern: "b", StartLine: 0, EndLine: 10}, sampleBitmap(6, 7, 8, 9, 10), 1)
	if _, _, ok := c.Get(Key{Pattern: "a", StartLine: 0, EndLine: 10}); !ok {
		t.Fatal("expected 'a' cached before cap exceeded")
	}

	c.Put(Key{Pattern: "c", StartLine: 0, EndLine: 10}, sampleBitmap(11, 12, 13, 14, 15), 1)
	if _, _, ok := c.Get(Key{Pattern: "a", StartLine: 0, EndLine: 10}); ok {
		t.Error("expected 'a' evicted once total matching lines exceeded the cap")
	}
	if _, _, ok := c.Get(Key{Pattern: "c", StartLine: 0, EndLine: 10}); !ok {
		t.Error("expected newly inserted entry to remain")
	}
}

func TestRemoveAndPurge(t *testing.T) {
	c, _ := New(8, 0)
	key := Key{Pattern: "x", StartLine: 0, EndLine: 5}
	c.Put(key, sampleBitmap(1), 1)
	c.Remove(key)
	if _, _, ok := c.Get(key); ok {
		t.Error("expected removed entry to miss")
	}

	c.Put(key, sampleBitmap(1), 1)
	c.Purge()
	if _, _, ok := c.Get(key); ok {
		t.Error("expected purge to clear all entries")
	}
}
