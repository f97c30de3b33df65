package filteredlog

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mimecast/logdcore/internal/config"
	"github.com/mimecast/logdcore/internal/logdata"
	"github.com/mimecast/logdcore/internal/pattern"
	"github.com/mimecast/logdcore/internal/searchcache"
)

func template(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += fmt.Sprintf("LOGDATA \t is a part of a log viewer, we are going to test it thoroughly, this is line %06d\n", i)
	}
	return s
}

func attachedLogData(t *testing.T, lines int) *logdata.LogData {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	if err := os.WriteFile(path, []byte(template(lines)), 0o644); err != nil {
		t.Fatal(err)
	}
	ld := logdata.New(config.Default(), nil)
	done := make(chan struct{}, 1)
	ld.OnLoadingFinished(func(logdata.Status) { done <- struct{}{} })
	ld.Attach(path)
	<-done
	return ld
}

func runSearchAndWait(t *testing.T, f *FilteredLogData, pat string, flags pattern.Flags, end int) {
	t.Helper()
	done := make(chan struct{}, 1)
	f.OnSearchFinished(func() { done <- struct{}{} })
	if err := f.RunSearch(pat, flags, 0, end); err != nil {
		t.Fatalf("unexpected RunSearch error: %v", err)
	}
	<-done
}

func TestSimpleSearchMatchesEverySmallLine(t *testing.T) {
	ld := attachedLogData(t, 100)
	f := New(ld, config.Default(), nil, nil)

	runSearchAndWait(t, f, "this is line", pattern.Flags{}, ld.NbLine())
	if f.NbLine() != 100 {
		t.Fatalf("expected 100 filtered lines, got %d", f.NbLine())
	}

	runSearchAndWait(t, f, "10", pattern.Flags{}, ld.NbLine())
	if f.NbLine() != 1 {
		t.Fatalf("expected 1 filtered line, got %d", f.NbLine())
	}
}

func TestMarksAndMatchesMerge(t *testing.T) {
	ld := attachedLogData(t, 100)
	f := New(ld, config.Default(), nil, nil)

	runSearchAndWait(t, f, "0000.4", pattern.Flags{}, ld.NbLine())

	f.AddMark(10, 0)
	f.AddMark(25, 0)
	f.AddMark(44, 0)
	f.SetVisibility(MarksAndMatches)

	want := []uint64{4, 10, 14, 24, 25, 34, 44, 54, 64, 74, 84, 94}
	if f.NbLine() != len(want) {
		t.Fatalf("expected %d filtered lines, got %d", len(want), f.NbLine())
	}
	markSet := map[uint64]bool{10: true, 25: true, 44: true}
	for i, w := range want {
		line, ok := f.GetMatchingLineNumber(i)
		if !ok || line != w {
			t.Fatalf("index %d: expected line %d, got %d (ok=%v)", i, w, line, ok)
		}
		typ := f.FilteredLineTypeByIndex(i)
		if markSet[w] && typ != Mark {
			t.Errorf("expected line %d tagged Mark, got %v", w, typ)
		}
		if !markSet[w] && typ != Match {
			t.Errorf("expected line %d tagged Match, got %v", w, typ)
		}
	}
}

func TestFilteredViewCoordinatesInvariant(t *testing.T) {
	ld := attachedLogData(t, 100)
	f := New(ld, config.Default(), nil, nil)
	runSearchAndWait(t, f, "0000.4", pattern.Flags{}, ld.NbLine())

	for i := 0; i < f.NbLine(); i++ {
		line, ok := f.GetMatchingLineNumber(i)
		if !ok {
			t.Fatalf("index %d: expected a line", i)
		}
		gotIndex, ok := f.GetLineIndexNumber(line)
		if !ok || gotIndex != i {
			t.Errorf("index %d: round trip via line %d gave index %d (ok=%v)", i, line, gotIndex, ok)
		}
	}
}

func TestInvalidBooleanPatternReturnsErrorSynchronously(t *testing.T) {
	ld := attachedLogData(t, 10)
	f := New(ld, config.Default(), nil, nil)

	progressed := false
	f.OnSearchProgressed(func(int, int) { progressed = true })
	err := f.RunSearch(`"a" | "b`, pattern.Flags{Boolean: true}, 0, ld.NbLine())
	if err == nil {
		t.Fatal("expected InvalidRegex error for unbalanced quote")
	}
	if progressed {
		t.Error("expected no progress events on a synchronous compile failure")
	}
}

func TestMarksOnlyVisibility(t *testing.T) {
	ld := attachedLogData(t, 50)
	f := New(ld, config.Default(), nil, nil)
	f.AddMark(3, 0)
	f.AddMark(8, 0)
	f.SetVisibility(MarksOnly)

	if f.NbLine() != 2 {
		t.Fatalf("expected 2 marked lines, got %d", f.NbLine())
	}
	if line, ok := f.GetMatchingLineNumber(1); !ok || line != 8 {
		t.Errorf("expected second marked line to be 8, got %d (ok=%v)", line, ok)
	}
}

// TestSearchResultCacheHit mirrors spec.md §8 scenario 6: a second
// identical search restores the cached result without running a worker.
func TestSearchResultCacheHit(t *testing.T) {
	ld := attachedLogData(t, 200)
	cache, err := searchcache.New(8, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := New(ld, config.Default(), nil, cache)

	runSearchAndWait(t, f, "abc", pattern.Flags{}, ld.NbLine())
	firstCount := f.GetNbMatches()

	f.ClearSearch()
	if f.GetNbMatches() != 0 {
		t.Fatalf("expected 0 matches after ClearSearch, got %d", f.GetNbMatches())
	}

	workerStarted := false
	f.OnSearchProgressed(func(nbMatches, pct int) {
		if pct != 100 {
			workerStarted = true
		}
	})
	done := make(chan struct{}, 1)
	f.OnSearchFinished(func() { done <- struct{}{} })
	if err := f.RunSearch("abc", pattern.Flags{}, 0, ld.NbLine()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-done

	if workerStarted {
		t.Error("expected cache hit to avoid starting a worker")
	}
	if f.GetNbMatches() != firstCount {
		t.Errorf("expected cached match count %d, got %d", firstCount, f.GetNbMatches())
	}
}

func TestDeleteMarkRecomputesMaxLength(t *testing.T) {
	ld := attachedLogData(t, 10)
	f := New(ld, config.Default(), nil, nil)
	f.AddMark(0, 0)
	f.AddMark(1, 0)
	f.SetVisibility(MarksOnly)
	before := f.MaxLength()
	if before <= 0 {
		t.Fatal("expected a positive max length among marked lines")
	}
	f.DeleteMark(0)
	f.DeleteMark(1)
	if f.MaxLength() != 0 {
		t.Errorf("expected max length 0 once all marks removed, got %d", f.MaxLength())
	}
}
