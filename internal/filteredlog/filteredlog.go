// Package filteredlog implements C10, FilteredLogData: a composite view
// over a LogData that merges regex matches with user marks under a
// visibility mode (spec.md §4.10).
package filteredlog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mimecast/logdcore/internal/config"
	"github.com/mimecast/logdcore/internal/encoding"
	"github.com/mimecast/logdcore/internal/logdata"
	"github.com/mimecast/logdcore/internal/logging"
	"github.com/mimecast/logdcore/internal/marks"
	"github.com/mimecast/logdcore/internal/pattern"
	"github.com/mimecast/logdcore/internal/search"
	"github.com/mimecast/logdcore/internal/searchcache"
	"github.com/mimecast/logdcore/internal/xerrors"
)

// Visibility selects which lines a FilteredLogData exposes.
type Visibility int

const (
	MatchesOnly Visibility = iota
	MarksOnly
	MarksAndMatches
)

// LineType tags a filtered line as coming from a search match or a mark.
// A line that is both is always tagged Mark (spec.md §4.10).
type LineType int

const (
	Match LineType = iota
	Mark
)

type combinedItem struct {
	line uint64
	typ  LineType
}

// FilteredLogData is the composite view described above. Its parent
// LogData is a non-owning, weak collaborator per spec.md §3 "Ownership":
// a FilteredLogData must not outlive it, but does not manage its
// lifecycle.
type FilteredLogData struct {
	parent logdata.QueryableLineSource
	engine *search.Engine
	cache  *searchcache.Cache
	cfg    *config.Config
	log    *logging.Logger

	mu          sync.Mutex
	pat         *pattern.Pattern
	patternStr  string
	flags       pattern.Flags
	startLine   int
	endLine     int
	data        *search.SearchData
	marks       *marks.Marks
	marksMax    int
	visibility  Visibility
	cancelled   *atomic.Bool
	wg          sync.WaitGroup
	dirty       bool
	combined    []combinedItem

	subMu              sync.Mutex
	onSearchProgressed []func(nbMatches, percent int)
	onSearchFinished   []func()
}

// New returns a FilteredLogData over parent.
func New(parent logdata.QueryableLineSource, cfg *config.Config, log *logging.Logger, cache *searchcache.Cache) *FilteredLogData {
	if log == nil {
		log = logging.Default
	}
	return &FilteredLogData{
		parent: parent,
		engine: search.New(cfg, log),
		cache:  cache,
		cfg:    cfg,
		log:    log,
		data:   search.NewSearchData(),
		marks:  marks.New(),
		dirty:  true,
	}
}

// OnSearchProgressed subscribes to searchProgressed events.
func (f *FilteredLogData) OnSearchProgressed(fn func(nbMatches, percent int)) {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	f.onSearchProgressed = append(f.onSearchProgressed, fn)
}

// OnSearchFinished subscribes to searchFinished events.
func (f *FilteredLogData) OnSearchFinished(fn func()) {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	f.onSearchFinished = append(f.onSearchFinished, fn)
}

func (f *FilteredLogData) fireProgressed(nbMatches, pct int) {
	f.subMu.Lock()
	subs := append([]func(int, int){}, f.onSearchProgressed...)
	f.subMu.Unlock()
	for _, fn := range subs {
		fn(nbMatches, pct)
	}
}

func (f *FilteredLogData) fireFinished() {
	f.subMu.Lock()
	subs := append([]func(){}, f.onSearchFinished...)
	f.subMu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

func cacheKey(patternStr string, flags pattern.Flags, startLine, endLine int) searchcache.Key {
	tag := 0
	if flags.CaseSensitive {
		tag |= 1
	}
	if flags.Inverse {
		tag |= 2
	}
	if flags.Boolean {
		tag |= 4
	}
	if flags.PlainText {
		tag |= 8
	}
	return searchcache.Key{
		Pattern:   fmt.Sprintf("%d:%s", tag, patternStr),
		StartLine: startLine,
		EndLine:   endLine,
	}
}

// RunSearch compiles pattern and starts (or restores from cache) a full
// search over [startLine, endLine). Guarantees at most one live search
// per FilteredLogData. A compile failure is returned synchronously and no
// progress events are emitted, per spec.md §7 "InvalidRegex".
func (f *FilteredLogData) RunSearch(patternStr string, flags pattern.Flags, startLine, endLine int) error {
	pat, err := pattern.Compile(patternStr, flags)
	if err != nil {
		return xerrors.Wrap(err, "compile search pattern")
	}

	f.InterruptSearch()
	f.wg.Wait()

	f.mu.Lock()
	f.pat = pat
	f.patternStr = patternStr
	f.flags = flags
	f.startLine = startLine
	f.endLine = endLine
	f.mu.Unlock()

	key := cacheKey(patternStr, flags, startLine, endLine)
	if f.cache != nil {
		if bm, maxLength, ok := f.cache.Get(key); ok {
			f.data.InstallBitmap(bm, maxLength, endLine)
			f.markDirty()
			nbMatches := f.data.NbMatches()
			f.fireProgressed(nbMatches, 100)
			f.fireFinished()
			return nil
		}
	}

	cancelled := &atomic.Bool{}
	f.mu.Lock()
	f.cancelled = cancelled
	f.mu.Unlock()

	f.wg.Add(1)
	go f.runFull(cancelled, key)
	return nil
}

func (f *FilteredLogData) matcherFactory() search.MatcherFactory {
	f.mu.Lock()
	pat := f.pat
	f.mu.Unlock()
	return func() *pattern.Matcher { return pat.NewMatcher() }
}

func (f *FilteredLogData) runFull(cancelled *atomic.Bool, key searchcache.Key) {
	defer f.wg.Done()
	f.mu.Lock()
	startLine, endLine := f.startLine, f.endLine
	f.mu.Unlock()

	status := f.engine.StartFull(context.Background(), f.parent, f.matcherFactory(), startLine, endLine, f.data, cancelled, f.fireProgressed)
	f.markDirty()
	if status == search.Successful && f.cache != nil {
		f.cache.Put(key, f.data.Matches(), f.data.MaxLength())
	}
	f.fireFinished()
}

// UpdateSearch resumes the current search up to newEndLine, using the
// SearchEngine's incremental resume semantics (spec.md §4.9 "startUpdate").
func (f *FilteredLogData) UpdateSearch(newEndLine int) {
	f.InterruptSearch()
	f.wg.Wait()

	f.mu.Lock()
	f.endLine = newEndLine
	startLine := f.startLine
	resumeFrom := f.data.NbLinesProcessed()
	f.mu.Unlock()

	cancelled := &atomic.Bool{}
	f.mu.Lock()
	f.cancelled = cancelled
	f.mu.Unlock()

	f.mu.Lock()
	patternStr, flags := f.patternStr, f.flags
	f.mu.Unlock()
	key := cacheKey(patternStr, flags, startLine, newEndLine)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		status := f.engine.StartUpdate(context.Background(), f.parent, f.matcherFactory(), startLine, newEndLine, resumeFrom, f.data, cancelled, f.fireProgressed)
		f.markDirty()
		if status == search.Successful && f.cache != nil {
			f.cache.Put(key, f.data.Matches(), f.data.MaxLength())
		}
		f.fireFinished()
	}()
}

// InterruptSearch sets the cancellation flag of the active search, if any.
func (f *FilteredLogData) InterruptSearch() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelled != nil {
		f.cancelled.Store(true)
	}
}

// ClearSearch interrupts any active search and resets the aggregate.
func (f *FilteredLogData) ClearSearch() {
	f.InterruptSearch()
	f.wg.Wait()
	f.data.Clear()
	f.markDirty()
}

// --- marks ---

// AddMark marks line, optionally with an identifying character.
func (f *FilteredLogData) AddMark(line uint64, char rune) {
	f.mu.Lock()
	f.marks.Add(line, char)
	if l := f.parent.LineLength(int(line)); l > f.marksMax {
		f.marksMax = l
	}
	f.mu.Unlock()
	f.markDirty()
}

// DeleteMark unmarks line. If the removed line carried the current max
// length, the max is recomputed over the remaining marks.
func (f *FilteredLogData) DeleteMark(line uint64) {
	f.mu.Lock()
	wasMax := f.parent.LineLength(int(line)) == f.marksMax
	f.marks.Remove(line)
	if wasMax {
		f.recomputeMarksMaxLocked()
	}
	f.mu.Unlock()
	f.markDirty()
}

// DeleteMarkByChar removes the mark carrying char, if any.
func (f *FilteredLogData) DeleteMarkByChar(char rune) {
	f.mu.Lock()
	f.marks.RemoveByChar(char)
	f.recomputeMarksMaxLocked()
	f.mu.Unlock()
	f.markDirty()
}

// ClearMarks removes all marks.
func (f *FilteredLogData) ClearMarks() {
	f.mu.Lock()
	f.marks.Clear()
	f.marksMax = 0
	f.mu.Unlock()
	f.markDirty()
}

// GetMarks returns all marked lines in ascending order.
func (f *FilteredLogData) GetMarks() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marks.Lines()
}

func (f *FilteredLogData) recomputeMarksMaxLocked() {
	max := 0
	for _, line := range f.marks.Lines() {
		if l := f.parent.LineLength(int(line)); l > max {
			max = l
		}
	}
	f.marksMax = max
}

// SetVisibility changes which lines are exposed, invalidating the
// combined-items cache.
func (f *FilteredLogData) SetVisibility(v Visibility) {
	f.mu.Lock()
	f.visibility = v
	f.mu.Unlock()
	f.markDirty()
}

func (f *FilteredLogData) markDirty() {
	f.mu.Lock()
	f.dirty = true
	f.mu.Unlock()
}

// rebuildCombinedLocked merges matches and marks into one ascending
// sequence with per-item type tags; a line present in both is tagged
// Mark and appears once. Caller must hold f.mu.
func (f *FilteredLogData) rebuildCombinedLocked() {
	matchLines := f.data.Matches().ToSlice()
	markLines := f.marks.Lines()

	combined := make([]combinedItem, 0, len(matchLines)+len(markLines))
	i, j := 0, 0
	for i < len(matchLines) || j < len(markLines) {
		switch {
		case j >= len(markLines) || (i < len(matchLines) && matchLines[i] < markLines[j]):
			combined = append(combined, combinedItem{line: matchLines[i], typ: Match})
			i++
		case i >= len(matchLines) || markLines[j] < matchLines[i]:
			combined = append(combined, combinedItem{line: markLines[j], typ: Mark})
			j++
		default:
			combined = append(combined, combinedItem{line: matchLines[i], typ: Mark})
			i++
			j++
		}
	}
	f.combined = combined
	f.dirty = false
}

// --- QueryableLineSource ---

// NbLine returns the number of lines visible under the current
// visibility mode.
func (f *FilteredLogData) NbLine() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.visibility {
	case MarksOnly:
		return f.marks.Size()
	case MarksAndMatches:
		if f.dirty {
			f.rebuildCombinedLocked()
		}
		return len(f.combined)
	default:
		return int(f.data.Matches().Cardinality())
	}
}

// GetMatchingLineNumber translates a filtered index to its absolute line
// number under the current visibility mode.
func (f *FilteredLogData) GetMatchingLineNumber(filteredIndex int) (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lineAtLocked(filteredIndex)
}

func (f *FilteredLogData) lineAtLocked(index int) (uint64, bool) {
	if index < 0 {
		return 0, false
	}
	switch f.visibility {
	case MarksOnly:
		if index >= f.marks.Size() {
			return 0, false
		}
		return f.marks.GetMarkedLineByIndex(index), true
	case MarksAndMatches:
		if f.dirty {
			f.rebuildCombinedLocked()
		}
		if index >= len(f.combined) {
			return 0, false
		}
		return f.combined[index].line, true
	default:
		var found uint64
		ok := false
		count := 0
		f.data.Matches().ForEach(func(line uint64) bool {
			if count == index {
				found = line
				ok = true
				return false
			}
			count++
			return true
		})
		return found, ok
	}
}

// GetLineIndexNumber translates an absolute line number to its filtered
// index under the current visibility mode, the inverse of
// GetMatchingLineNumber (spec.md §8 "Filtered-view coordinates").
func (f *FilteredLogData) GetLineIndexNumber(absoluteLine uint64) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.visibility {
	case MarksOnly:
		lines := f.marks.Lines()
		for i, l := range lines {
			if l == absoluteLine {
				return i, true
			}
		}
		return 0, false
	case MarksAndMatches:
		if f.dirty {
			f.rebuildCombinedLocked()
		}
		for i, item := range f.combined {
			if item.line == absoluteLine {
				return i, true
			}
		}
		return 0, false
	default:
		if !f.data.Matches().Contains(absoluteLine) {
			return 0, false
		}
		index := -1
		count := 0
		f.data.Matches().ForEach(func(line uint64) bool {
			if line == absoluteLine {
				index = count
				return false
			}
			count++
			return true
		})
		if index < 0 {
			return 0, false
		}
		return index, true
	}
}

// FilteredLineTypeByIndex reports whether filtered line i is a Match or a
// Mark.
func (f *FilteredLogData) FilteredLineTypeByIndex(i int) LineType {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.visibility {
	case MarksOnly:
		return Mark
	case MatchesOnly:
		return Match
	default:
		if f.dirty {
			f.rebuildCombinedLocked()
		}
		if i < 0 || i >= len(f.combined) {
			return Match
		}
		return f.combined[i].typ
	}
}

// LineString returns filtered line i decoded through the parent's
// display codec.
func (f *FilteredLogData) LineString(i int) string {
	line, ok := f.GetMatchingLineNumber(i)
	if !ok {
		return ""
	}
	return f.parent.LineString(int(line))
}

// ExpandedLineString returns filtered line i with tabs expanded.
func (f *FilteredLogData) ExpandedLineString(i int) string {
	line, ok := f.GetMatchingLineNumber(i)
	if !ok {
		return ""
	}
	return f.parent.ExpandedLineString(int(line))
}

// Lines returns count decoded filtered lines starting at first.
func (f *FilteredLogData) Lines(first, count int) []string {
	out := make([]string, 0, count)
	for i := first; i < first+count; i++ {
		out = append(out, f.LineString(i))
	}
	return out
}

// ExpandedLines returns count tab-expanded filtered lines starting at first.
func (f *FilteredLogData) ExpandedLines(first, count int) []string {
	out := make([]string, 0, count)
	for i := first; i < first+count; i++ {
		out = append(out, f.ExpandedLineString(i))
	}
	return out
}

// MaxLength returns the max display width under the current visibility
// mode (spec.md §4.10).
func (f *FilteredLogData) MaxLength() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.visibility {
	case MarksOnly:
		return f.marksMax
	case MarksAndMatches:
		if f.data.MaxLength() > f.marksMax {
			return f.data.MaxLength()
		}
		return f.marksMax
	default:
		return f.data.MaxLength()
	}
}

// LineLength returns the tab-expanded display length of filtered line i.
func (f *FilteredLogData) LineLength(i int) int {
	line, ok := f.GetMatchingLineNumber(i)
	if !ok {
		return 0
	}
	return f.parent.LineLength(int(line))
}

// DisplayEncoding delegates to the parent LogData.
func (f *FilteredLogData) DisplayEncoding() encoding.Codec {
	return f.parent.DisplayEncoding()
}

// GetNbMatches returns the cardinality of the current match set,
// independent of visibility mode.
func (f *FilteredLogData) GetNbMatches() int {
	return f.data.NbMatches()
}

// Wait blocks until any active search worker has drained.
func (f *FilteredLogData) Wait() {
	f.wg.Wait()
}
