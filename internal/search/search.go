// Package search implements C9, SearchEngine: a chunked, parallel scan of
// a line range exposed by a logdata.QueryableLineSource, aggregating
// matches into a SearchData (spec.md §4.9).
package search

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/mimecast/logdcore/internal/bitmap"
	"github.com/mimecast/logdcore/internal/config"
	"github.com/mimecast/logdcore/internal/logdata"
	"github.com/mimecast/logdcore/internal/logging"
	"github.com/mimecast/logdcore/internal/pattern"
)

// Status is the terminal outcome of a search scan.
type Status int

const (
	Successful Status = iota
	Interrupted
)

// SearchData is the accumulated result of a search: a growing set of
// matching lines plus bookkeeping needed to resume and to drain progress.
type SearchData struct {
	mu               sync.Mutex
	matches          *bitmap.Bitmap
	newMatches       *bitmap.Bitmap
	maxLength        int
	nbLinesProcessed int
	nbMatches        int
}

// NewSearchData returns an empty SearchData.
func NewSearchData() *SearchData {
	return &SearchData{matches: bitmap.New(), newMatches: bitmap.New()}
}

// Clear resets the aggregate, used at the start of a full search.
func (d *SearchData) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.matches.Clear()
	d.newMatches.Clear()
	d.maxLength = 0
	d.nbLinesProcessed = 0
	d.nbMatches = 0
}

func (d *SearchData) mergeChunk(cr chunkResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, line := range cr.matchingLines {
		d.matches.Add(uint64(line))
		d.newMatches.Add(uint64(line))
	}
	if cr.maxLineLen > d.maxLength {
		d.maxLength = cr.maxLineLen
	}
	if end := cr.chunkStart + cr.processedLines; end > d.nbLinesProcessed {
		d.nbLinesProcessed = end
	}
	d.nbMatches = int(d.matches.Cardinality())
}

// DeleteMatch removes any match recorded on line. Used by StartUpdate to
// discard a stale match on the line a resumed scan re-reads (spec.md §4.9
// "startUpdate"). StartUpdate calls it once, before the scan starts, so it
// never interleaves with mergeChunk's ordered inserts — the open question
// in spec.md §9 about out-of-order erase does not arise here.
func (d *SearchData) DeleteMatch(line int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.matches.Remove(uint64(line))
	d.newMatches.Remove(uint64(line))
	d.nbMatches = int(d.matches.Cardinality())
}

// Drain returns the matches produced since the last Drain, the current
// maxLength and nbLinesProcessed, and atomically clears newMatches.
func (d *SearchData) Drain() (newMatches []uint64, maxLength int, nbLinesProcessed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	newMatches = d.newMatches.ToSlice()
	maxLength = d.maxLength
	nbLinesProcessed = d.nbLinesProcessed
	d.newMatches.Clear()
	return
}

// NbMatches returns the cached cardinality of matches.
func (d *SearchData) NbMatches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nbMatches
}

// MaxLength returns the max display width among matched lines.
func (d *SearchData) MaxLength() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxLength
}

// NbLinesProcessed returns the highest line number known scanned.
func (d *SearchData) NbLinesProcessed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nbLinesProcessed
}

// Matches returns an independent copy of the accumulated match set.
func (d *SearchData) Matches() *bitmap.Bitmap {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.matches.Clone()
}

// InstallBitmap replaces the accumulated match set wholesale, used when a
// FilteredLogData restores a previous result from SearchResultsCache.
func (d *SearchData) InstallBitmap(bm *bitmap.Bitmap, maxLength, nbLinesProcessed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.matches = bm.Clone()
	d.newMatches = bitmap.New()
	d.maxLength = maxLength
	d.nbLinesProcessed = nbLinesProcessed
	d.nbMatches = int(d.matches.Cardinality())
}

// Engine runs chunked searches over a logdata.QueryableLineSource.
type Engine struct {
	cfg *config.Config
	log *logging.Logger
}

// New returns an Engine configured from cfg.
func New(cfg *config.Config, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.Default
	}
	return &Engine{cfg: cfg, log: log}
}

// MatcherFactory returns a fresh per-goroutine pattern.Matcher.
type MatcherFactory func() *pattern.Matcher

// Interrupt sets cancelled, observed at the next chunk boundary by both
// the dispatcher and the combiner.
func (e *Engine) Interrupt(cancelled *atomic.Bool) {
	cancelled.Store(true)
}

// StartFull clears data and scans [startLine, endLine) from the start.
func (e *Engine) StartFull(
	ctx context.Context,
	source logdata.QueryableLineSource,
	newMatcher MatcherFactory,
	startLine, endLine int,
	data *SearchData,
	cancelled *atomic.Bool,
	onProgress func(nbMatches, percent int),
) Status {
	data.Clear()
	return e.scan(ctx, source, newMatcher, startLine, endLine, data, cancelled, onProgress)
}

// StartUpdate resumes a previous search, re-scanning the last
// previously-seen line (spec.md §4.9 "startUpdate") to account for it
// possibly having been incomplete when first scanned.
func (e *Engine) StartUpdate(
	ctx context.Context,
	source logdata.QueryableLineSource,
	newMatcher MatcherFactory,
	startLine, endLine, resumeFrom int,
	data *SearchData,
	cancelled *atomic.Bool,
	onProgress func(nbMatches, percent int),
) Status {
	lastProcessed := data.NbLinesProcessed()
	resume := lastProcessed
	if resumeFrom > resume {
		resume = resumeFrom
	}
	resume--
	if resume < startLine {
		resume = startLine
	} else {
		data.DeleteMatch(resume)
	}
	return e.scan(ctx, source, newMatcher, resume, endLine, data, cancelled, onProgress)
}

type chunkJob struct {
	index int
	start int
	count int
}

type chunkResult struct {
	chunkStart     int
	matchingLines  []int
	processedLines int
	maxLineLen     int
}

func (e *Engine) scan(
	ctx context.Context,
	source logdata.QueryableLineSource,
	newMatcher MatcherFactory,
	startLine, endLine int,
	data *SearchData,
	cancelled *atomic.Bool,
	onProgress func(nbMatches, percent int),
) Status {
	totalLines := endLine - startLine
	if totalLines <= 0 {
		if onProgress != nil {
			onProgress(data.NbMatches(), 100)
		}
		return Successful
	}

	chunkSize := e.cfg.SearchChunkLines
	if chunkSize <= 0 {
		chunkSize = 5000
	}
	numChunks := (totalLines + chunkSize - 1) / chunkSize
	m := matcherThreads(e.cfg)
	prefetch := 3 * m

	jobs := make(chan chunkJob, prefetch)
	results := make([]chan chunkResult, numChunks)
	for i := range results {
		results[i] = make(chan chunkResult, 1)
	}

	cctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	var g errgroup.Group
	for w := 0; w < m; w++ {
		g.Go(func() error {
			matcher := newMatcher()
			for {
				select {
				case <-cctx.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					results[job.index] <- e.processChunk(source, matcher, job)
				}
			}
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for i := 0; i < numChunks; i++ {
			start := startLine + i*chunkSize
			count := chunkSize
			if start+count > endLine {
				count = endLine - start
			}
			if cancelled.Load() {
				return nil
			}
			select {
			case <-cctx.Done():
				return nil
			case jobs <- chunkJob{index: i, start: start, count: count}:
			}
		}
		return nil
	})

	status := Successful
	lastPct, lastNbMatches := -1, -1

combine:
	for i := 0; i < numChunks; i++ {
		if cancelled.Load() {
			status = Interrupted
			cancelFn()
			break combine
		}
		select {
		case <-cctx.Done():
			status = Interrupted
			break combine
		case cr := <-results[i]:
			data.mergeChunk(cr)
			nbMatches := data.NbMatches()
			pct := int(100 * int64(data.NbLinesProcessed()-startLine) / int64(totalLines))
			if pct != lastPct || nbMatches != lastNbMatches {
				lastPct, lastNbMatches = pct, nbMatches
				if onProgress != nil {
					onProgress(nbMatches, pct)
				}
			}
		}
	}

	g.Wait()

	if status == Successful && onProgress != nil {
		onProgress(data.NbMatches(), 100)
	}
	return status
}

func (e *Engine) processChunk(source logdata.QueryableLineSource, matcher *pattern.Matcher, job chunkJob) chunkResult {
	lines := source.Lines(job.start, job.count)
	cr := chunkResult{chunkStart: job.start, processedLines: len(lines)}
	for i, s := range lines {
		lineNo := job.start + i
		if matcher.HasMatch(s) {
			cr.matchingLines = append(cr.matchingLines, lineNo)
			if l := source.LineLength(lineNo); l > cr.maxLineLen {
				cr.maxLineLen = l
			}
		}
	}
	return cr
}

func matcherThreads(cfg *config.Config) int {
	if cfg == nil || !cfg.SearchParallel {
		return 1
	}
	if cfg.SearchMatcherThreads > 0 {
		return cfg.SearchMatcherThreads
	}
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}
