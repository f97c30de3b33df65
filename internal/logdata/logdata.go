// Package logdata implements C5, LogData: the public façade over a raw
// file. It owns an indexdata.Data, schedules indexing operations through a
// single-pending-operation queue, serves decoded line strings, and reacts
// to file-watcher notifications — per spec.md §4.5.
package logdata

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mimecast/logdcore/internal/config"
	"github.com/mimecast/logdcore/internal/encoding"
	"github.com/mimecast/logdcore/internal/indexdata"
	"github.com/mimecast/logdcore/internal/indexer"
	"github.com/mimecast/logdcore/internal/logging"
)

// Status mirrors indexer.Status — the loadingFinished status values.
type Status = indexer.Status

const (
	Successful  = indexer.Successful
	Interrupted = indexer.Interrupted
	NoMemory    = indexer.NoMemory
)

// FileChangeKind mirrors indexer.ChangeResult — the fileChanged kinds.
type FileChangeKind = indexer.ChangeResult

const (
	Unchanged FileChangeKind = indexer.Unchanged
	DataAdded FileChangeKind = indexer.DataAdded
	Truncated FileChangeKind = indexer.Truncated
)

// QueryableLineSource is the capability abstraction spec.md §9 calls for,
// replacing the original AbstractLogData inheritance chain: a read-only
// line-indexed text source. Both LogData and FilteredLogData implement it.
type QueryableLineSource interface {
	NbLine() int
	LineString(i int) string
	ExpandedLineString(i int) string
	Lines(first, count int) []string
	ExpandedLines(first, count int) []string
	MaxLength() int
	LineLength(i int) int
	DisplayEncoding() encoding.Codec
}

type opKind int

const (
	opNone opKind = iota
	opChangeCheck
	opPartial
	opFull
)

// precedence returns higher-is-more-important, matching spec.md §4.5:
// "Full > Partial > ChangeCheck".
func (o opKind) precedence() int { return int(o) }

// LogData is the façade described above.
type LogData struct {
	path   string
	engine *indexer.Engine
	data   *indexdata.Data
	cfg    *config.Config
	log    *logging.Logger

	mu           sync.Mutex
	currentOp    opKind
	pendingOp    opKind
	cancelled    *atomic.Bool
	displayCodec encoding.Codec
	codecForced  bool
	lastModified time.Time
	wg           sync.WaitGroup

	subMu               sync.Mutex
	onLoadingProgressed []func(percent int)
	onLoadingFinished   []func(status Status)
	onFileChanged       []func(kind FileChangeKind)
}

// New creates a LogData that is not yet attached to a file.
func New(cfg *config.Config, log *logging.Logger) *LogData {
	if log == nil {
		log = logging.Default
	}
	return &LogData{
		engine: indexer.New(cfg, log),
		data:   indexdata.New(),
		cfg:    cfg,
		log:    log,
	}
}

// OnLoadingProgressed subscribes to loadingProgressed events.
func (l *LogData) OnLoadingProgressed(fn func(percent int)) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	l.onLoadingProgressed = append(l.onLoadingProgressed, fn)
}

// OnLoadingFinished subscribes to loadingFinished events.
func (l *LogData) OnLoadingFinished(fn func(status Status)) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	l.onLoadingFinished = append(l.onLoadingFinished, fn)
}

// OnFileChanged subscribes to fileChanged events.
func (l *LogData) OnFileChanged(fn func(kind FileChangeKind)) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	l.onFileChanged = append(l.onFileChanged, fn)
}

func (l *LogData) fireProgress(pct int) {
	l.subMu.Lock()
	subs := append([]func(int){}, l.onLoadingProgressed...)
	l.subMu.Unlock()
	for _, fn := range subs {
		fn(pct)
	}
}

func (l *LogData) fireFinished(status Status) {
	l.subMu.Lock()
	subs := append([]func(Status){}, l.onLoadingFinished...)
	l.subMu.Unlock()
	for _, fn := range subs {
		fn(status)
	}
}

func (l *LogData) fireFileChanged(kind FileChangeKind) {
	l.subMu.Lock()
	subs := append([]func(FileChangeKind){}, l.onFileChanged...)
	l.subMu.Unlock()
	for _, fn := range subs {
		fn(kind)
	}
}

// Attach enqueues a Full indexing operation for path. Once it completes,
// callers are expected to register path with a FileWatcher (internal/
// watcher) and route its events to HandleFileChanged.
func (l *LogData) Attach(path string) {
	l.path = path
	l.enqueue(opFull)
}

// Reload cancels any running indexing operation and enqueues a Full
// operation, optionally forcing a new codec for indexing itself (not just
// display).
func (l *LogData) Reload(forcedCodec *encoding.Codec) {
	l.mu.Lock()
	if l.cancelled != nil {
		l.cancelled.Store(true)
	}
	l.mu.Unlock()
	if forcedCodec != nil {
		l.data.Lock(func(m indexdata.Mutator) { m.ForceEncoding(*forcedCodec) })
	}
	l.enqueue(opFull)
}

// InterruptLoading sets the cancellation flag of the currently active
// operation, if any.
func (l *LogData) InterruptLoading() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancelled != nil {
		l.cancelled.Store(true)
	}
}

// SetDisplayEncoding changes the codec used to decode lines for
// getLine*/getExpandedLine* calls. If the codec implies a different byte
// width than the one used for indexing, a Full reload is enqueued instead
// (spec.md §4.5): line offsets are only valid under a consistent LF
// width.
func (l *LogData) SetDisplayEncoding(c encoding.Codec) {
	var indexingCodec encoding.Codec
	l.data.Read(func(r indexdata.Snapshot) { indexingCodec = r.DetectedEncoding() })

	if indexingCodec.ByteWidth() != c.ByteWidth() {
		cc := c
		l.Reload(&cc)
		return
	}
	l.mu.Lock()
	l.displayCodec = c
	l.codecForced = true
	l.mu.Unlock()
}

func (l *LogData) enqueue(kind opKind) {
	l.mu.Lock()
	if l.currentOp == opNone {
		l.currentOp = kind
		cancelled := &atomic.Bool{}
		l.cancelled = cancelled
		l.mu.Unlock()
		l.wg.Add(1)
		go l.run(kind, cancelled)
		return
	}
	if kind.precedence() >= l.pendingOp.precedence() {
		l.pendingOp = kind
	}
	l.mu.Unlock()
}

func (l *LogData) run(kind opKind, cancelled *atomic.Bool) {
	defer l.wg.Done()
	ctx := context.Background()

	var status Status
	switch kind {
	case opFull:
		status = l.engine.Full(ctx, l.path, l.data, nil, cancelled, l.fireProgress)
	case opPartial:
		status = l.engine.Partial(ctx, l.path, l.data, cancelled, l.fireProgress)
	default:
		status = Successful
	}

	if status == Successful {
		if fi, err := os.Stat(l.path); err == nil {
			l.mu.Lock()
			l.lastModified = fi.ModTime()
			l.mu.Unlock()
		}
	}

	l.fireFinished(status)

	l.mu.Lock()
	l.currentOp = opNone
	next := l.pendingOp
	l.pendingOp = opNone
	l.mu.Unlock()

	if next != opNone {
		l.enqueue(next)
	}
}

// HandleFileChanged reacts to a watcher notification by running a cheap
// ChangeCheck and enqueueing the appropriate follow-up operation (spec.md
// §4.5 "File-change reaction").
func (l *LogData) HandleFileChanged() {
	result, err := l.engine.ChangeCheck(l.path, l.data)
	if err != nil {
		l.log.Warn("change check failed for ", l.path, ": ", err)
		return
	}
	if fi, err := os.Stat(l.path); err == nil {
		l.mu.Lock()
		l.lastModified = fi.ModTime()
		l.mu.Unlock()
	}
	switch result {
	case indexer.Truncated:
		l.fireFileChanged(Truncated)
		l.enqueue(opFull)
	case indexer.DataAdded:
		l.fireFileChanged(DataAdded)
		l.enqueue(opPartial)
	case indexer.Unchanged:
		l.fireFileChanged(Unchanged)
	}
}

// Wait blocks until all indexing operations (current + chained pending
// ones) have drained. Intended for tests and for Close.
func (l *LogData) Wait() {
	l.wg.Wait()
}

// Close interrupts any active operation and waits for the worker to stop,
// per the cancellation/ownership rule in spec.md §5.
func (l *LogData) Close() {
	l.InterruptLoading()
	l.wg.Wait()
}

// --- read surface: QueryableLineSource ---

func (l *LogData) activeCodec() encoding.Codec {
	l.mu.Lock()
	forced := l.codecForced
	codec := l.displayCodec
	l.mu.Unlock()
	if forced {
		return codec
	}
	var guess encoding.Codec
	l.data.Read(func(r indexdata.Snapshot) { guess = r.DetectedEncoding() })
	return guess
}

// NbLine returns the number of indexed lines.
func (l *LogData) NbLine() int {
	var n int
	l.data.Read(func(r indexdata.Snapshot) { n = r.NbLines() })
	return n
}

// MaxLength returns the maximum tab-expanded line length seen so far.
func (l *LogData) MaxLength() int {
	var n int
	l.data.Read(func(r indexdata.Snapshot) { n = r.MaxLength() })
	return n
}

// DisplayEncoding returns the codec currently used to decode lines.
func (l *LogData) DisplayEncoding() encoding.Codec {
	return l.activeCodec()
}

// GetFileSize returns the file's size on disk, best-effort.
func (l *LogData) GetFileSize() uint64 {
	fi, err := os.Stat(l.path)
	if err != nil {
		return 0
	}
	return uint64(fi.Size())
}

// GetLastModifiedDate returns the mtime recorded after the last successful
// indexing operation or ChangeCheck.
func (l *LogData) GetLastModifiedDate() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastModified
}

// GetDetectedEncoding returns the encoding the indexer guessed (or the
// forced indexing override), independent of the display codec.
func (l *LogData) GetDetectedEncoding() encoding.Codec {
	var c encoding.Codec
	l.data.Read(func(r indexdata.Snapshot) { c = r.DetectedEncoding() })
	return c
}

// rawLineBytes reads the raw byte payload of line i straight from disk.
func (l *LogData) rawLineBytes(i int) ([]byte, bool) {
	var start, end uint64
	var ok bool
	var lfWidth int
	l.data.Read(func(r indexdata.Snapshot) {
		if i < 0 || i >= r.NbLines() {
			return
		}
		lfWidth = l.activeIndexingLFWidth(r)
		start = r.LineStart(i)
		end = r.LineEnd(i, lfWidth)
		ok = true
	})
	if !ok {
		return nil, false
	}
	if end < start {
		end = start
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, false
	}
	defer f.Close()
	buf := make([]byte, end-start)
	if len(buf) == 0 {
		return buf, true
	}
	if _, err := f.ReadAt(buf, int64(start)); err != nil {
		return nil, false
	}
	return buf, true
}

func (l *LogData) activeIndexingLFWidth(r indexdata.Snapshot) int {
	return r.DetectedEncoding().LineFeedWidth()
}

// LineString returns line i decoded through the current display codec.
func (l *LogData) LineString(i int) string {
	raw, ok := l.rawLineBytes(i)
	if !ok {
		return ""
	}
	return encoding.Decode(raw, l.activeCodec())
}

// ExpandedLineString returns line i with tabs expanded to the next
// multiple of the configured tab stop.
func (l *LogData) ExpandedLineString(i int) string {
	return expandTabs(l.LineString(i), tabStopOf(l.cfg))
}

// Lines returns count decoded lines starting at first.
func (l *LogData) Lines(first, count int) []string {
	out := make([]string, 0, count)
	for i := first; i < first+count; i++ {
		out = append(out, l.LineString(i))
	}
	return out
}

// ExpandedLines returns count tab-expanded lines starting at first.
func (l *LogData) ExpandedLines(first, count int) []string {
	out := make([]string, 0, count)
	for i := first; i < first+count; i++ {
		out = append(out, l.ExpandedLineString(i))
	}
	return out
}

// LineLength returns the tab-expanded display length of line i.
func (l *LogData) LineLength(i int) int {
	return len([]rune(l.ExpandedLineString(i)))
}

func tabStopOf(cfg *config.Config) int {
	if cfg == nil || cfg.TabStopWidth <= 0 {
		return 8
	}
	return cfg.TabStopWidth
}

func expandTabs(s string, tabStop int) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var sb strings.Builder
	col := 0
	for _, r := range s {
		if r == '\t' {
			next := ((col / tabStop) + 1) * tabStop
			for col < next {
				sb.WriteByte(' ')
				col++
			}
			continue
		}
		sb.WriteRune(r)
		col++
	}
	return sb.String()
}
