// Package indexer implements C4, the IndexingEngine: it streams a file in
// fixed-size blocks, parses line terminators, expands tabs to maintain the
// maximum display width, updates an indexdata.Data aggregate, and reports
// progress — per spec.md §4.4.
package indexer

import (
	"context"
	"io"
	"os"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/mimecast/logdcore/internal/config"
	"github.com/mimecast/logdcore/internal/encoding"
	"github.com/mimecast/logdcore/internal/indexdata"
	"github.com/mimecast/logdcore/internal/lineindex"
	"github.com/mimecast/logdcore/internal/logging"
)

// Status is the terminal outcome of a Full or Partial indexing operation,
// matching the loadingFinished status values in spec.md §4.5/§6.
type Status int

const (
	// Successful means the operation ran to completion (possibly of an
	// empty file, per the FileOpenError recovery rule in spec.md §7).
	Successful Status = iota
	// Interrupted means the cancellation flag was observed mid-operation.
	Interrupted
	// NoMemory means an allocation failed during indexing.
	NoMemory
)

// ChangeResult is the outcome of a ChangeCheck operation (spec.md §4.4).
type ChangeResult int

const (
	Unchanged ChangeResult = iota
	DataAdded
	Truncated
)

// Engine streams a file into an indexdata.Data aggregate.
type Engine struct {
	cfg *config.Config
	log *logging.Logger
}

// New creates an Engine using the given configuration and logger.
func New(cfg *config.Config, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.Default
	}
	return &Engine{cfg: cfg, log: log}
}

type block struct {
	beginOffset int64
	data        []byte
	err         error
}

// Full clears data and indexes the whole file from offset 0. forcedCodec,
// if non-nil, is applied before indexing begins. progress is called with
// a monotonically non-decreasing percentage after each merged block.
func (e *Engine) Full(ctx context.Context, path string, data *indexdata.Data, forcedCodec *encoding.Codec, cancelled *atomic.Bool, progress func(int)) Status {
	data.Lock(func(m indexdata.Mutator) {
		m.Clear()
		if forcedCodec != nil {
			m.ForceEncoding(*forcedCodec)
		}
	})
	return e.index(ctx, path, data, 0, cancelled, progress)
}

// Partial indexes only the tail of the file starting at data's current
// indexedSize (spec.md §4.4 "Partial").
func (e *Engine) Partial(ctx context.Context, path string, data *indexdata.Data, cancelled *atomic.Bool, progress func(int)) Status {
	var start uint64
	data.Read(func(r indexdata.Snapshot) { start = r.IndexedSize() })
	return e.index(ctx, path, data, int64(start), cancelled, progress)
}

func (e *Engine) index(ctx context.Context, path string, data *indexdata.Data, startOffset int64, cancelled *atomic.Bool, progress func(int)) Status {
	f, err := os.Open(path)
	if err != nil {
		// FileOpenError recovery per spec.md §7: treat as empty, locale
		// default encoding, report 100% and Successful.
		e.log.Warn("unable to open ", path, ": ", err)
		data.Lock(func(m indexdata.Mutator) {
			m.Clear()
			m.SetEncodingGuess(encoding.ISO88591)
		})
		if progress != nil {
			progress(100)
		}
		return Successful
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		if progress != nil {
			progress(100)
		}
		return Successful
	}
	fileSize := fi.Size()

	if startOffset > 0 {
		if _, err := f.Seek(startOffset, io.SeekStart); err != nil {
			return Interrupted
		}
	}

	blockSize := e.cfg.IndexBlockSize
	if blockSize <= 0 {
		blockSize = 1 << 20
	}
	prefetchBlocks := 1
	if e.cfg.IndexReadBufferSizeMB > 0 {
		prefetchBlocks = (e.cfg.IndexReadBufferSizeMB << 20) / blockSize
		if prefetchBlocks < 1 {
			prefetchBlocks = 1
		}
	}

	blocks := make(chan block, prefetchBlocks)
	readerDone := make(chan struct{})

	go func() {
		defer close(blocks)
		defer close(readerDone)
		buf := make([]byte, blockSize)
		offset := startOffset
		for {
			if cancelled != nil && cancelled.Load() {
				return
			}
			n, rerr := f.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				blocks <- block{beginOffset: offset, data: chunk}
				offset += int64(n)
			}
			if rerr == io.EOF {
				blocks <- block{beginOffset: -1}
				return
			}
			if rerr != nil {
				blocks <- block{beginOffset: offset, err: rerr}
				return
			}
		}
	}()

	state := &parseState{tabStop: e.cfg.TabStopWidth}
	if state.tabStop <= 0 {
		state.tabStop = 8
	}

	var lastProcessed int64 = startOffset
	var sawError error
	lastPct := -1

	for b := range blocks {
		select {
		case <-ctx.Done():
			return Interrupted
		default:
		}
		if cancelled != nil && cancelled.Load() {
			return Interrupted
		}
		if b.err != nil {
			sawError = b.err
			break
		}
		if b.beginOffset == -1 {
			break
		}

		det := state.detection
		if !state.detected {
			det = encoding.Detect(b.data)
			state.detection = det
			state.detected = true
		}

		positions, maxLenInBatch := parseBlock(b.data, b.beginOffset, det, state)
		data.Lock(func(m indexdata.Mutator) {
			m.AddAll(b.data, maxLenInBatch, positions, det.Codec)
		})
		lastProcessed = b.beginOffset + int64(len(b.data))

		if progress != nil && fileSize > 0 {
			pct := int(float64(lastProcessed) * 100 / float64(fileSize))
			if pct > 100 {
				pct = 100
			}
			if pct > lastPct {
				lastPct = pct
				progress(pct)
			}
		}
	}

	if sawError != nil {
		e.log.Error("read error indexing ", path, ": ", sawError)
		return Interrupted
	}

	// EOF bookkeeping: synthesize a trailing fake LF if the file doesn't
	// end in a terminator (spec.md §4.4 step 3). state.column > 0 means
	// bytes were scanned since the last terminator without finding one.
	if state.column > 0 {
		data.Lock(func(m indexdata.Mutator) {
			m.AddAll(nil, 0, syntheticFakeLF(uint64(fileSize)), det0(state))
		})
	}

	if progress != nil {
		progress(100)
	}
	return Successful
}

func det0(state *parseState) encoding.Codec {
	if state.detected {
		return state.detection.Codec
	}
	return encoding.UTF8
}

func syntheticFakeLF(fileSize uint64) *lineindex.Positions {
	p := lineindex.New()
	p.Append(fileSize + 1)
	p.SetFakeFinalLF(true)
	return p
}

// parseState carries the running, sequential parser state across blocks —
// a line's tab-expanded column position and terminator scanning can span
// a block boundary, so this state is threaded through a single sequential
// parser goroutine call per spec.md §4.4 step 2b/2c.
type parseState struct {
	detected  bool
	detection encoding.Detection
	tabStop   int
	column    int // current display column within the in-progress line
	lineMax   int // max column reached so far within the in-progress line
}

// parseBlock scans block for line terminators according to det's layout,
// expanding tabs to track display width, and returns the post-terminator
// offsets found plus the max line length reached within this block,
// including the still-unterminated line at the block's end.
func parseBlock(blockData []byte, blockBegin int64, det encoding.Detection, state *parseState) (*lineindex.Positions, int) {
	positions := lineindex.New()
	maxLen := 0
	lfWidth := det.LineFeedWidth
	if lfWidth <= 0 {
		lfWidth = 1
	}

	i := 0
	for i < len(blockData) {
		isLF, consumed := matchLF(blockData[i:], lfWidth)
		if isLF {
			if state.lineMax > maxLen {
				maxLen = state.lineMax
			}
			positions.Append(uint64(blockBegin + int64(i) + int64(consumed)))
			i += consumed
			state.column = 0
			state.lineMax = 0
			continue
		}

		b := blockData[i]
		if b == '\t' && lfWidth == 1 {
			state.column = ((state.column / state.tabStop) + 1) * state.tabStop
		} else {
			state.column++
		}
		if state.column > state.lineMax {
			state.lineMax = state.column
		}
		i++
	}
	if state.lineMax > maxLen {
		maxLen = state.lineMax
	}
	return positions, maxLen
}

// matchLF reports whether blockData begins with a line terminator of the
// given width, and how many bytes it occupies.
func matchLF(blockData []byte, lfWidth int) (bool, int) {
	switch lfWidth {
	case 1:
		if len(blockData) >= 1 && blockData[0] == '\n' {
			return true, 1
		}
	case 2:
		if len(blockData) >= 2 {
			// UTF-16: '\n' occupies one 16-bit code unit; the other byte
			// of the pair is 0x00 regardless of endianness for ASCII LF.
			if (blockData[0] == '\n' && blockData[1] == 0) || (blockData[0] == 0 && blockData[1] == '\n') {
				return true, 2
			}
		}
	case 4:
		if len(blockData) >= 4 {
			if blockData[0] == '\n' && blockData[1] == 0 && blockData[2] == 0 && blockData[3] == 0 {
				return true, 4
			}
			if blockData[0] == 0 && blockData[1] == 0 && blockData[2] == 0 && blockData[3] == '\n' {
				return true, 4
			}
		}
	}
	return false, 0
}

// ChangeCheck classifies the file on disk relative to the last indexed
// state: Unchanged, DataAdded, or Truncated (spec.md §4.4).
func (e *Engine) ChangeCheck(path string, data *indexdata.Data) (ChangeResult, error) {
	var sizeHashed uint64
	var storedDigest uint64
	data.Read(func(r indexdata.Snapshot) {
		h := r.Hash()
		sizeHashed = h.SizeHashed
		storedDigest = h.Digest
	})

	f, err := os.Open(path)
	if err != nil {
		return Truncated, nil
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return Truncated, err
	}
	fileSize := uint64(fi.Size())

	if fileSize < sizeHashed {
		return Truncated, nil
	}

	if sizeHashed == 0 {
		if fileSize == 0 {
			return Unchanged, nil
		}
		return DataAdded, nil
	}

	prefix := make([]byte, sizeHashed)
	if _, err := io.ReadFull(f, prefix); err != nil {
		return Truncated, nil
	}
	digest := contentDigest(prefix)
	if digest != storedDigest {
		return Truncated, nil
	}
	if fileSize > sizeHashed {
		return DataAdded, nil
	}
	return Unchanged, nil
}

func contentDigest(b []byte) uint64 {
	return xxhash.Sum64(b)
}
