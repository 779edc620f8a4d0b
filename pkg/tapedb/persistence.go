package tapedb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tapedb/tapedb/pkg/document"
	"github.com/tapedb/tapedb/pkg/executor"
	"github.com/tapedb/tapedb/pkg/storage"
)

// Controller is the C5 persistence controller: the single entry point a
// Datastore uses to load, append to, compact, and close its backing log.
//
// A Controller is safe for concurrent use: every mutating call is routed
// through its internal [executor.Executor], which guarantees at most one of
// Append/Compact/Close/an autocompaction tick runs at a time, in submission
// order.
type Controller struct {
	cfg   Config
	fsys  storage.FS
	codec Codec
	exec  *executor.Executor

	statsMu sync.RWMutex
	closed  bool

	writtenBytes        int64
	writesSinceCompact  int
	autocompactMinWrite int

	timerMu sync.Mutex
	timer   *time.Timer
}

// Open validates cfg, constructs a Controller, and performs the initial
// Load (spec §4.2-§4.4): stream the log, fold it into state, hand the
// result to cfg.DB, run a post-load compaction, then release any requests
// that arrived while loading was in progress.
//
// Open returns *Error wrapping [ErrConfigurationInconsistent],
// [ErrCodecNotInvertible], [ErrCorruptionThresholdExceeded], or
// [ErrOpenFailure] on failure. On failure no Controller is usable. A failure
// up to and including the fold (ErrCorruptionThresholdExceeded discards the
// partial state) leaves cfg.DB untouched; a failure after the fold has
// handed its result to cfg.DB resets cfg.DB to an empty state before
// returning.
func Open(ctx context.Context, cfg Config) (*Controller, error) {
	err := cfg.validate()
	if err != nil {
		return nil, err
	}

	codec, err := newCodec(cfg)
	if err != nil {
		return nil, wrap(err, "configure", "")
	}

	c := &Controller{
		cfg:                 cfg,
		fsys:                cfg.fs(),
		codec:               codec,
		exec:                executor.New(),
		autocompactMinWrite: 1,
	}

	err = c.load(ctx)
	if err != nil {
		return nil, err
	}

	c.exec.ProcessBuffer()

	return c, nil
}

func (c *Controller) load(ctx context.Context) error {
	if c.cfg.InMemoryOnly {
		c.cfg.DB.ResetIndexes(nil, nil)
		return nil
	}

	dir := filepath.Dir(c.cfg.Filename)
	if dir != "." && dir != "" {
		err := c.fsys.MkdirAll(dir, 0o755)
		if err != nil {
			return wrap(fmt.Errorf("%w: %w", ErrOpenFailure, err), "load", "")
		}
	}

	err := storage.EnsureDatafileIntegrity(c.fsys, c.cfg.Filename)
	if err != nil {
		return wrap(fmt.Errorf("%w: %w", ErrOpenFailure, err), "load", "")
	}

	reader, err := NewReader(c.fsys, c.cfg.Filename, c.codec.Decode)
	if err != nil {
		return wrap(fmt.Errorf("%w: %w", ErrOpenFailure, err), "load", "")
	}

	var outcomes []RecordOutcome

	_, _, err = ReadAll(reader, func(o RecordOutcome) error {
		outcomes = append(outcomes, o)
		return nil
	})
	if err != nil {
		return wrap(fmt.Errorf("%w: %w", ErrOpenFailure, err), "load", "")
	}

	// outcomes holds every record the reader yielded, corrupt ones
	// included, so fold counts them all itself.
	result, err := fold(outcomes, 0, c.cfg.threshold())
	if err != nil {
		return wrap(err, "load", "")
	}

	c.cfg.DB.ResetIndexes(result.live, result.indexes)
	c.writtenBytes = 0

	err = c.probeLogOpenable()
	if err != nil {
		c.cfg.DB.ResetIndexes(nil, nil)
		return wrap(fmt.Errorf("%w: %w", ErrOpenFailure, err), "load", "")
	}

	err = c.compact(true)
	if err != nil {
		c.cfg.DB.ResetIndexes(nil, nil)
		return wrap(err, "load", "")
	}

	return nil
}

// probeLogOpenable confirms the log path can actually be opened for
// append-and-read before Open reports success, surfacing ErrOpenFailure at
// load time rather than on the first Append. Every mutating operation goes
// through [storage.FS.Append]/[storage.FS.Create], each of which opens and
// closes its own descriptor per call (spec §4.5), so no descriptor is kept
// open across calls; this probe's handle is closed immediately.
func (c *Controller) probeLogOpenable() error {
	file, err := c.fsys.OpenFile(c.cfg.Filename, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}

	return file.Close()
}

// Append persists docs to the log in order, as a single write, and adds
// them to the write counter that autocompaction checks. docs have already been applied to cfg.DB's in-memory state by
// the caller; Append's only job is to make that change durable.
//
// An empty docs is a no-op. Append never partially writes: either every
// document in docs reaches the log, or none of it does.
func (c *Controller) Append(ctx context.Context, docs []*document.Document) error {
	if len(docs) == 0 {
		return nil
	}

	return c.exec.Push(func() error {
		if c.isClosed() {
			return wrap(ErrClosed, "append", "")
		}

		if c.cfg.InMemoryOnly {
			return nil
		}

		var buf []byte

		for _, doc := range docs {
			record, err := c.codec.Encode(doc)
			if err != nil {
				id, _ := doc.ID()
				return wrap(fmt.Errorf("append: encode: %w", err), "append", id)
			}

			buf = append(buf, record...)
			buf = append(buf, '\n')
		}

		err := c.fsys.Append(c.cfg.Filename, buf)
		if err != nil {
			return wrap(fmt.Errorf("append: %w", err), "append", "")
		}

		c.statsMu.Lock()
		c.writtenBytes += int64(len(buf))
		c.writesSinceCompact += len(docs)
		c.statsMu.Unlock()

		return nil
	})
}

// Compact enqueues a compaction (spec §4.4), waiting for its turn behind any
// in-flight Append.
func (c *Controller) Compact(ctx context.Context) error {
	return c.exec.Push(func() error {
		if c.isClosed() {
			return wrap(ErrClosed, "compact", "")
		}

		return wrap(c.compact(true), "compact", "")
	})
}

// Close runs a final compaction (without reopening the log for further
// writes), cancels any pending autocompaction timer, and marks the
// Controller closed. Subsequent Append/Compact calls return ErrClosed.
// Close itself is idempotent.
func (c *Controller) Close(ctx context.Context) error {
	c.cancelAutocompact()

	return c.exec.Push(func() error {
		if c.isClosed() {
			return nil
		}

		err := c.compact(false)

		c.statsMu.Lock()
		c.closed = true
		c.statsMu.Unlock()

		return wrap(err, "close", "")
	})
}

func (c *Controller) isClosed() bool {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()

	return c.closed
}

// SetAutocompaction arms a recurring background compaction: every interval,
// if at least minWrites documents have been appended since the last
// compaction, a compaction runs. interval is clamped to a 5 second minimum
// to bound how often the background timer wakes. Calling SetAutocompaction
// again replaces any previously armed timer. Passing interval<=0 disables
// autocompaction.
func (c *Controller) SetAutocompaction(interval time.Duration, minWrites int) {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	if interval <= 0 {
		return
	}

	if interval < 5*time.Second {
		interval = 5 * time.Second
	}

	if minWrites < 1 {
		minWrites = 1
	}

	c.autocompactMinWrite = minWrites
	c.timer = time.AfterFunc(interval, func() { c.autocompactTick(interval) })
}

// autocompactTick runs one scheduled check and, on completion, re-arms the
// next tick. Re-arming only from here (rather than on a fixed ticker)
// guarantees ticks never overlap even if a compaction runs long.
func (c *Controller) autocompactTick(interval time.Duration) {
	_ = c.exec.Push(func() error {
		if c.isClosed() {
			return nil
		}

		if c.writesSinceCompact < c.autocompactMinWrite {
			return nil
		}

		return c.compact(true)
	})

	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	if c.timer != nil {
		c.timer = time.AfterFunc(interval, func() { c.autocompactTick(interval) })
	}
}

func (c *Controller) cancelAutocompact() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Stats reports the byte counter (the size written by the last compaction
// plus the bytes appended since) and the number of documents appended since
// the last compaction, for diagnostics and tests.
func (c *Controller) Stats() (writtenBytes int64, writesSinceCompact int) {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()

	return c.writtenBytes, c.writesSinceCompact
}
