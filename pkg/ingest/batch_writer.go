package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrBatchWriterClosed is returned by Submit and Close once the writer is closed.
var ErrBatchWriterClosed = errors.New("batch writer closed")

// WriteFunc writes one unit of work, typically a vocabulary chunk, inside tx.
type WriteFunc func(ctx context.Context, tx *sql.Tx) error

// BatchWriter groups WriteFuncs into transactions of up to size units and
// commits them on a single goroutine. SyncVocabulary uses it so that loading
// a large catalog never holds the SQLite write lock for the whole import,
// which would stall video finalization.
type BatchWriter struct {
	mu      sync.Mutex
	pending []WriteFunc
	size    int
	closed  bool
	ticker  *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	batches chan []WriteFunc
	db      *sql.DB

	// OnError, when set, sees every failed or dropped batch.
	OnError func(error)

	committed atomic.Int64

	errMu    sync.Mutex
	firstErr error
}

// NewBatchWriter starts a writer over db. A batch is committed once size
// units are pending, and every flushInterval when it is positive.
func NewBatchWriter(db *sql.DB, size int, flushInterval time.Duration) *BatchWriter {
	if size <= 0 {
		size = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	bw := &BatchWriter{
		pending: make([]WriteFunc, 0, size),
		size:    size,
		ctx:     ctx,
		cancel:  cancel,
		batches: make(chan []WriteFunc, 1),
		db:      db,
	}

	bw.wg.Add(1)
	go bw.commitLoop()

	if flushInterval > 0 {
		bw.ticker = time.NewTicker(flushInterval)
		bw.wg.Add(1)
		go bw.tickLoop()
	}
	return bw
}

// Submit queues w. It blocks while a full batch waits for the committer.
func (bw *BatchWriter) Submit(w WriteFunc) error {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	if bw.closed {
		return ErrBatchWriterClosed
	}
	bw.pending = append(bw.pending, w)
	if len(bw.pending) >= bw.size {
		bw.handOffLocked()
	}
	return nil
}

// Committed returns the number of units whose transaction committed.
func (bw *BatchWriter) Committed() int64 {
	return bw.committed.Load()
}

// handOffLocked passes the pending units to the committer. bw.mu must be held.
func (bw *BatchWriter) handOffLocked() {
	if len(bw.pending) == 0 {
		return
	}
	batch := bw.pending
	bw.pending = make([]WriteFunc, 0, bw.size)

	select {
	case bw.batches <- batch:
	case <-bw.ctx.Done():
		bw.fail(fmt.Errorf("batch writer: dropping batch of %d items due to context cancellation", len(batch)))
	}
}

func (bw *BatchWriter) fail(err error) {
	bw.errMu.Lock()
	if bw.firstErr == nil {
		bw.firstErr = err
	}
	bw.errMu.Unlock()
	if bw.OnError != nil {
		bw.OnError(err)
	}
}

func (bw *BatchWriter) commitLoop() {
	defer bw.wg.Done()
	for batch := range bw.batches {
		if err := bw.commit(batch); err != nil {
			bw.fail(err)
			continue
		}
		bw.committed.Add(int64(len(batch)))
	}
}

// commit runs batch in one transaction; any failing unit rolls back the
// whole batch. With a nil db the units run with a nil tx.
func (bw *BatchWriter) commit(batch []WriteFunc) error {
	if bw.db == nil {
		for _, w := range batch {
			if err := w(bw.ctx, nil); err != nil {
				return err
			}
		}
		return nil
	}

	// Batches handed off during Close must not see the cancelled writer context.
	ctx := context.Background()

	tx, err := bw.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer tx.Rollback()

	for _, w := range batch {
		if err := w(ctx, tx); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch of %d items: %w", len(batch), err)
	}
	return nil
}

func (bw *BatchWriter) tickLoop() {
	defer bw.wg.Done()
	for {
		select {
		case <-bw.ctx.Done():
			return
		case <-bw.ticker.C:
			bw.mu.Lock()
			bw.handOffLocked()
			bw.mu.Unlock()
		}
	}
}

// Close commits what is pending, stops the writer and returns the first
// error it saw. Closing twice returns ErrBatchWriterClosed.
func (bw *BatchWriter) Close() error {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return ErrBatchWriterClosed
	}
	bw.closed = true
	if bw.ticker != nil {
		bw.ticker.Stop()
	}
	bw.handOffLocked()
	bw.mu.Unlock()

	bw.cancel()
	close(bw.batches)
	bw.wg.Wait()

	bw.errMu.Lock()
	defer bw.errMu.Unlock()
	return bw.firstErr
}
