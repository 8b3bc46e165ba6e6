// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scandb

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/Thermoquad/ldscope/pkg/ld19"
)

// DefaultWriterQueue is the number of records a Writer buffers
const DefaultWriterQueue = 1024

// Writer inserts records into one session from a background goroutine.
// Handing a record to the writer never waits on SQLite; records arriving
// while the queue is full are dropped and counted.
type Writer struct {
	db        *DB
	sessionID string

	mu     sync.Mutex
	closed bool
	queue  chan ld19.MeasurementRecord
	doneCh chan struct{}

	written atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewWriter starts a writer for sessionID. Close must be called to flush
// queued records.
func NewWriter(db *DB, sessionID string, queueSize int) *Writer {
	if queueSize <= 0 {
		queueSize = DefaultWriterQueue
	}
	w := &Writer{
		db:        db,
		sessionID: sessionID,
		queue:     make(chan ld19.MeasurementRecord, queueSize),
		doneCh:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Writer) run() {
	defer close(w.doneCh)
	for rec := range w.queue {
		if _, err := w.db.InsertRecord(w.sessionID, rec); err != nil {
			w.failed.Add(1)
			log.Printf("[scandb] insert failed: %v", err)
			continue
		}
		w.written.Add(1)
	}
}

// Enqueue queues rec without blocking and reports whether it was accepted
func (w *Writer) Enqueue(rec ld19.MeasurementRecord) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.closed {
		select {
		case w.queue <- rec:
			return true
		default:
		}
	}
	w.dropped.Add(1)
	return false
}

// Handler returns a record handler for ld19.Publisher
func (w *Writer) Handler() ld19.RecordHandler {
	return func(rec ld19.MeasurementRecord) {
		w.Enqueue(rec)
	}
}

// Close stops accepting records and waits until the queued ones are
// inserted. Safe to call more than once.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.doneCh
}

// WriterCounts is a snapshot of a Writer's counters
type WriterCounts struct {
	Written uint64
	Failed  uint64
	Dropped uint64
}

// Counts returns the writer's counters
func (w *Writer) Counts() WriterCounts {
	return WriterCounts{
		Written: w.written.Load(),
		Failed:  w.failed.Load(),
		Dropped: w.dropped.Load(),
	}
}
