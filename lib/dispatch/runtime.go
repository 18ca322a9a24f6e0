// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sensormux/sensord/lib/connection"
	"github.com/sensormux/sensord/lib/recentlog"
	"github.com/sensormux/sensord/lib/schema"
)

// RuntimeQueue is the injected-event queue for sensors backed by a
// user-space callback instead of the HAL. Multiple
// goroutines may Push concurrently; a single RuntimeLoop drains it.
type RuntimeQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events []schema.Event
	closed bool
}

// NewRuntimeQueue returns an empty RuntimeQueue.
func NewRuntimeQueue() *RuntimeQueue {
	q := &RuntimeQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues event and wakes one waiting drainer.
func (q *RuntimeQueue) Push(event schema.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.events = append(q.events, event)
	q.cond.Signal()
}

// Close marks the queue closed and wakes any blocked drain so it can
// observe shutdown.
func (q *RuntimeQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// drain blocks until at least one event is available or the queue is
// closed, returning every currently queued event (and true), or
// (nil, false) once closed with nothing left to deliver.
func (q *RuntimeQueue) drain() ([]schema.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.events) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.events) == 0 {
		return nil, false
	}
	batch := q.events
	q.events = nil
	return batch, true
}

// RuntimeLoop is the secondary producer thread draining a RuntimeQueue.
// It applies the same recent-value
// recording, flush routing, and fanout as the dispatch loop, but never
// touches the HAL: runtime sensors have no hardware FIFO to poll, flush,
// or batch.
type RuntimeLoop struct {
	queue     *RuntimeQueue
	holder    *connection.Holder
	records   *connection.RecordTable
	recentLog *recentlog.Log
	logger    *slog.Logger

	// stopOnce guards Run's closing of the queue, which is what
	// unblocks a goroutine parked in drain's cond.Wait.
	stopOnce sync.Once
}

// NewRuntimeLoop returns a RuntimeLoop draining queue.
func NewRuntimeLoop(queue *RuntimeQueue, holder *connection.Holder, records *connection.RecordTable, recentLog *recentlog.Log, logger *slog.Logger) *RuntimeLoop {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuntimeLoop{queue: queue, holder: holder, records: records, recentLog: recentLog, logger: logger}
}

// Run drains the queue until ctx is cancelled or the queue is closed.
func (r *RuntimeLoop) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		r.stopOnce.Do(r.queue.Close)
		close(done)
	}()
	defer func() {
		select {
		case <-done:
		default:
			r.stopOnce.Do(r.queue.Close)
		}
	}()

	for {
		batch, ok := r.queue.drain()
		if !ok {
			return
		}
		r.deliver(batch)
	}
}

func (r *RuntimeLoop) deliver(batch []schema.Event) {
	dataBatch := make([]schema.Event, 0, len(batch))
	for _, event := range batch {
		switch event.Kind {
		case schema.EventMetaData:
			r.routeFlushCompletion(event)
		case schema.EventDynamicSensorMeta:
			r.logger.Warn("runtime sensor emitted a dynamic-sensor meta event, ignoring",
				"handle", event.SensorHandle)
		default:
			r.recentLog.Record(event)
			dataBatch = append(dataBatch, event)
		}
	}
	if len(dataBatch) == 0 {
		return
	}
	for _, conn := range r.holder.Snapshot() {
		if target, ok := conn.(fanoutTarget); ok {
			target.SendEvents(dataBatch)
		}
	}
}

func (r *RuntimeLoop) routeFlushCompletion(event schema.Event) {
	handle := event.SensorHandle
	if event.Meta != nil {
		handle = event.Meta.Handle
	}
	record, ok := r.records.Get(handle)
	if !ok {
		return
	}
	connID, ok := record.PopFlush()
	if !ok {
		return
	}
	conn, ok := r.holder.Lookup(connID)
	if !ok {
		return
	}
	if target, ok := conn.(flushTarget); ok {
		target.DeliverFlushComplete(handle)
	}
}
