// Package queue implements the bounded-concurrency job queue: tasks
// submitted here are cooperatively interleaved across at most
// MaxConcurrency in-flight slots, with job-row state transitions handled
// around the caller's opaque task closure.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hnzh/internal/async"
	"hnzh/internal/domain/jobs"
	"hnzh/internal/eventbus"
	"hnzh/internal/logging"
)

// Task is the opaque unit of work a caller submits. It may write to the
// translation cache or publish events; it must not hold exclusive locks
// across suspension points.
type Task func(ctx context.Context) error

// Status is a point-in-time snapshot of the queue's load.
type Status struct {
	Pending  int
	InFlight int
	Paused   bool
}

// Queue is the bounded-concurrency executor.
type Queue struct {
	store       jobs.Store
	bus         *eventbus.Bus
	logger      logging.Logger
	maxInFlight int

	mu       sync.Mutex
	paused   bool
	pending  []queuedTask
	inFlight int
	closed   bool
}

type queuedTask struct {
	jobID  string
	itemID int
	kind   jobs.Kind
	task   Task
}

// New creates a Queue backed by store, with up to maxConcurrency tasks
// running at once.
func New(store jobs.Store, bus *eventbus.Bus, logger logging.Logger, maxConcurrency int) *Queue {
	if maxConcurrency <= 0 {
		maxConcurrency = 3
	}
	return &Queue{
		store:       store,
		bus:         bus,
		logger:      logging.OrNop(logger),
		maxInFlight: maxConcurrency,
	}
}

// Submit creates the job in "queued" and schedules task to run once a
// slot is free. It returns the job_id immediately.
func (q *Queue) Submit(ctx context.Context, itemID int, kind jobs.Kind, task Task) (string, error) {
	jobID, err := q.store.Create(ctx, itemID, kind)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return jobID, fmt.Errorf("queue closed")
	}
	q.pending = append(q.pending, queuedTask{jobID: jobID, itemID: itemID, kind: kind, task: task})
	q.mu.Unlock()

	async.Go(q.logger, "queue-dispatch", q.dispatch)
	return jobID, nil
}

// dispatch pulls work off the pending list while a slot is free and the
// queue isn't paused. It is safe to call concurrently; each call claims at
// most the slots available at the moment it runs.
func (q *Queue) dispatch() {
	for {
		q.mu.Lock()
		if q.paused || q.closed || len(q.pending) == 0 || q.inFlight >= q.maxInFlight {
			q.mu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending = q.pending[1:]
		q.inFlight++
		q.mu.Unlock()

		q.runOne(next)

		q.mu.Lock()
		q.inFlight--
		q.mu.Unlock()
	}
}

func (q *Queue) runOne(t queuedTask) {
	ctx := context.Background()
	if err := q.store.UpdateStatus(ctx, t.jobID, jobs.StatusRunning, nil); err != nil {
		q.logger.Warn("queue: failed to mark job %s running: %v", t.jobID, err)
	}

	err := t.task(ctx)

	if err != nil {
		if updErr := q.store.UpdateStatus(ctx, t.jobID, jobs.StatusError, nil); updErr != nil {
			q.logger.Warn("queue: failed to mark job %s error: %v", t.jobID, updErr)
		}
		q.logger.Warn("queue: task for item %d kind %s failed: %v", t.itemID, t.kind, err)
		return
	}

	done := 100
	if updErr := q.store.UpdateStatus(ctx, t.jobID, jobs.StatusDone, &done); updErr != nil {
		q.logger.Warn("queue: failed to mark job %s done: %v", t.jobID, updErr)
	}
}

// Status reports the current pending/in-flight/paused snapshot.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{Pending: len(q.pending), InFlight: q.inFlight, Paused: q.paused}
}

// Pause stops new tasks from starting; running tasks are never aborted.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume re-enables dispatch and kicks off any pending work.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	async.Go(q.logger, "queue-dispatch", q.dispatch)
}

// Drain blocks until no task is pending or in flight, or ctx expires.
// It reports whether the queue emptied in time; tasks still running when
// it gives up are left to finish on their own.
func (q *Queue) Drain(ctx context.Context) bool {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		st := q.Status()
		if st.Pending == 0 && st.InFlight == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// Clear drops all pending (not yet started) tasks.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.pending = nil
	q.mu.Unlock()
}

// Emit forwards event to the Event Bus.
func (q *Queue) Emit(event eventbus.Event) {
	if q.bus != nil {
		q.bus.Publish(event)
	}
}
