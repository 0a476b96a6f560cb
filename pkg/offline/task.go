// Package offline implements the offline coordination core: a connectivity-
// gated coordinator with a manual offline override, and a sequential retry
// queue that drains deferred work with exponential backoff once the device
// is allowed back online.
package offline

import (
	"context"

	"github.com/google/uuid"
)

// DefaultMaxAttempts is the attempt budget for tasks that do not override it.
const DefaultMaxAttempts = 3

// Operation is the deferred action held by a queued task. It is opaque to
// the queue; any returned error counts as a failed attempt. The context is
// the queue's drain context and is cancelled on Close.
type Operation func(ctx context.Context) error

// Task is a unit of deferred work waiting in the retry queue.
//
// Tasks are memory-only: the queue is intentionally not durable, and pending
// work is lost on process restart.
type Task struct {
	// ID identifies the task in logs and drop callbacks. Generated when
	// the caller does not supply one.
	ID string

	// Op is the deferred action.
	Op Operation

	// Attempts counts failed executions so far.
	Attempts int

	// MaxAttempts is the attempt budget. Values below 1 mean "try once,
	// drop on any failure".
	MaxAttempts int

	// OnDrop, if set, is invoked (outside the queue lock) when the task
	// exhausts its attempts and is dropped. err is the last failure.
	OnDrop func(id string, err error)
}

// TaskOption customizes a task at enqueue time.
type TaskOption func(*Task)

// WithID sets a caller-supplied task ID.
func WithID(id string) TaskOption {
	return func(t *Task) { t.ID = id }
}

// WithMaxAttempts overrides the attempt budget.
func WithMaxAttempts(n int) TaskOption {
	return func(t *Task) { t.MaxAttempts = n }
}

// WithOnDrop registers a callback invoked when the task is permanently
// dropped after exhausting its attempts.
func WithOnDrop(fn func(id string, err error)) TaskOption {
	return func(t *Task) { t.OnDrop = fn }
}

func newTask(op Operation, opts ...TaskOption) *Task {
	t := &Task{
		Op:          op,
		MaxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.MaxAttempts < 1 {
		t.MaxAttempts = 1
	}
	return t
}
