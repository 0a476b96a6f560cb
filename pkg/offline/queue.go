package offline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/guido-cesarano/tripsync/pkg/logger"
)

const (
	// defaultDebounce coalesces rapid enqueue/connectivity bursts into a
	// single drain pass.
	defaultDebounce = 250 * time.Millisecond

	// defaultBackoffBase is the first inter-attempt delay for a failing task.
	defaultBackoffBase = 200 * time.Millisecond

	// defaultBackoffCap bounds the exponential growth of the delay.
	defaultBackoffCap = 4 * time.Second
)

// Queue holds deferred work in FIFO order and drains it head-first while
// its gate reports that going online is allowed.
//
// Draining is strictly sequential. Tasks are never executed concurrently,
// which keeps a reconnect from unleashing a thundering herd of requests.
// A task that fails is retried in place with exponential backoff until it
// succeeds or exhausts its attempt budget, at which point it is dropped.
//
// The gate is re-checked before every task, so a connectivity drop mid-drain
// halts the pass and leaves the remainder queued for the next trigger.
type Queue struct {
	gate func() bool
	log  zerolog.Logger

	debounce    time.Duration
	backoffBase time.Duration
	backoffCap  time.Duration

	// sleep waits between retry attempts. Swappable so tests can assert
	// the backoff schedule without real waiting.
	sleep func(ctx context.Context, d time.Duration)

	mu       sync.Mutex
	tasks    []*Task
	timer    *time.Timer
	draining bool
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
}

// QueueOption customizes a Queue.
type QueueOption func(*Queue)

// WithDebounce sets the delay used by non-immediate drain scheduling.
func WithDebounce(d time.Duration) QueueOption {
	return func(q *Queue) { q.debounce = d }
}

// WithBackoff sets the initial retry delay and its cap.
func WithBackoff(base, cap time.Duration) QueueOption {
	return func(q *Queue) {
		q.backoffBase = base
		q.backoffCap = cap
	}
}

// WithSleep replaces the inter-attempt wait. Tests use this to record the
// backoff schedule.
func WithSleep(fn func(ctx context.Context, d time.Duration)) QueueOption {
	return func(q *Queue) { q.sleep = fn }
}

// NewQueue creates a queue gated by the given predicate. The gate is
// typically Coordinator.CanGoOnline; the queue itself knows nothing about
// connectivity.
func NewQueue(gate func() bool, opts ...QueueOption) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		gate:        gate,
		log:         logger.With("queue"),
		debounce:    defaultDebounce,
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.sleep == nil {
		q.sleep = sleepCtx
	}
	return q
}

// Enqueue appends a task to the tail and schedules a debounced drain.
// It returns the task ID for tracking. Failures are never reported back to
// the caller synchronously; register an OnDrop callback to learn about
// permanently failed tasks.
func (q *Queue) Enqueue(op Operation, opts ...TaskOption) string {
	task := newTask(op, opts...)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.log.Warn().Str("task_id", task.ID).Msg("Enqueue on closed queue, task discarded")
		return task.ID
	}
	q.tasks = append(q.tasks, task)
	depth := len(q.tasks)
	q.mu.Unlock()

	queueDepth.Set(float64(depth))
	q.log.Debug().Str("task_id", task.ID).Int("depth", depth).Msg("Task enqueued")

	q.ScheduleDrain(false)
	return task.ID
}

// ScheduleDrain arms a single drain timer, cancelling any previously armed
// one so bursts of triggers collapse into the most recent request. With
// immediate set the drain fires right away, otherwise after the debounce
// delay. If the gate is closed at schedule time the call is a no-op: the
// next online transition or override flip must re-trigger.
func (q *Queue) ScheduleDrain(immediate bool) {
	if !q.gate() {
		return
	}

	delay := q.debounce
	if immediate {
		delay = 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(delay, func() {
		q.Drain(q.ctx)
	})
}

// Drain runs one drain pass synchronously: it processes tasks head-first
// until the queue is empty, the gate closes, or ctx is cancelled. Only one
// pass runs at a time; concurrent calls return immediately and leave the
// work to the active pass. The active pass re-reads the queue on every
// iteration, and on exit re-arms a drain if tasks arrived after its last
// read, so an enqueue racing the end of a pass is never stranded.
func (q *Queue) Drain(ctx context.Context) {
	q.mu.Lock()
	if q.draining || q.closed {
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()

	start := time.Now()
	defer func() {
		q.mu.Lock()
		q.draining = false
		rearm := !q.closed && len(q.tasks) > 0
		q.mu.Unlock()
		drainDuration.Observe(time.Since(start).Seconds())
		if rearm {
			q.ScheduleDrain(true)
		}
	}()

	backoff := q.backoffBase
	for {
		if ctx.Err() != nil || !q.gate() {
			return
		}

		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.mu.Unlock()

		err := runOperation(ctx, task)
		if err == nil {
			q.removeHead(task)
			backoff = q.backoffBase
			tasksProcessed.WithLabelValues("success").Inc()
			q.log.Debug().Str("task_id", task.ID).Msg("Task completed")
			continue
		}

		task.Attempts++
		if task.Attempts >= task.MaxAttempts {
			q.removeHead(task)
			tasksProcessed.WithLabelValues("dropped").Inc()
			q.log.Error().Err(err).
				Str("task_id", task.ID).
				Int("attempts", task.Attempts).
				Msg("Task dropped after exhausting attempts")
			if task.OnDrop != nil {
				task.OnDrop(task.ID, err)
			}
			continue
		}

		tasksProcessed.WithLabelValues("retry").Inc()
		q.log.Warn().Err(err).
			Str("task_id", task.ID).
			Int("attempts", task.Attempts).
			Dur("backoff", backoff).
			Msg("Task failed, retrying after backoff")

		q.sleep(ctx, backoff)
		backoff = min(backoff*2, q.backoffCap)
		// Task stays at the head and is retried on the next iteration.
	}
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close cancels any armed drain timer and the drain context. Pending tasks
// are discarded with the queue; Close does not wait for an in-flight task,
// but the drain pass observes the cancelled context before starting the
// next one. Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.mu.Unlock()
	q.cancel()
}

// removeHead pops task if it is still at the head. Re-entrant enqueues only
// ever append, so the head can only have been removed by this drain pass.
func (q *Queue) removeHead(task *Task) {
	q.mu.Lock()
	if len(q.tasks) > 0 && q.tasks[0] == task {
		q.tasks = q.tasks[1:]
	}
	depth := len(q.tasks)
	q.mu.Unlock()
	queueDepth.Set(float64(depth))
}

// runOperation executes the task's operation, converting panics into plain
// failures so a misbehaving task cannot take down the drain loop. A panic
// and a returned error are handled identically.
func runOperation(ctx context.Context, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.ID, r)
		}
	}()
	return task.Op(ctx)
}

// sleepCtx waits for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
