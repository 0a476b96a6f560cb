package offline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sleepRecorder captures backoff waits instead of actually sleeping so the
// schedule can be asserted without slow tests.
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.sleeps...)
}

// newTestQueue returns a queue whose debounce timer never fires, so tests
// drive drains synchronously via Drain, plus the gate and sleep recorder.
func newTestQueue(t *testing.T) (*Queue, *atomic.Bool, *sleepRecorder) {
	t.Helper()
	gate := &atomic.Bool{}
	gate.Store(true)
	rec := &sleepRecorder{}
	q := NewQueue(gate.Load,
		WithDebounce(time.Hour),
		WithSleep(rec.sleep),
	)
	t.Cleanup(q.Close)
	return q, gate, rec
}

func TestDrainFIFOOrder(t *testing.T) {
	q, _, _ := newTestQueue(t)

	var mu sync.Mutex
	var order []string
	appendOp := func(name string) Operation {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	q.Enqueue(appendOp("A"), WithID("A"))
	q.Enqueue(appendOp("B"), WithID("B"))
	q.Enqueue(appendOp("C"), WithID("C"))

	q.Drain(context.Background())

	require.Equal(t, []string{"A", "B", "C"}, order)
	assert.Equal(t, 0, q.Len())
}

func TestBackoffGrowthCapped(t *testing.T) {
	q, _, rec := newTestQueue(t)

	q.Enqueue(func(context.Context) error {
		return errors.New("boom")
	}, WithMaxAttempts(10))

	q.Drain(context.Background())

	// 10 attempts means 9 waits between them: doubling from 200ms,
	// capped at 4s.
	want := []time.Duration{
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3200 * time.Millisecond,
		4 * time.Second,
		4 * time.Second,
		4 * time.Second,
		4 * time.Second,
	}
	require.Equal(t, want, rec.recorded())
	assert.Equal(t, 0, q.Len())
}

func TestMaxAttemptsDrop(t *testing.T) {
	q, _, _ := newTestQueue(t)

	var attempts int32
	var droppedID string
	var dropErr error
	q.Enqueue(func(context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("always fails")
	},
		WithID("doomed"),
		WithMaxAttempts(3),
		WithOnDrop(func(id string, err error) {
			droppedID = id
			dropErr = err
		}),
	)

	q.Drain(context.Background())

	require.EqualValues(t, 3, atomic.LoadInt32(&attempts))
	assert.Equal(t, "doomed", droppedID)
	assert.ErrorContains(t, dropErr, "always fails")
	assert.Equal(t, 0, q.Len())

	// A later drain never sees the task again.
	q.Drain(context.Background())
	assert.EqualValues(t, 3, atomic.LoadInt32(&attempts))
}

func TestSuccessResetsBackoff(t *testing.T) {
	q, _, rec := newTestQueue(t)

	failuresA := 2
	q.Enqueue(func(context.Context) error {
		if failuresA > 0 {
			failuresA--
			return errors.New("transient")
		}
		return nil
	}, WithID("A"), WithMaxAttempts(5))

	failuresB := 1
	q.Enqueue(func(context.Context) error {
		if failuresB > 0 {
			failuresB--
			return errors.New("transient")
		}
		return nil
	}, WithID("B"), WithMaxAttempts(5))

	q.Drain(context.Background())

	// A waits 200 then 400; B starts over at 200 rather than continuing
	// from A's elevated delay.
	want := []time.Duration{
		200 * time.Millisecond,
		400 * time.Millisecond,
		200 * time.Millisecond,
	}
	require.Equal(t, want, rec.recorded())
	assert.Equal(t, 0, q.Len())
}

func TestDrainHaltsWhenGateCloses(t *testing.T) {
	q, gate, _ := newTestQueue(t)

	var ran []string
	q.Enqueue(func(context.Context) error {
		ran = append(ran, "first")
		gate.Store(false) // connectivity drops mid-drain
		return nil
	}, WithID("first"))
	q.Enqueue(func(context.Context) error {
		ran = append(ran, "second")
		return nil
	}, WithID("second"))

	q.Drain(context.Background())

	require.Equal(t, []string{"first"}, ran)
	assert.Equal(t, 1, q.Len(), "undrained remainder must stay queued")

	// Reconnect: the remainder drains on the next pass.
	gate.Store(true)
	q.Drain(context.Background())
	assert.Equal(t, []string{"first", "second"}, ran)
	assert.Equal(t, 0, q.Len())
}

func TestReentrantEnqueueSeenBySameDrain(t *testing.T) {
	q, _, _ := newTestQueue(t)

	var ran []string
	q.Enqueue(func(context.Context) error {
		ran = append(ran, "outer")
		q.Enqueue(func(context.Context) error {
			ran = append(ran, "inner")
			return nil
		}, WithID("inner"))
		return nil
	}, WithID("outer"))

	q.Drain(context.Background())

	require.Equal(t, []string{"outer", "inner"}, ran)
	assert.Equal(t, 0, q.Len())
}

func TestPanicTreatedAsFailure(t *testing.T) {
	q, _, _ := newTestQueue(t)

	var attempts int32
	q.Enqueue(func(context.Context) error {
		atomic.AddInt32(&attempts, 1)
		panic("kaboom")
	}, WithMaxAttempts(2))

	q.Drain(context.Background())

	require.EqualValues(t, 2, atomic.LoadInt32(&attempts))
	assert.Equal(t, 0, q.Len())
}

func TestSingleAttemptBudget(t *testing.T) {
	for _, maxAttempts := range []int{0, 1} {
		q, _, rec := newTestQueue(t)

		var attempts int32
		q.Enqueue(func(context.Context) error {
			atomic.AddInt32(&attempts, 1)
			return errors.New("boom")
		}, WithMaxAttempts(maxAttempts))

		q.Drain(context.Background())

		require.EqualValues(t, 1, atomic.LoadInt32(&attempts), "maxAttempts=%d", maxAttempts)
		assert.Empty(t, rec.recorded(), "no retry means no backoff wait")
		assert.Equal(t, 0, q.Len())
	}
}

func TestEnqueueWhileGatedArmsNothing(t *testing.T) {
	gate := &atomic.Bool{} // closed
	rec := &sleepRecorder{}
	q := NewQueue(gate.Load, WithDebounce(0), WithSleep(rec.sleep))
	defer q.Close()

	var ran int32
	q.Enqueue(func(context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})

	// Even with a zero debounce nothing fires while the gate is closed.
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 0, atomic.LoadInt32(&ran))
	require.Equal(t, 1, q.Len())

	// The task remains queued until an explicit trigger with the gate open.
	gate.Store(true)
	q.ScheduleDrain(true)
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&ran) == 1 && q.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestReconnectScenario(t *testing.T) {
	// Queue = [T1 always succeeds, T2 fails twice then succeeds], built up
	// while offline; going online drains both, T2 after two backoff waits.
	q, gate, rec := newTestQueue(t)
	gate.Store(false)

	var ran []string
	q.Enqueue(func(context.Context) error {
		ran = append(ran, "T1")
		return nil
	}, WithID("T1"))

	t2Failures := 2
	q.Enqueue(func(context.Context) error {
		ran = append(ran, "T2")
		if t2Failures > 0 {
			t2Failures--
			return errors.New("upstream unavailable")
		}
		return nil
	}, WithID("T2"), WithMaxAttempts(3))

	q.Drain(context.Background())
	require.Empty(t, ran, "nothing runs while offline")

	gate.Store(true)
	q.Drain(context.Background())

	require.Equal(t, []string{"T1", "T2", "T2", "T2"}, ran)
	require.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}, rec.recorded())
	assert.Equal(t, 0, q.Len())
}

func TestDrainExitRearmsForRemainingTasks(t *testing.T) {
	// A pass that ends with tasks still queued (here: its context is
	// cancelled mid-pass) must arm a follow-up drain itself; the remainder
	// cannot depend on another external trigger arriving.
	q, _, _ := newTestQueue(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var ran []string
	q.Enqueue(func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		ran = append(ran, "first")
		cancel() // ends this pass before it reaches the next task
		return nil
	}, WithID("first"))
	q.Enqueue(func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		ran = append(ran, "second")
		return nil
	}, WithID("second"))

	q.Drain(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ran) == 2 && q.Len() == 0
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, ran)
}

func TestCloseIsIdempotentAndDiscards(t *testing.T) {
	q, _, _ := newTestQueue(t)

	q.Close()
	q.Close() // second close is a no-op

	q.Enqueue(func(context.Context) error {
		t.Fatal("task on closed queue must not run")
		return nil
	})
	q.Drain(context.Background())
	assert.Equal(t, 0, q.Len())
}
