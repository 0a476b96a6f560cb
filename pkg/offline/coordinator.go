package offline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/guido-cesarano/tripsync/pkg/connectivity"
	"github.com/guido-cesarano/tripsync/pkg/kvstore"
	"github.com/guido-cesarano/tripsync/pkg/logger"
)

// Store keys. The override flag survives restarts so a user who forced
// offline mode stays offline after an app relaunch.
const (
	keyOfflineMode = "offline_mode"
	keyLastOnline  = "last_online"
)

// Coordinator owns the device's offline state: the last computed
// connectivity status, the manual offline override, the last-known-online
// timestamp, and the retry queue. It is the single gate deciding whether
// deferred work may reach the network.
//
// Construct one Coordinator at startup and pass it to consumers; there is
// deliberately no package-level singleton.
type Coordinator struct {
	store     kvstore.Store
	source    connectivity.Source
	queue     *Queue
	queueOpts []QueueOption
	log       zerolog.Logger
	now       func() time.Time

	mu           sync.Mutex
	status       connectivity.Status
	override     bool
	lastOnline   time.Time
	hasOnline    bool
	initialized  bool
	initializing bool
	disposed     bool
	sub         connectivity.Subscription
	subscribers map[int]chan connectivity.Status
	nextSubID   int

	ctx    context.Context
	cancel context.CancelFunc
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithQueueOptions forwards options to the coordinator's retry queue.
func WithQueueOptions(opts ...QueueOption) Option {
	return func(c *Coordinator) { c.queueOpts = append(c.queueOpts, opts...) }
}

// WithClock replaces the time source. Tests use this to pin lastOnlineAt.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a Coordinator over the given store and connectivity source.
// Call Init before use and Dispose when done.
func New(store kvstore.Store, source connectivity.Source, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		store:       store,
		source:      source,
		log:         logger.With("coordinator"),
		now:         time.Now,
		status:      connectivity.StatusUnknown,
		subscribers: make(map[int]chan connectivity.Status),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.queue = NewQueue(c.CanGoOnline, c.queueOpts...)
	return c
}

// Init restores persisted state, seeds the status with a one-shot
// connectivity check, and subscribes to changes. It is idempotent: repeat
// and concurrent calls are no-ops while one call is underway or after one
// has succeeded. Errors from the platform source propagate so startup fails
// fast rather than running with a blind coordinator; a failed Init may be
// retried.
func (c *Coordinator) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.initialized || c.initializing || c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.initializing = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.initializing = false
		c.mu.Unlock()
	}()

	override, found, err := c.store.GetBool(ctx, keyOfflineMode)
	if err != nil {
		return fmt.Errorf("failed to restore offline mode: %w", err)
	}
	if !found {
		override = false
	}

	lastOnline, hasOnline, err := c.store.GetCacheTimestamp(ctx, keyLastOnline)
	if err != nil {
		return fmt.Errorf("failed to restore last-online timestamp: %w", err)
	}

	tags, err := c.source.Check(ctx)
	if err != nil {
		return fmt.Errorf("initial connectivity check failed: %w", err)
	}
	status := connectivity.Classify(tags)

	sub, err := c.source.Subscribe(c.onConnectivityChanged)
	if err != nil {
		return fmt.Errorf("failed to subscribe to connectivity changes: %w", err)
	}

	c.mu.Lock()
	c.override = override
	c.lastOnline = lastOnline
	c.hasOnline = hasOnline
	c.status = status
	c.sub = sub
	c.initialized = true
	c.mu.Unlock()

	connectivityStatus.Set(float64(status))
	setOverrideGauge(override)

	c.log.Info().
		Stringer("status", status).
		Bool("offline_mode", override).
		Msg("Offline coordinator initialized")
	return nil
}

// onConnectivityChanged recomputes the status from a fresh tag batch,
// publishes it, and on a transition into Online records the timestamp and
// triggers an immediate drain unless the manual override blocks it.
func (c *Coordinator) onConnectivityChanged(tags []connectivity.Technology) {
	newStatus := connectivity.Classify(tags)

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	prev := c.status
	c.status = newStatus
	wentOnline := prev != connectivity.StatusOnline && newStatus == connectivity.StatusOnline
	if wentOnline {
		c.lastOnline = c.now()
		c.hasOnline = true
	}
	override := c.override
	lastOnline := c.lastOnline
	c.mu.Unlock()

	connectivityStatus.Set(float64(newStatus))
	c.publish(newStatus)

	c.log.Info().
		Stringer("from", prev).
		Stringer("to", newStatus).
		Msg("Connectivity changed")

	if wentOnline {
		if err := c.store.SetCacheTimestamp(c.ctx, keyLastOnline, lastOnline); err != nil {
			c.log.Error().Err(err).Msg("Failed to persist last-online timestamp")
		}
		if !override {
			c.queue.ScheduleDrain(true)
		}
	}
}

// Recheck performs a one-shot connectivity check and applies the result as
// if the platform had reported it, so a missed platform event cannot leave
// the status stale. An unchanged status is not re-published. Before Init and
// after Dispose it is a no-op.
func (c *Coordinator) Recheck(ctx context.Context) error {
	c.mu.Lock()
	if !c.initialized || c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	tags, err := c.source.Check(ctx)
	if err != nil {
		return fmt.Errorf("connectivity recheck failed: %w", err)
	}
	if connectivity.Classify(tags) == c.Status() {
		return nil
	}
	c.onConnectivityChanged(tags)
	return nil
}

// SetOfflineMode toggles the manual "pretend offline" override and persists
// it. Enabling the override closes the gate regardless of real connectivity;
// disabling it while online triggers an immediate drain.
func (c *Coordinator) SetOfflineMode(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.override = enabled
	c.mu.Unlock()

	setOverrideGauge(enabled)

	if err := c.store.SetBool(ctx, keyOfflineMode, enabled); err != nil {
		return fmt.Errorf("failed to persist offline mode: %w", err)
	}

	c.log.Info().Bool("offline_mode", enabled).Msg("Offline mode changed")

	if c.CanGoOnline() {
		c.queue.ScheduleDrain(true)
	}
	return nil
}

// Status returns the last computed connectivity status.
func (c *Coordinator) Status() connectivity.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// CanGoOnline reports whether deferred work may hit the network. Always
// computed from the current status and override, never cached.
func (c *Coordinator) CanGoOnline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == connectivity.StatusOnline && !c.override
}

// IsOfflineMode reports whether the manual override is active.
func (c *Coordinator) IsOfflineMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.override
}

// LastOnlineAt returns the most recent transition into Online. ok is false
// if the device has never been observed online.
func (c *Coordinator) LastOnlineAt() (t time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOnline, c.hasOnline
}

// Staleness reports how long ago the device was last confirmed online.
// ok is false if it never was; callers should then treat all cached data
// as stale.
func (c *Coordinator) Staleness() (d time.Duration, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasOnline {
		return 0, false
	}
	return c.now().Sub(c.lastOnline), true
}

// Queue returns the coordinator's retry queue.
func (c *Coordinator) Queue() *Queue {
	return c.queue
}

// Subscribe registers a listener for status changes. The returned channel
// receives every future status the coordinator publishes; there is no
// replay of past events. The returned func unsubscribes and closes the
// channel. A subscriber that falls behind misses updates rather than
// blocking publication.
func (c *Coordinator) Subscribe() (<-chan connectivity.Status, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	ch := make(chan connectivity.Status, 8)
	if c.disposed {
		close(ch)
		return ch, func() {}
	}
	c.subscribers[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(sub)
		}
	}
}

// publish fans a status out to all current subscribers without blocking.
func (c *Coordinator) publish(status connectivity.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subscribers {
		select {
		case ch <- status:
		default:
		}
	}
}

// Dispose cancels the connectivity subscription, closes the retry queue and
// all subscriber channels. Safe to call more than once; only the first call
// does anything.
func (c *Coordinator) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	sub := c.sub
	c.sub = nil
	subs := c.subscribers
	c.subscribers = make(map[int]chan connectivity.Status)
	c.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	c.queue.Close()
	c.cancel()
	for _, ch := range subs {
		close(ch)
	}

	c.log.Info().Msg("Offline coordinator disposed")
}

func setOverrideGauge(enabled bool) {
	if enabled {
		offlineMode.Set(1)
	} else {
		offlineMode.Set(0)
	}
}
