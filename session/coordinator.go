package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-authgate/resume-cli/credstore"
)

// DefaultRefreshTimeout bounds the single refresh call shared by all waiters.
const DefaultRefreshTimeout = 10 * time.Second

type state int

const (
	stateIdle       state = iota
	stateRefreshing       // one refresh call outstanding, queue accepting waiters
)

// outcome is what a waiter receives when its refresh settles.
type outcome struct {
	token string
	err   error
}

// waiter is one request parked behind a refresh. result is buffered so the
// coordinator never blocks delivering it; dispatched is closed once the
// waiter's replay has been built with the fresh credential.
type waiter struct {
	rec        Record
	result     chan outcome
	dispatched chan struct{}
	once       sync.Once
}

func newWaiter(rec Record) *waiter {
	return &waiter{
		rec:        rec,
		result:     make(chan outcome, 1),
		dispatched: make(chan struct{}),
	}
}

// ack signals that the replay has been handed off. Safe to call repeatedly.
func (w *waiter) ack() {
	w.once.Do(func() { close(w.dispatched) })
}

// refreshCall is the in-flight refresh and its ordered waiter queue. It
// exists exactly while the coordinator is in stateRefreshing.
type refreshCall struct {
	waiters []*waiter
}

// Coordinator makes sure at most one refresh call is in flight and fans its
// result out to every request that found its credential expired.
type Coordinator struct {
	store     credstore.Store
	refresher *Refresher
	observer  Observer
	logger    *slog.Logger
	timeout   time.Duration

	mu    sync.Mutex
	state state
	call  *refreshCall
}

// NewCoordinator returns an idle coordinator.
func NewCoordinator(
	store credstore.Store,
	refresher *Refresher,
	observer Observer,
	logger *slog.Logger,
	timeout time.Duration,
) *Coordinator {
	if observer == nil {
		observer = NopObserver{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	return &Coordinator{
		store:     store,
		refresher: refresher,
		observer:  observer,
		logger:    logger,
		timeout:   timeout,
	}
}

// Refreshing reports whether a refresh call is in flight.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateRefreshing
}

// await parks rec until a fresh access credential is available or the
// session is terminated. sentToken is the credential rec was rejected with.
//
// Idle: if the store already holds a different access credential, a refresh
// finished after rec was sent and the waiter is released at once. Otherwise
// the coordinator enters stateRefreshing with rec as the first waiter and
// starts the refresh. Refreshing: rec joins the end of the queue.
func (c *Coordinator) await(ctx context.Context, rec Record, sentToken string) *waiter {
	w := newWaiter(rec)

	c.mu.Lock()
	if c.state == stateRefreshing {
		c.call.waiters = append(c.call.waiters, w)
		position := len(c.call.waiters)
		c.mu.Unlock()

		c.logger.DebugContext(ctx, "joined in-flight refresh",
			slog.String("request_id", rec.ID),
			slog.Int("position", position),
		)
		c.observer.RefreshQueued(rec.ID, position)
		return w
	}

	// read under the lock so a refresh cannot complete unseen before the
	// state change below
	current, ok, err := c.store.Get(ctx, credstore.Access)
	if err == nil && ok && current != sentToken {
		c.mu.Unlock()

		c.logger.DebugContext(ctx, "credential already refreshed",
			slog.String("request_id", rec.ID),
		)
		w.result <- outcome{token: current}
		return w
	}

	c.state = stateRefreshing
	c.call = &refreshCall{waiters: []*waiter{w}}
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "access credential expired, refreshing",
		slog.String("request_id", rec.ID),
	)

	go c.refresh(context.WithoutCancel(ctx), rec.ID)
	return w
}

// refresh runs the single refresh call and settles the queue. starter is
// the request that triggered it.
func (c *Coordinator) refresh(ctx context.Context, starter string) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	token, err := c.obtain(ctx, starter)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	c.succeed(ctx, token)
}

// obtain reads the refresh credential and exchanges it. No network call is
// made and no refresh is reported started when the credential is absent.
func (c *Coordinator) obtain(ctx context.Context, starter string) (string, error) {
	refreshToken, ok, err := c.store.Get(ctx, credstore.Refresh)
	if err != nil {
		return "", fmt.Errorf("failed to read refresh credential: %w", err)
	}
	if !ok {
		return "", ErrNoRefreshCredential
	}

	c.observer.RefreshStarted(starter)
	creds, err := c.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		return "", err
	}

	if err := c.store.Set(ctx, credstore.Access, creds.Access); err != nil {
		return "", fmt.Errorf("failed to store access credential: %w", err)
	}
	if creds.Refresh != "" && creds.Refresh != refreshToken {
		if err := c.store.Set(ctx, credstore.Refresh, creds.Refresh); err != nil {
			return "", fmt.Errorf("failed to store rotated refresh credential: %w", err)
		}
	}
	return creds.Access, nil
}

// detach takes the queue and returns the coordinator to idle.
func (c *Coordinator) detach() []*waiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	waiters := c.call.waiters
	c.call = nil
	c.state = stateIdle
	return waiters
}

// succeed releases the waiters in arrival order. Each release waits until
// that waiter's replay has been built before releasing the next, so replays
// leave in queue order. The coordinator is idle again before the hand-off
// starts: requests rejected from here on see the new credential in the
// store and are released without a second refresh.
func (c *Coordinator) succeed(ctx context.Context, token string) {
	waiters := c.detach()
	for _, w := range waiters {
		w.result <- outcome{token: token}
		<-w.dispatched
	}

	c.logger.InfoContext(ctx, "access credential refreshed",
		slog.Int("released", len(waiters)),
	)
	c.observer.RefreshSucceeded(len(waiters))
}

// fail clears the store, rejects every waiter and then reports the
// terminated session exactly once. The store is cleared while still
// refreshing so that late arrivals join the queue being rejected.
func (c *Coordinator) fail(ctx context.Context, cause error) {
	rejection := terminated(cause)

	// the refresh deadline may already be spent; clearing must still happen
	if err := c.store.Clear(context.WithoutCancel(ctx)); err != nil {
		c.logger.ErrorContext(ctx, "failed to clear credentials",
			slog.String("error", err.Error()),
		)
	}

	waiters := c.detach()
	for _, w := range waiters {
		w.result <- outcome{err: rejection}
	}

	c.logger.WarnContext(ctx, "session terminated",
		slog.Int("rejected", len(waiters)),
		slog.String("error", cause.Error()),
	)
	c.observer.SessionTerminated(rejection)
}
