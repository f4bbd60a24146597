// Package session provides an HTTP client that keeps an authenticated
// session alive.
//
// Every request goes through a Pipeline that attaches the current access
// credential. When a request is rejected with 401, the Coordinator either
// starts the single refresh call or parks the request behind the one already
// in flight; once the refresh settles, the Executor replays each parked
// request exactly once, in the order they were parked. A failed refresh
// clears the credentials, rejects every parked request with ErrAuthRequired
// and notifies the Observer.
package session

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-authgate/resume-cli/credstore"
)

// Client is the session-aware HTTP client.
type Client struct {
	store       credstore.Store
	pipeline    *Pipeline
	coordinator *Coordinator
	executor    *Executor
	endpoints   AuthEndpoints
	logger      *slog.Logger
}

type options struct {
	refreshURL     string
	endpoints      AuthEndpoints
	observer       Observer
	logger         *slog.Logger
	refreshTimeout time.Duration
}

// Option configures a Client.
type Option func(*options)

// WithRefreshURL sets the absolute URL of the refresh endpoint.
func WithRefreshURL(u string) Option {
	return func(o *options) { o.refreshURL = u }
}

// WithAuthEndpoints replaces the default credential endpoint paths. The
// refresh URL is always treated as a credential endpoint.
func WithAuthEndpoints(endpoints AuthEndpoints) Option {
	return func(o *options) { o.endpoints = endpoints }
}

// WithObserver registers the receiver of session events.
func WithObserver(observer Observer) Option {
	return func(o *options) { o.observer = observer }
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRefreshTimeout bounds the refresh call.
func WithRefreshTimeout(d time.Duration) Option {
	return func(o *options) { o.refreshTimeout = d }
}

// New wires the pipeline, coordinator and executor around store and
// transport.
func New(store credstore.Store, transport Doer, opts ...Option) *Client {
	o := options{
		endpoints:      DefaultAuthEndpoints(),
		observer:       NopObserver{},
		logger:         slog.New(slog.DiscardHandler),
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	endpoints := o.endpoints
	if o.refreshURL != "" {
		endpoints = endpoints.with(pathOf(o.refreshURL))
	}

	pipeline := NewPipeline(store, transport, o.logger)
	refresher := NewRefresher(transport, o.refreshURL)

	return &Client{
		store:       store,
		pipeline:    pipeline,
		coordinator: NewCoordinator(store, refresher, o.observer, o.logger, o.refreshTimeout),
		executor:    NewExecutor(pipeline, o.observer, o.logger),
		endpoints:   endpoints,
		logger:      o.logger,
	}
}

// Store returns the credential store the client reads from.
func (c *Client) Store() credstore.Store {
	return c.store
}

// Refreshing reports whether a refresh call is in flight.
func (c *Client) Refreshing() bool {
	return c.coordinator.Refreshing()
}

// Do sends req with the current access credential.
//
// Responses other than 401, and every response from a credential endpoint,
// are returned untouched (including 401 from login or refresh). A 401 from
// any other endpoint on a first attempt waits for a refresh and returns the
// outcome of the single replay. A request waiting on a refresh is not
// abandoned when ctx is cancelled; it is released or rejected when the
// refresh settles.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	rec, err := NewRecord(req)
	if err != nil {
		return nil, err
	}

	resp, sentToken, err := c.pipeline.Send(ctx, rec)
	if err != nil {
		return nil, err
	}
	if !c.intercepts(rec, resp) {
		return resp, nil
	}
	drainAndClose(resp)

	w := c.coordinator.await(ctx, rec, sentToken)
	defer w.ack()

	res := <-w.result
	if res.err != nil {
		return nil, res.err
	}
	return c.executor.Resubmit(ctx, rec, w.ack)
}

// intercepts reports whether resp means rec's access credential expired and
// rec may still be replayed.
func (c *Client) intercepts(rec Record, resp *http.Response) bool {
	return resp.StatusCode == http.StatusUnauthorized &&
		!rec.Replayed() &&
		!c.endpoints.Match(rec.URL)
}

// Logout removes both credentials from the store.
func (c *Client) Logout(ctx context.Context) error {
	return c.store.Clear(ctx)
}
