// Package metrics counts session events with Prometheus collectors. A CLI
// run is short-lived, so the counters are written to a node_exporter
// textfile instead of being scraped.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-authgate/resume-cli/session"
)

const namespace = "resume_cli"

// Observer is a session.Observer backed by Prometheus counters.
type Observer struct {
	registry *prometheus.Registry

	refreshes   *prometheus.CounterVec
	queued      prometheus.Counter
	released    prometheus.Counter
	replays     prometheus.Counter
	terminated  *prometheus.CounterVec
	queueLength prometheus.Histogram
}

// NewObserver registers its collectors on a fresh registry.
func NewObserver() *Observer {
	o := &Observer{
		registry: prometheus.NewRegistry(),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Token refresh calls by outcome.",
		}, []string{"outcome"}),
		queued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_waiters_total",
			Help:      "Requests that joined an in-flight refresh.",
		}),
		released: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_released_total",
			Help:      "Requests released for replay after a successful refresh.",
		}),
		replays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replays_total",
			Help:      "Requests sent again with a refreshed access token.",
		}),
		terminated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_terminated_total",
			Help:      "Sessions ended by a failed refresh, by reason.",
		}, []string{"reason"}),
		queueLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_queue_length",
			Help:      "Requests released per successful refresh.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32},
		}),
	}

	o.registry.MustRegister(
		o.refreshes,
		o.queued,
		o.released,
		o.replays,
		o.terminated,
		o.queueLength,
	)
	return o
}

// Registry returns the registry holding the session collectors.
func (o *Observer) Registry() *prometheus.Registry {
	return o.registry
}

// WriteTextfile writes the current values in the text exposition format.
func (o *Observer) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, o.registry)
}

func (o *Observer) RefreshStarted(string) {
	o.refreshes.WithLabelValues("started").Inc()
}

func (o *Observer) RefreshQueued(string, int) {
	o.queued.Inc()
}

func (o *Observer) RefreshSucceeded(released int) {
	o.refreshes.WithLabelValues("succeeded").Inc()
	o.released.Add(float64(released))
	o.queueLength.Observe(float64(released))
}

func (o *Observer) Replaying(string, int) {
	o.replays.Inc()
}

// SessionTerminated counts a failed refresh only when a refresh call was
// started; a missing refresh credential ends the session without one.
func (o *Observer) SessionTerminated(err error) {
	r := reason(err)
	if r != "no_refresh_token" {
		o.refreshes.WithLabelValues("failed").Inc()
	}
	o.terminated.WithLabelValues(r).Inc()
}

func reason(err error) string {
	switch {
	case errors.Is(err, session.ErrNoRefreshCredential):
		return "no_refresh_token"
	case errors.Is(err, session.ErrRefreshRejected):
		return "refresh_rejected"
	default:
		var transportErr *session.TransportError
		if errors.As(err, &transportErr) {
			return "transport"
		}
		return "other"
	}
}
