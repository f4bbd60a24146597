package session

import (
	"context"
	"io"
	"log/slog"
	"net/http"
)

// Executor replays a request once a fresh credential is available.
type Executor struct {
	pipeline *Pipeline
	observer Observer
	logger   *slog.Logger
}

// NewExecutor replays through pipeline.
func NewExecutor(pipeline *Pipeline, observer Observer, logger *slog.Logger) *Executor {
	if observer == nil {
		observer = NopObserver{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{pipeline: pipeline, observer: observer, logger: logger}
}

// Resubmit sends rec.Next() through the pipeline exactly once. The access
// credential is read from the store at replay time, not taken from rec.
// dispatched, if set, is called once the replay is about to reach the
// transport.
//
// The outcome is final: a transport failure returns *TransportError and
// another 401 returns *RetryExhaustedError. Neither goes back to the
// coordinator.
func (e *Executor) Resubmit(
	ctx context.Context,
	rec Record,
	dispatched func(),
) (*http.Response, error) {
	next := rec.Next()

	resp, _, err := e.pipeline.send(ctx, next, func() {
		e.observer.Replaying(next.ID, next.Attempt)
		if dispatched != nil {
			dispatched()
		}
	})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drainAndClose(resp)
		e.logger.WarnContext(ctx, "replay rejected again",
			slog.String("request_id", next.ID),
			slog.Int("attempt", next.Attempt),
		)
		return nil, &RetryExhaustedError{
			RequestID:  next.ID,
			Method:     next.Method,
			URL:        next.URL,
			StatusCode: resp.StatusCode,
		}
	}

	return resp, nil
}

// drainAndClose lets the connection be reused after a discarded response.
func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
