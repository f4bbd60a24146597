package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-authgate/resume-cli/credstore"
)

const requestIDHeader = "X-Request-ID"

// Doer sends one HTTP request. *retry.Client from go-httpretry satisfies it.
type Doer interface {
	DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to Doer.
type DoerFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

func (f DoerFunc) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// Pipeline attaches the current access credential to outgoing requests.
// It has no retry or refresh logic.
type Pipeline struct {
	store     credstore.Store
	transport Doer
	logger    *slog.Logger
}

// NewPipeline returns a Pipeline reading credentials from store.
func NewPipeline(store credstore.Store, transport Doer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{store: store, transport: transport, logger: logger}
}

// Send builds a request from rec, attaches the access credential read from
// the store at this moment (or none when absent) and hands it to the
// transport. The transport's response is returned unmodified together with
// the credential that was attached.
func (p *Pipeline) Send(ctx context.Context, rec Record) (*http.Response, string, error) {
	return p.send(ctx, rec, nil)
}

// send calls beforeTransport, if set, once the request is fully built and
// about to be handed to the transport.
func (p *Pipeline) send(
	ctx context.Context,
	rec Record,
	beforeTransport func(),
) (*http.Response, string, error) {
	req, token, err := p.build(ctx, rec)
	if beforeTransport != nil {
		beforeTransport()
	}
	if err != nil {
		return nil, "", err
	}

	p.logger.DebugContext(ctx, "sending request",
		slog.String("request_id", rec.ID),
		slog.String("method", rec.Method),
		slog.String("url", rec.URL),
		slog.Int("attempt", rec.Attempt),
		slog.Bool("authenticated", token != ""),
	)

	resp, err := p.transport.DoWithContext(ctx, req)
	if err != nil {
		return nil, token, &TransportError{Method: rec.Method, URL: rec.URL, Err: err}
	}
	return resp, token, nil
}

func (p *Pipeline) build(ctx context.Context, rec Record) (*http.Request, string, error) {
	req, err := http.NewRequestWithContext(ctx, rec.Method, rec.URL, rec.bodyReader())
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	if rec.Header != nil {
		req.Header = rec.Header.Clone()
	}
	req.Header.Set(requestIDHeader, rec.ID)

	token, ok, err := p.store.Get(ctx, credstore.Access)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read access credential: %w", err)
	}
	if ok {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Del("Authorization")
	}

	return req, token, nil
}
