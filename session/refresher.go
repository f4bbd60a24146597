package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// errorResponse covers both OAuth-style and DRF/SimpleJWT error bodies.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Detail           string `json:"detail"`
	Code             string `json:"code"`
}

// Credentials is what a successful refresh returns. Refresh is empty unless
// the server rotates refresh credentials.
type Credentials struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// Refresher exchanges a refresh credential for a new access credential. It
// talks to the transport directly: the expired access credential is never
// attached to the refresh call.
type Refresher struct {
	transport Doer
	url       string
}

// NewRefresher posts to refreshURL.
func NewRefresher(transport Doer, refreshURL string) *Refresher {
	return &Refresher{transport: transport, url: refreshURL}
}

// URL returns the refresh endpoint.
func (r *Refresher) URL() string {
	return r.url
}

// Refresh performs exactly one refresh call.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	payload, err := json.Marshal(map[string]string{"refresh": refreshToken})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.transport.DoWithContext(ctx, req)
	if err != nil {
		return nil, &TransportError{Method: http.MethodPost, URL: r.url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyRefreshFailure(resp, body)
	}

	var creds Credentials
	if err := json.Unmarshal(body, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse refresh response: %w", err)
	}
	if creds.Access == "" {
		return nil, errors.New("invalid refresh response: access token is empty")
	}

	return &creds, nil
}

// classifyRefreshFailure maps a non-200 refresh answer to ErrRefreshRejected
// when the server refused the credential itself, keeping the raw answer
// reachable through *oauth2.RetrieveError.
func classifyRefreshFailure(resp *http.Response, body []byte) error {
	retrieveErr := &oauth2.RetrieveError{Response: resp, Body: body}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		retrieveErr.ErrorCode = errResp.Error
		if retrieveErr.ErrorCode == "" {
			retrieveErr.ErrorCode = errResp.Code
		}
		retrieveErr.ErrorDescription = errResp.ErrorDescription
		if retrieveErr.ErrorDescription == "" {
			retrieveErr.ErrorDescription = errResp.Detail
		}
	}

	switch retrieveErr.ErrorCode {
	case "invalid_grant", "invalid_token", "token_not_valid":
		return fmt.Errorf("%w: %w", ErrRefreshRejected, retrieveErr)
	}

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrRefreshRejected, retrieveErr)
	}

	return fmt.Errorf("refresh failed with status %d: %w", resp.StatusCode, retrieveErr)
}
