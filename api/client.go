// Package api is a typed client for the resume analysis backend. Every call
// goes through a session.Client, so expired access tokens are refreshed and
// the request replayed without the caller noticing.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/go-authgate/resume-cli/credstore"
	"github.com/go-authgate/resume-cli/session"
)

const (
	mePath        = "/users/me/"
	resumesPath   = "/resume-analysis/resumes/"
	analysesPath  = "/resume-analysis/analyses/"
	analyzePath   = "/resume-analysis/analyze/"
	maxPages      = 100
	maxBodyLength = 10 << 20
)

// Client calls the backend rooted at a base URL.
type Client struct {
	base    *url.URL
	session *session.Client
}

// New returns a Client for baseURL.
func New(baseURL string, sc *session.Client) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", baseURL)
	}
	return &Client{base: base, session: sc}, nil
}

// URL resolves path against the base URL.
func (c *Client) URL(path string) string {
	u := *c.base
	u.Path = c.base.Path + path
	return u.String()
}

// Login exchanges email and password for a credential pair and stores it.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var tok tokenResponse
	err := c.doJSON(ctx, http.MethodPost, c.URL(session.DefaultLoginPath),
		map[string]string{"email": email, "password": password}, &tok)
	if err != nil {
		return nil, err
	}
	if tok.Access == "" || tok.Refresh == "" {
		return nil, fmt.Errorf("login response is missing tokens")
	}

	store := c.session.Store()
	if err := store.Set(ctx, credstore.Access, tok.Access); err != nil {
		return nil, fmt.Errorf("failed to store access token: %w", err)
	}
	if err := store.Set(ctx, credstore.Refresh, tok.Refresh); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	token := &oauth2.Token{
		AccessToken:  tok.Access,
		RefreshToken: tok.Refresh,
		TokenType:    "Bearer",
	}
	if expiry, err := TokenExpiry(tok.Access); err == nil {
		token.Expiry = expiry
	}

	return &LoginResult{
		Token: token,
		User:  User{Email: tok.Email, Name: tok.Name},
	}, nil
}

// Signup creates an account. It does not log in.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*User, error) {
	var user User
	if err := c.doJSON(ctx, http.MethodPost, c.URL(session.DefaultSignupPath), req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout forgets both credentials.
func (c *Client) Logout(ctx context.Context) error {
	return c.session.Logout(ctx)
}

// Me returns the logged-in user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.doJSON(ctx, http.MethodGet, c.URL(mePath), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListResumes returns every resume of the current user, following the
// pagination links. A plain JSON array is accepted as a single page.
func (c *Client) ListResumes(ctx context.Context) ([]Resume, error) {
	return listAll[Resume](ctx, c, c.URL(resumesPath))
}

// GetResume returns one resume with its latest analysis.
func (c *Client) GetResume(ctx context.Context, id string) (*Resume, error) {
	var res Resume
	if err := c.doJSON(ctx, http.MethodGet, c.URL(resumesPath+url.PathEscape(id)+"/"), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteResume removes a resume and all of its analyses.
func (c *Client) DeleteResume(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, c.URL(resumesPath+url.PathEscape(id)+"/"), nil, nil)
}

// ListAnalyses returns the analyses of all the user's resumes, newest first.
func (c *Client) ListAnalyses(ctx context.Context) ([]Analysis, error) {
	return listAll[Analysis](ctx, c, c.URL(analysesPath))
}

func listAll[T any](ctx context.Context, c *Client, next string) ([]T, error) {
	var all []T
	for range maxPages {
		body, err := c.fetch(ctx, http.MethodGet, next, nil, "")
		if err != nil {
			return nil, err
		}

		trimmed := bytes.TrimSpace(body)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var items []T
			if err := json.Unmarshal(trimmed, &items); err != nil {
				return nil, fmt.Errorf("failed to parse list response: %w", err)
			}
			return append(all, items...), nil
		}

		var p page[T]
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return nil, fmt.Errorf("failed to parse page: %w", err)
		}
		all = append(all, p.Results...)

		if p.Next == nil || *p.Next == "" {
			return all, nil
		}
		if next, err = c.resolve(*p.Next); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("pagination did not end after %d pages", maxPages)
}

// resolve turns a pagination link into an absolute URL.
func (c *Client) resolve(link string) (string, error) {
	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("invalid pagination link %q: %w", link, err)
	}
	return c.base.ResolveReference(ref).String(), nil
}

// doJSON sends in as a JSON body (when non-nil) and decodes the answer into
// out (when non-nil).
func (c *Client) doJSON(ctx context.Context, method, rawURL string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	data, err := c.fetch(ctx, method, rawURL, body, contentType)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", rawURL, err)
	}
	return nil
}

// fetch returns the body of a 2xx answer, or *APIError.
func (c *Client) fetch(
	ctx context.Context,
	method, rawURL string,
	body io.Reader,
	contentType string,
) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.session.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyLength))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp.StatusCode, data)
	}
	return data, nil
}
