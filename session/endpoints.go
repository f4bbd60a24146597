package session

import (
	"net/url"
	"strings"
)

// Default paths of the credential endpoints, relative to the API base URL.
const (
	DefaultLoginPath   = "/api/token/"
	DefaultRefreshPath = "/api/token/refresh/"
	DefaultSignupPath  = "/users/signup/"
)

// AuthEndpoints identifies the endpoints that issue credentials. A 401 from
// one of them is a terminal answer for the caller and never starts a
// refresh, which would otherwise recurse against the endpoint that issues
// the credentials.
type AuthEndpoints struct {
	paths []string
}

// NewAuthEndpoints matches any request whose path ends with one of paths.
func NewAuthEndpoints(paths ...string) AuthEndpoints {
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = normalizePath(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return AuthEndpoints{paths: cleaned}
}

// DefaultAuthEndpoints covers login, refresh and signup.
func DefaultAuthEndpoints() AuthEndpoints {
	return NewAuthEndpoints(DefaultLoginPath, DefaultRefreshPath, DefaultSignupPath)
}

// Match reports whether rawURL addresses a credential endpoint.
func (a AuthEndpoints) Match(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := normalizePath(u.Path)
	for _, p := range a.paths {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

// with returns a copy that also matches the given paths.
func (a AuthEndpoints) with(paths ...string) AuthEndpoints {
	return NewAuthEndpoints(append(append([]string{}, a.paths...), paths...)...)
}

// normalizePath trims the trailing slash so "/api/token" and "/api/token/"
// compare equal.
func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

// pathOf returns the path component of rawURL, or rawURL itself when it does
// not parse.
func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}
