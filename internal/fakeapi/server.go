// Package fakeapi is an in-process stand-in for the resume analysis backend.
// It issues real HS256 JWT pairs and lets tests expire access tokens, reject
// refresh tokens and count refresh calls.
package fakeapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
)

// Server holds users, resumes and analyses in memory.
type Server struct {
	secret    []byte
	accessTTL time.Duration
	pageSize  int
	rotate    bool

	mu         sync.Mutex
	generation int
	reject     bool
	users      map[string]*user
	resumes    []*resume
	analyses   []*analysis

	loginCalls   atomic.Int32
	refreshCalls atomic.Int32

	router *mux.Router
}

type user struct {
	ID       string
	Email    string
	Name     string
	Password string
}

// Option configures a Server.
type Option func(*Server)

// WithAccessTTL sets the lifetime of issued access tokens.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) { s.accessTTL = d }
}

// WithPageSize sets the resume list page size.
func WithPageSize(n int) Option {
	return func(s *Server) { s.pageSize = n }
}

// WithRotation makes the refresh endpoint return a new refresh token.
func WithRotation() Option {
	return func(s *Server) { s.rotate = true }
}

// New returns a server with no users.
func New(opts ...Option) *Server {
	s := &Server{
		secret:    []byte("fakeapi-signing-key"),
		accessTTL: 5 * time.Minute,
		pageSize:  10,
		users:     make(map[string]*user),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := mux.NewRouter()

	r.HandleFunc("/api/token/", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/token/refresh/", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/users/signup/", s.handleSignup).Methods(http.MethodPost)

	r.Handle("/users/me/", s.authenticated(s.handleMe)).Methods(http.MethodGet)

	ra := r.PathPrefix("/resume-analysis").Subrouter()
	ra.Handle("/resumes/", s.authenticated(s.handleListResumes)).Methods(http.MethodGet)
	ra.Handle("/resumes/{id}/", s.authenticated(s.handleGetResume)).Methods(http.MethodGet)
	ra.Handle("/resumes/{id}/", s.authenticated(s.handleDeleteResume)).Methods(http.MethodDelete)
	ra.Handle("/analyses/", s.authenticated(s.handleListAnalyses)).Methods(http.MethodGet)
	ra.Handle("/analyze/", s.authenticated(s.handleAnalyze)).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// AddUser registers an account and returns its ID.
func (s *Server) AddUser(email, name, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(email, name, password).ID
}

// ExpireAccessTokens invalidates every access token issued so far.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// RejectRefresh makes the refresh endpoint refuse every token.
func (s *Server) RejectRefresh(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject = reject
}

// RefreshCalls returns how many times the refresh endpoint was hit.
func (s *Server) RefreshCalls() int {
	return int(s.refreshCalls.Load())
}

// LoginCalls returns how many times the login endpoint was hit.
func (s *Server) LoginCalls() int {
	return int(s.loginCalls.Load())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}
