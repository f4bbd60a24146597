package fakeapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	purposeAccess  = "access"
	purposeRefresh = "refresh"

	refreshTTL = 24 * time.Hour
)

type claims struct {
	jwt.RegisteredClaims
	TokenType  string `json:"token_type"`
	UserID     string `json:"user_id"`
	Generation int    `json:"gen"`
}

type userKey struct{}

func (s *Server) addUserLocked(email, name, password string) *user {
	u := &user{
		ID:       uuid.NewString(),
		Email:    email,
		Name:     name,
		Password: password,
	}
	s.users[strings.ToLower(email)] = u
	return u
}

func (s *Server) mint(u *user, purpose string, generation int) (string, error) {
	ttl := s.accessTTL
	if purpose == purposeRefresh {
		ttl = refreshTTL
	}

	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		TokenType:  purpose,
		UserID:     u.ID,
		Generation: generation,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

func (s *Server) parse(tokenString, purpose string) (*claims, error) {
	c := &claims{}
	token, err := jwt.ParseWithClaims(tokenString, c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || c.TokenType != purpose {
		return nil, errors.New("wrong token type")
	}
	return c, nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.loginCalls.Add(1)

	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error."})
		return
	}

	s.mu.Lock()
	u, ok := s.users[strings.ToLower(body.Email)]
	generation := s.generation
	s.mu.Unlock()

	if !ok || u.Password != body.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "No active account found with the given credentials",
		})
		return
	}

	access, err := s.mint(u, purposeAccess, generation)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, nil)
		return
	}
	refresh, err := s.mint(u, purposeRefresh, 0)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"access":  access,
		"refresh": refresh,
		"email":   u.Email,
		"name":    u.Name,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Refresh == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{
			"refresh": {"This field is required."},
		})
		return
	}

	s.mu.Lock()
	reject := s.reject
	generation := s.generation
	s.mu.Unlock()

	c, err := s.parse(body.Refresh, purposeRefresh)
	if reject || err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}

	u, ok := s.userByID(c.UserID)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "User not found",
			"code":   "user_not_found",
		})
		return
	}

	access, err := s.mint(u, purposeAccess, generation)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, nil)
		return
	}
	resp := map[string]string{"access": access}
	if s.rotate {
		if resp["refresh"], err = s.mint(u, purposeRefresh, 0); err != nil {
			writeJSON(w, http.StatusInternalServerError, nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error."})
		return
	}

	fieldErrors := map[string][]string{}
	if body.Email == "" {
		fieldErrors["email"] = []string{"This field is required."}
	}
	if body.Name == "" {
		fieldErrors["name"] = []string{"This field is required."}
	}
	if len(body.Password) < 8 {
		fieldErrors["password"] = []string{"Ensure this field has at least 8 characters."}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[strings.ToLower(body.Email)]; exists && body.Email != "" {
		fieldErrors["email"] = []string{"user with this email already exists."}
	}
	if len(fieldErrors) > 0 {
		writeJSON(w, http.StatusBadRequest, fieldErrors)
		return
	}

	u := s.addUserLocked(body.Email, body.Name, body.Password)
	writeJSON(w, http.StatusCreated, map[string]string{"email": u.Email, "name": u.Name})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	writeJSON(w, http.StatusOK, map[string]string{
		"id":    u.ID,
		"email": u.Email,
		"name":  u.Name,
	})
}

// authenticated rejects requests without a current access token, the way
// SimpleJWT's authentication class answers.
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Authentication credentials were not provided.",
			})
			return
		}

		c, err := s.parse(tokenString, purposeAccess)
		s.mu.Lock()
		stale := err == nil && c.Generation != s.generation
		s.mu.Unlock()
		if err != nil || stale {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}

		u, found := s.userByID(c.UserID)
		if !found {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "User not found",
				"code":   "user_not_found",
			})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
	})
}

func (s *Server) userByID(id string) (*user, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return nil, false
}

func currentUser(r *http.Request) *user {
	u, _ := r.Context().Value(userKey{}).(*user)
	return u
}
