// Package credstore persists the access and refresh credentials of a session.
//
// A Store is a dumb key/value surface: it performs no validation of token
// contents and every write is visible to the next read. Backends are selected
// by name through Open.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind names one of the two credentials held by a Store.
type Kind string

const (
	// Access is the short-lived bearer credential attached to requests.
	Access Kind = "access"
	// Refresh is the long-lived credential used to obtain a new access credential.
	Refresh Kind = "refresh"
)

// Kinds lists every credential kind, in the order backends persist them.
var Kinds = []Kind{Access, Refresh}

// ErrUnknownKind is returned when a Kind other than Access or Refresh is used.
var ErrUnknownKind = errors.New("unknown credential kind")

// Store holds the current credentials of one session.
type Store interface {
	// Get returns the current token of the given kind. ok is false when the
	// credential is absent.
	Get(ctx context.Context, kind Kind) (token string, ok bool, err error)

	// Set overwrites the token of the given kind. An empty token removes it.
	Set(ctx context.Context, kind Kind, token string) error

	// Clear removes both credentials.
	Clear(ctx context.Context) error
}

// Closer is implemented by backends holding resources (database handles,
// network connections) that must be released.
type Closer interface {
	Close() error
}

func validKind(kind Kind) error {
	switch kind {
	case Access, Refresh:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}
}

// Config selects and parameterizes a backend.
type Config struct {
	Backend string // file, bolt, redis or memory
	Profile string // namespace inside the backend, usually the API base URL

	TokenFile string
	BoltPath  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open returns the backend named by cfg.Backend.
func Open(cfg Config) (Store, error) {
	if cfg.Profile == "" {
		return nil, errors.New("credential profile cannot be empty")
	}

	switch strings.ToLower(cfg.Backend) {
	case "", "file":
		if cfg.TokenFile == "" {
			return nil, errors.New("token file path cannot be empty")
		}
		return NewFileStore(cfg.TokenFile, cfg.Profile), nil
	case "bolt":
		if cfg.BoltPath == "" {
			return nil, errors.New("bolt database path cannot be empty")
		}
		return OpenBoltStore(cfg.BoltPath, cfg.Profile)
	case "redis":
		return NewRedisStore(RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		}, cfg.Profile)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}
