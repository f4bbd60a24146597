package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// FileStore keeps credentials in a JSON file shared by every profile, so one
// token file can hold sessions for several API servers.
type FileStore struct {
	path    string
	profile string
}

// fileCredentials is the on-disk record of one profile.
type fileCredentials struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// fileCredentialsMap is the whole token file; key = profile.
type fileCredentialsMap struct {
	Profiles map[string]*fileCredentials `json:"profiles"`
}

// NewFileStore returns a store for profile inside the token file at path.
// The file is created on first write.
func NewFileStore(path, profile string) *FileStore {
	return &FileStore{path: path, profile: profile}
}

// Path returns the token file location.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Get(_ context.Context, kind Kind) (string, bool, error) {
	if err := validKind(kind); err != nil {
		return "", false, err
	}

	m, err := f.load()
	if err != nil {
		return "", false, err
	}
	creds, ok := m.Profiles[f.profile]
	if !ok {
		return "", false, nil
	}

	token := creds.token(kind)
	return token, token != "", nil
}

func (f *FileStore) Set(ctx context.Context, kind Kind, token string) error {
	if err := validKind(kind); err != nil {
		return err
	}
	return f.update(ctx, func(m *fileCredentialsMap) {
		creds, ok := m.Profiles[f.profile]
		if !ok {
			creds = &fileCredentials{}
			m.Profiles[f.profile] = creds
		}
		creds.setToken(kind, token)
		creds.UpdatedAt = time.Now().UTC()
		if creds.AccessToken == "" && creds.RefreshToken == "" {
			delete(m.Profiles, f.profile)
		}
	})
}

func (f *FileStore) Clear(ctx context.Context) error {
	return f.update(ctx, func(m *fileCredentialsMap) {
		delete(m.Profiles, f.profile)
	})
}

func (c *fileCredentials) token(kind Kind) string {
	if kind == Access {
		return c.AccessToken
	}
	return c.RefreshToken
}

func (c *fileCredentials) setToken(kind Kind, token string) {
	if kind == Access {
		c.AccessToken = token
		return
	}
	c.RefreshToken = token
}

// load reads the token file. A missing file is an empty map.
func (f *FileStore) load() (*fileCredentialsMap, error) {
	m := &fileCredentialsMap{Profiles: make(map[string]*fileCredentials)}

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if m.Profiles == nil {
		m.Profiles = make(map[string]*fileCredentials)
	}
	return m, nil
}

// update applies fn to the token file under the file lock and writes the
// result atomically (temp file + rename). A corrupt file is replaced.
func (f *FileStore) update(ctx context.Context, fn func(m *fileCredentialsMap)) error {
	lock, err := acquireFileLock(ctx, f.path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if releaseErr := lock.release(); releaseErr != nil {
			fmt.Fprintf(os.Stderr, "failed to release lock: %v\n", releaseErr)
		}
	}()

	m, err := f.load()
	if err != nil {
		m = &fileCredentialsMap{Profiles: make(map[string]*fileCredentials)}
	}
	fn(m)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	tempFile := f.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, f.path); err != nil {
		if removeErr := os.Remove(tempFile); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
