package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testProfile = "http://localhost:8000/api"

func newBackends(t *testing.T) map[string]Store {
	t.Helper()

	dir := t.TempDir()

	bolt, err := OpenBoltStore(filepath.Join(dir, "session.db"), testProfile)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(filepath.Join(dir, "tokens.json"), testProfile),
		"bolt":   bolt,
		"redis":  NewRedisStoreFromClient(rdb, "", testProfile),
	}
}

func TestStore_Contract(t *testing.T) {
	ctx := context.Background()

	for name, store := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.Get(ctx, Access)
			require.NoError(t, err)
			require.False(t, ok, "empty store must report absent access credential")

			require.NoError(t, store.Set(ctx, Access, "access-token-1"))
			require.NoError(t, store.Set(ctx, Refresh, "refresh-token-1"))

			token, ok, err := store.Get(ctx, Access)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "access-token-1", token)

			require.NoError(t, store.Set(ctx, Access, "access-token-2"))
			token, _, err = store.Get(ctx, Access)
			require.NoError(t, err)
			require.Equal(t, "access-token-2", token, "writes must be visible to the next read")

			token, ok, err = store.Get(ctx, Refresh)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "refresh-token-1", token)

			require.NoError(t, store.Set(ctx, Access, ""))
			_, ok, err = store.Get(ctx, Access)
			require.NoError(t, err)
			require.False(t, ok, "empty token removes the credential")

			require.NoError(t, store.Set(ctx, Access, "access-token-3"))
			require.NoError(t, store.Clear(ctx))
			for _, kind := range Kinds {
				_, ok, err := store.Get(ctx, kind)
				require.NoError(t, err)
				require.False(t, ok, "%s must be absent after Clear", kind)
			}

			require.NoError(t, store.Clear(ctx), "clearing an empty store is not an error")
		})
	}
}

func TestStore_UnknownKind(t *testing.T) {
	ctx := context.Background()

	for name, store := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, _, err := store.Get(ctx, Kind("id_token"))
			require.ErrorIs(t, err, ErrUnknownKind)
			require.ErrorIs(t, store.Set(ctx, Kind("id_token"), "x"), ErrUnknownKind)
		})
	}
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.json")

	require.NoError(t, NewFileStore(path, testProfile).Set(ctx, Refresh, "refresh-token-1"))

	token, ok, err := NewFileStore(path, testProfile).Get(ctx, Refresh)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "refresh-token-1", token)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_PreservesOtherProfiles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.json")

	first := NewFileStore(path, "https://a.example.com/api")
	second := NewFileStore(path, "https://b.example.com/api")

	require.NoError(t, first.Set(ctx, Access, "token-a"))
	require.NoError(t, second.Set(ctx, Access, "token-b"))
	require.NoError(t, second.Clear(ctx))

	token, ok, err := first.Get(ctx, Access)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "token-a", token)

	_, ok, err = second.Get(ctx, Access)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStore_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.json")

	const goroutines = 10
	var wg sync.WaitGroup

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			store := NewFileStore(path, fmt.Sprintf("profile-%d", id))
			if err := store.Set(ctx, Access, fmt.Sprintf("access-token-%d", id)); err != nil {
				t.Errorf("Goroutine %d: Failed to save token: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var m fileCredentialsMap
	require.NoError(t, json.Unmarshal(data, &m))
	require.Len(t, m.Profiles, goroutines)
	for i := 0; i < goroutines; i++ {
		creds, ok := m.Profiles[fmt.Sprintf("profile-%d", i)]
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("access-token-%d", i), creds.AccessToken)
	}

	_, err = os.Stat(path + ".lock")
	require.True(t, os.IsNotExist(err), "lock file must be removed after all writes")
}

func TestFileStore_CorruptFileIsReplacedOnWrite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store := NewFileStore(path, testProfile)

	_, _, err := store.Get(ctx, Access)
	require.Error(t, err)

	require.NoError(t, store.Set(ctx, Access, "access-token-1"))
	token, ok, err := store.Get(ctx, Access)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "access-token-1", token)
}

func TestRedisStore_SharedBetweenInstances(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	a, err := NewRedisStore(RedisOptions{Addr: mr.Addr(), Prefix: "test"}, testProfile)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRedisStore(RedisOptions{Addr: mr.Addr(), Prefix: "test"}, testProfile)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Set(ctx, Access, "access-token-1"))
	token, ok, err := b.Get(ctx, Access)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "access-token-1", token)
	require.True(t, mr.Exists("test:"+testProfile))
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default file", cfg: Config{Profile: testProfile, TokenFile: filepath.Join(dir, "t.json")}},
		{name: "memory", cfg: Config{Backend: "memory", Profile: testProfile}},
		{name: "bolt", cfg: Config{Backend: "bolt", Profile: testProfile, BoltPath: filepath.Join(dir, "s.db")}},
		{name: "missing profile", cfg: Config{Backend: "memory"}, wantErr: true},
		{name: "file without path", cfg: Config{Backend: "file", Profile: testProfile}, wantErr: true},
		{name: "redis without addr", cfg: Config{Backend: "redis", Profile: testProfile}, wantErr: true},
		{name: "unknown backend", cfg: Config{Backend: "etcd", Profile: testProfile}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if c, ok := store.(Closer); ok {
				require.NoError(t, c.Close())
			}
		})
	}
}
