package viewstate

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behavior every Store adapter must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "u1:jobFilters")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "u1:jobFilters", `{"searchQuery":"intern"}`))

		got, err := store.Get(ctx, "u1:jobFilters")
		require.NoError(t, err)
		assert.Equal(t, `{"searchQuery":"intern"}`, got)
	})

	t.Run("last write wins", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "u1:jobCurrentPage", "2"))
		require.NoError(t, store.Set(ctx, "u1:jobCurrentPage", "5"))

		got, err := store.Get(ctx, "u1:jobCurrentPage")
		require.NoError(t, err)
		assert.Equal(t, "5", got)
	})

	t.Run("keys do not collide", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "u1:examFilters", "exam"))
		require.NoError(t, store.Set(ctx, "u2:examFilters", "other"))

		got, err := store.Get(ctx, "u1:examFilters")
		require.NoError(t, err)
		assert.Equal(t, "exam", got)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "u1:internshipFilters", "x"))
		require.NoError(t, store.Delete(ctx, "u1:internshipFilters"))

		_, err := store.Get(ctx, "u1:internshipFilters")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.NoError(t, store.Delete(ctx, "u1:internshipFilters"))
	})

	t.Run("invalid keys", func(t *testing.T) {
		for _, key := range []string{"", "a/b", "..", `a\b`} {
			assert.ErrorIs(t, store.Set(ctx, key, "v"), ErrInvalidKey, key)
			_, err := store.Get(ctx, key)
			assert.ErrorIs(t, err, ErrInvalidKey, key)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	exerciseStore(t, store)
	assert.Positive(t, store.Len())
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestFileStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, store.Dir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFileStore_ConcurrentWriters(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(v string) {
			defer wg.Done()
			assert.NoError(t, store.Set(ctx, "shared", v))
		}(strings.Repeat("x", i+1))
	}
	wg.Wait()

	got, err := store.Get(ctx, "shared")
	require.NoError(t, err)
	assert.NotEmpty(t, got)
	assert.Equal(t, strings.Repeat("x", len(got)), got)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "tmp_"), "leftover temp file %s", e.Name())
	}
}

func TestFileStore_CancelledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, store.Set(ctx, "k", "v"))
	_, err = store.Get(ctx, "k")
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	exerciseStore(t, store)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "anonymous:jobCurrentPage", "3"))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.Get(ctx, "anonymous:jobCurrentPage")
	require.NoError(t, err)
	assert.Equal(t, "3", got)
}

func TestRedisStore(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set")
	}

	rdb, err := NewRedisClient(context.Background(), redisURL)
	require.NoError(t, err)
	store := NewRedisStore(rdb, WithKeyPrefix("test:"+t.Name()+":"))
	t.Cleanup(func() { _ = store.Close() })

	exerciseStore(t, store)
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not a url")
	assert.Error(t, err)
}

// fakeS3 is a minimal path-style S3 endpoint keeping objects in memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = string(body)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		v, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
			return
		}
		_, _ = w.Write([]byte(v))
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3Store_MockServer(t *testing.T) {
	fake := &fakeS3{objects: make(map[string]string)}
	server := httptest.NewServer(fake)
	defer server.Close()

	store, err := NewS3Store(context.Background(), S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Prefix:          "viewstate/",
		Endpoint:        server.URL,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	})
	require.NoError(t, err)

	exerciseStore(t, store)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	_, ok := fake.objects["/test-bucket/viewstate/u1:jobFilters.json"]
	assert.True(t, ok, "expected object under prefixed key, have %v", fake.objects)
}
