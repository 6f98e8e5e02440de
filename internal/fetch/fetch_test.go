package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/conneroisu/modloader/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasher(t *testing.T) {
	h := NewHasher()

	// CRC32-C check value for "123456789"
	assert.Equal(t, "e3069283", h.Sum([]byte("123456789")))
	assert.Equal(t, h.Sum([]byte("a")), h.Sum([]byte("a")))
	assert.NotEqual(t, h.Sum([]byte("a")), h.Sum([]byte("b")))
}

func writeModule(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileFetcher_Fetch(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "dashboard/index.js", "export default 1")

	fetcher, err := NewFileFetcher(dir, 0)
	require.NoError(t, err)

	module, err := fetcher.Fetch(context.Background(), "dashboard", "dashboard/index.js")
	require.NoError(t, err)

	assert.Equal(t, "dashboard", module.Key)
	assert.Equal(t, "dashboard/index.js", module.Source)
	assert.Equal(t, []byte("export default 1"), module.Content)
	assert.Equal(t, int64(16), module.Size)
	assert.Equal(t, NewHasher().Sum(module.Content), module.Hash)
	assert.Contains(t, module.ContentType, "javascript")
	assert.False(t, module.FetchedAt.IsZero())
}

func TestFileFetcher_RejectsUnsafeSources(t *testing.T) {
	fetcher, err := NewFileFetcher(t.TempDir(), 0)
	require.NoError(t, err)

	for _, source := range []string{"", "../secret.js", "a/../../b.js", "/etc/passwd"} {
		t.Run(source, func(t *testing.T) {
			_, err := fetcher.Fetch(context.Background(), "m", source)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeInvalidPath, errors.GetErrorCode(err))
		})
	}
}

func TestFileFetcher_MissingFile(t *testing.T) {
	fetcher, err := NewFileFetcher(t.TempDir(), 0)
	require.NoError(t, err)

	_, err = fetcher.Fetch(context.Background(), "m", "missing.js")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFetchFailed, errors.GetErrorCode(err))
	assert.True(t, errors.IsRecoverable(err))
}

func TestFileFetcher_MaxSize(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "big.js", strings.Repeat("x", 64))

	fetcher, err := NewFileFetcher(dir, 32)
	require.NoError(t, err)

	_, err = fetcher.Fetch(context.Background(), "big", "big.js")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 32 bytes")
}

func TestFileFetcher_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "a.js", "a")
	fetcher, err := NewFileFetcher(dir, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = fetcher.Fetch(ctx, "a", "a.js")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/modules/reports.js":
			w.Header().Set("Content-Type", "text/javascript")
			_, _ = w.Write([]byte("export const reports = true"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	fetcher, err := NewHTTPFetcher(server.URL+"/modules", time.Second, 0)
	require.NoError(t, err)

	module, err := fetcher.Fetch(context.Background(), "reports", "reports.js")
	require.NoError(t, err)
	assert.Equal(t, "text/javascript", module.ContentType)
	assert.Equal(t, server.URL+"/modules/reports.js", module.Source)
	assert.Equal(t, int64(len("export const reports = true")), module.Size)

	_, err = fetcher.Fetch(context.Background(), "missing", "missing.js")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFetchFailed, errors.GetErrorCode(err))
	assert.Equal(t, http.StatusNotFound, errors.GetErrorContext(err)["status"])
}

func TestHTTPFetcher_URL(t *testing.T) {
	fetcher, err := NewHTTPFetcher("https://cdn.example.com/app/", 0, 0)
	require.NoError(t, err)

	u, err := fetcher.URL("chunks/a.js")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/app/chunks/a.js", u.String())

	for _, source := range []string{"../x.js", "https://evil.example.com/x.js", "//evil.example.com/x.js"} {
		_, err := fetcher.URL(source)
		assert.Error(t, err, source)
	}
}

func TestNewHTTPFetcher_InvalidBase(t *testing.T) {
	_, err := NewHTTPFetcher("ftp://example.com", 0, 0)
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestHTTPFetcher_HonoursContext(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(block)

	fetcher, err := NewHTTPFetcher(server.URL, 0, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = fetcher.Fetch(ctx, "slow", "slow.js")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoadFuncFor(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "a.js", "a")
	fetcher, err := NewFileFetcher(dir, 0)
	require.NoError(t, err)

	load := LoadFuncFor(fetcher, "a", "a.js")
	handle, err := load(context.Background())
	require.NoError(t, err)

	module, ok := handle.(*Module)
	require.True(t, ok)
	assert.Equal(t, "a", module.Key)
}

func TestNew(t *testing.T) {
	f, err := New(Config{ModulesDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileFetcher{}, f)

	f, err = New(Config{BaseURL: "http://localhost:9000"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPFetcher{}, f)
}
