// Package fetch is the transport layer behind module LoadFuncs. It reads
// module sources from a local modules directory or from an HTTP origin and
// returns them as *Module handles.
package fetch

import (
	"context"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/conneroisu/modloader/internal/types"
)

// DefaultMaxSize caps how many bytes a single module may occupy
const DefaultMaxSize int64 = 10 * 1024 * 1024

// Module is the handle produced by a fetch
type Module struct {
	Key         string    `json:"key"`
	Source      string    `json:"source"`
	Content     []byte    `json:"-"`
	ContentType string    `json:"content_type"`
	Hash        string    `json:"hash"`
	Size        int64     `json:"size"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Fetcher retrieves a module's bytes
type Fetcher interface {
	Fetch(ctx context.Context, key, source string) (*Module, error)
}

// Hasher computes content hashes with CRC32 Castagnoli
type Hasher struct {
	table *crc32.Table
}

// NewHasher creates a hasher with a precomputed table
func NewHasher() *Hasher {
	return &Hasher{table: crc32.MakeTable(crc32.Castagnoli)}
}

// Sum returns the hex-encoded checksum of content
func (h *Hasher) Sum(content []byte) string {
	return fmt.Sprintf("%08x", crc32.Checksum(content, h.table))
}

// LoadFuncFor adapts fetcher into the LoadFunc of the module key
func LoadFuncFor(fetcher Fetcher, key, source string) types.LoadFunc {
	return func(ctx context.Context) (types.ModuleHandle, error) {
		return fetcher.Fetch(ctx, key, source)
	}
}

// Config selects and parameterizes a fetcher
type Config struct {
	// ModulesDir is the root for file sources
	ModulesDir string
	// BaseURL switches to HTTP fetching when set
	BaseURL string
	// Timeout bounds each HTTP request; zero leaves it to the loader
	Timeout time.Duration
	// MaxSize caps module size; zero means DefaultMaxSize
	MaxSize int64
}

// New builds the fetcher described by cfg
func New(cfg Config) (Fetcher, error) {
	if cfg.BaseURL != "" {
		return NewHTTPFetcher(cfg.BaseURL, cfg.Timeout, cfg.MaxSize)
	}
	return NewFileFetcher(cfg.ModulesDir, cfg.MaxSize)
}

func maxSizeOrDefault(size int64) int64 {
	if size <= 0 {
		return DefaultMaxSize
	}
	return size
}
