package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/modloader/internal/errors"
)

// FileFetcher reads module sources below a root directory
type FileFetcher struct {
	root    string
	maxSize int64
	hasher  *Hasher
}

// NewFileFetcher creates a fetcher rooted at dir
func NewFileFetcher(dir string, maxSize int64) (*FileFetcher, error) {
	if dir == "" {
		dir = "."
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeInvalidPath, "resolving modules directory")
	}
	return &FileFetcher{
		root:    root,
		maxSize: maxSizeOrDefault(maxSize),
		hasher:  NewHasher(),
	}, nil
}

// Root returns the absolute modules directory
func (f *FileFetcher) Root() string {
	return f.root
}

// Fetch reads source, relative to the root, as the module key
func (f *FileFetcher) Fetch(ctx context.Context, key, source string) (*Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := f.resolve(source)
	if err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidPath, err.Error()).WithKey(key)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapIO(err, key, "opening module source")
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, f.maxSize+1))
	if err != nil {
		return nil, errors.WrapIO(err, key, "reading module source")
	}
	if int64(len(content)) > f.maxSize {
		return nil, errors.NewValidationError(errors.ErrCodeFetchFailed,
			fmt.Sprintf("module exceeds %d bytes", f.maxSize)).WithKey(key)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Module{
		Key:         key,
		Source:      source,
		Content:     content,
		ContentType: contentType,
		Hash:        f.hasher.Sum(content),
		Size:        int64(len(content)),
		FetchedAt:   time.Now(),
	}, nil
}

// resolve maps source to a path inside the root, rejecting traversal
func (f *FileFetcher) resolve(source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", fmt.Errorf("empty module source")
	}
	if filepath.IsAbs(source) {
		return "", fmt.Errorf("module source must be relative: %s", source)
	}
	for _, part := range strings.Split(filepath.ToSlash(source), "/") {
		if part == ".." {
			return "", fmt.Errorf("module source contains directory traversal: %s", source)
		}
	}

	path := filepath.Join(f.root, filepath.Clean(source))
	if path != f.root && !strings.HasPrefix(path, f.root+string(filepath.Separator)) {
		return "", fmt.Errorf("module source escapes modules directory: %s", source)
	}
	return path, nil
}
