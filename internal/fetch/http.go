package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/conneroisu/modloader/internal/errors"
)

// HTTPFetcher retrieves module sources relative to a base URL
type HTTPFetcher struct {
	base    *url.URL
	client  *http.Client
	maxSize int64
	hasher  *Hasher
}

// NewHTTPFetcher creates a fetcher for sources under baseURL
func NewHTTPFetcher(baseURL string, timeout time.Duration, maxSize int64) (*HTTPFetcher, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "parsing loader.base_url")
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("loader.base_url must be http or https, got %q", baseURL))
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	return &HTTPFetcher{
		base:    base,
		client:  &http.Client{Timeout: timeout},
		maxSize: maxSizeOrDefault(maxSize),
		hasher:  NewHasher(),
	}, nil
}

// URL returns the absolute URL source resolves to
func (f *HTTPFetcher) URL(source string) (*url.URL, error) {
	ref, err := url.Parse(source)
	if err != nil {
		return nil, err
	}
	if ref.IsAbs() || ref.Host != "" {
		return nil, fmt.Errorf("module source must be relative to the base URL: %s", source)
	}
	resolved := f.base.ResolveReference(ref)
	if !strings.HasPrefix(resolved.Path, f.base.Path) {
		return nil, fmt.Errorf("module source escapes the base URL: %s", source)
	}
	return resolved, nil
}

// Fetch GETs source as the module key
func (f *HTTPFetcher) Fetch(ctx context.Context, key, source string) (*Module, error) {
	target, err := f.URL(source)
	if err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidPath, err.Error()).WithKey(key)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, errors.WrapIO(err, key, "building module request")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.WrapIO(err, key, "requesting module")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.WrapIO(fmt.Errorf("unexpected status %s", resp.Status), key, "requesting module").
			WithContext("url", target.String()).
			WithContext("status", resp.StatusCode)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, errors.WrapIO(err, key, "reading module body")
	}
	if int64(len(content)) > f.maxSize {
		return nil, errors.NewValidationError(errors.ErrCodeFetchFailed,
			fmt.Sprintf("module exceeds %d bytes", f.maxSize)).WithKey(key)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(content)
	}

	return &Module{
		Key:         key,
		Source:      target.String(),
		Content:     content,
		ContentType: contentType,
		Hash:        f.hasher.Sum(content),
		Size:        int64(len(content)),
		FetchedAt:   time.Now(),
	}, nil
}
