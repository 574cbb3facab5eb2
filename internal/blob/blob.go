// Package blob opens and writes corpus files by URI. Plain paths go to the
// local filesystem, s3://bucket/key goes to S3.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when the object or file does not exist.
var ErrNotFound = errors.New("blob: not found")

const s3Scheme = "s3://"

// Source opens a corpus for reading.
type Source interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// Sink writes a corpus.
type Sink interface {
	Put(ctx context.Context, uri string, body io.Reader) error
}

// Router dispatches by URI scheme. S3 is optional; s3:// URIs fail without it.
type Router struct {
	local Local
	s3    *S3
}

// NewRouter creates a router. s3 may be nil.
func NewRouter(s3 *S3) *Router {
	return &Router{s3: s3}
}

// Open implements Source.
func (r *Router) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if IsS3(uri) {
		if r.s3 == nil {
			return nil, fmt.Errorf("open %s: s3 storage is not configured", uri)
		}
		return r.s3.Open(ctx, uri)
	}
	return r.local.Open(ctx, uri)
}

// Put implements Sink.
func (r *Router) Put(ctx context.Context, uri string, body io.Reader) error {
	if IsS3(uri) {
		if r.s3 == nil {
			return fmt.Errorf("put %s: s3 storage is not configured", uri)
		}
		return r.s3.Put(ctx, uri, body)
	}
	return r.local.Put(ctx, uri, body)
}

// IsS3 reports whether uri addresses an S3 object.
func IsS3(uri string) bool {
	return strings.HasPrefix(uri, s3Scheme)
}

// ParseS3URI splits s3://bucket/key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, s3Scheme)
	if !ok {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 uri must be s3://bucket/key, got %q", uri)
	}
	return bucket, key, nil
}

// Local reads and writes the filesystem.
type Local struct{}

// Open implements Source.
func (Local) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// Put implements Sink. Parent directories are created as needed.
func (Local) Put(_ context.Context, path string, body io.Reader) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path) //nolint:gosec // path comes from operator flags
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
