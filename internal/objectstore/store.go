// Package objectstore keeps artifact blobs behind a small key/value API with
// S3 (or MinIO), local filesystem and in-memory backends.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/mohammad-safakhou/sentiscope/config"
)

// ErrNotFound is returned when a key has no object.
var ErrNotFound = errors.New("object not found")

// Object describes a stored blob.
type Object struct {
	Key         string
	ContentType string
	Size        int64
}

// Store persists named blobs.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, Object, error)
	Delete(ctx context.Context, key string) error
}

// New picks the backend from storage configuration: S3 when an endpoint is
// set, otherwise the local data directory, otherwise memory.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch {
	case cfg.S3.Enabled():
		return NewS3(ctx, cfg.S3)
	case strings.TrimSpace(cfg.File.DataDir) != "":
		return NewLocal(cfg.File.DataDir)
	default:
		return NewMemory(), nil
	}
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	k := strings.TrimPrefix(path.Clean("/"+strings.TrimSpace(key)), "/")
	if k == "" || k == "." || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return k, nil
}

func contentTypeFor(key, given string) string {
	if given != "" {
		return given
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
