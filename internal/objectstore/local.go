package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const metaSuffix = ".content-type"

// Local writes blobs under a root directory. The content type of each blob
// is kept in a sidecar file next to it.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Local{root: root}, nil
}

func (l *Local) path(key string) (string, string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", "", err
	}
	return k, filepath.Join(l.root, filepath.FromSlash(k)), nil
}

func (l *Local) Put(ctx context.Context, key, contentType string, data []byte) (Object, error) {
	k, p, err := l.path(key)
	if err != nil {
		return Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return Object{}, err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return Object{}, err
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return Object{}, err
	}
	ct := contentTypeFor(k, contentType)
	if err := os.WriteFile(p+metaSuffix, []byte(ct), 0o644); err != nil {
		return Object{}, err
	}
	return Object{Key: k, ContentType: ct, Size: int64(len(data))}, nil
}

func (l *Local) Get(_ context.Context, key string) (io.ReadCloser, Object, error) {
	k, p, err := l.path(key)
	if err != nil {
		return nil, Object{}, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Object{}, ErrNotFound
	}
	if err != nil {
		return nil, Object{}, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Object{}, err
	}
	ct := contentTypeFor(k, "")
	if meta, err := os.ReadFile(p + metaSuffix); err == nil && len(meta) > 0 {
		ct = string(meta)
	}
	return f, Object{Key: k, ContentType: ct, Size: info.Size()}, nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	_, p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	_ = os.Remove(p + metaSuffix)
	return nil
}
