package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/go-pkgz/lgr"
)

// Local keeps objects as files under a root directory, key segments map to sub-directories
type Local struct {
	root string
}

// NewLocal makes a local store, the root directory is created if missing
func NewLocal(root string) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", abs, err)
	}
	return &Local{root: abs}, nil
}

// List walks the root and returns files with keys starting with prefix
func (l *Local) List(ctx context.Context, prefix string) ([]Object, error) {
	res := []Object{}
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			log.Printf("[WARN] can't stat %s: %v", path, err)
			return nil
		}
		res = append(res, Object{Key: key, Location: l.location(key), Size: info.Size(), UpdatedAt: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s with prefix %q: %w", l.root, prefix, err)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Key < res[j].Key })
	return res, nil
}

// Get reads the object file
func (l *Local) Get(_ context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.path(key)) // #nosec G304 - key validated, path is under root
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Put writes the object file. Without overwrite the file is created exclusively,
// with overwrite the content goes to a temp file first and renamed in place.
func (l *Local) Put(_ context.Context, key string, data []byte, opts PutOpts) (Object, error) {
	if err := validateKey(key); err != nil {
		return Object{}, err
	}
	path := l.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return Object{}, fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	if opts.AllowOverwrite {
		if err := l.replace(path, data); err != nil {
			return Object{}, fmt.Errorf("failed to write %s: %w", key, err)
		}
	} else if err := l.create(path, data); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return Object{}, fmt.Errorf("put %s: %w", key, ErrExists)
		}
		return Object{}, fmt.Errorf("failed to write %s: %w", key, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Object{}, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return Object{Key: key, Location: l.location(key), Size: info.Size(), UpdatedAt: info.ModTime()}, nil
}

// Delete removes the object file
func (l *Local) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(l.path(key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (l *Local) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

// location doesn't expose the server's directory layout
func (l *Local) location(key string) string { return "local://" + key }

func (l *Local) create(path string, data []byte) error {
	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) // #nosec G304
	if err != nil {
		return err
	}
	if _, err = fh.Write(data); err != nil {
		_ = fh.Close()
		_ = os.Remove(path)
		return err
	}
	return fh.Close()
}

func (l *Local) replace(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // no-op after successful rename
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
