package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when the requested key is absent
var ErrNotFound = errors.New("object not found")

// ErrExists is returned by Put when the key is already taken and overwrite is not allowed
var ErrExists = errors.New("object already exists")

// Object describes a stored blob
type Object struct {
	Key       string    `json:"pathname"`
	Location  string    `json:"url"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"uploadedAt,omitzero"`
}

// PutOpts controls a single write
type PutOpts struct {
	ContentType    string
	AllowOverwrite bool
}

// Store is a key-prefixed blob namespace
type Store interface {
	List(ctx context.Context, prefix string) ([]Object, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, opts PutOpts) (Object, error)
	Delete(ctx context.Context, key string) error
}

// validateKey rejects keys which can't be mapped safely to any backend
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return fmt.Errorf("invalid key %q, leading or trailing slash", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid key %q, bad path element", key)
		}
	}
	return nil
}
