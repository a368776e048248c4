package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process store, used in tests and for throwaway runs
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

type memObject struct {
	data      []byte
	updatedAt time.Time
}

// NewMemory makes an empty memory store
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memObject)}
}

// List returns objects with keys starting with prefix, sorted by key
func (m *Memory) List(_ context.Context, prefix string) ([]Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := []Object{}
	for k, v := range m.objects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		res = append(res, Object{Key: k, Location: m.location(k), Size: int64(len(v.data)), UpdatedAt: v.updatedAt})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Key < res[j].Key })
	return res, nil
}

// Get returns a copy of the object's content
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	res := make([]byte, len(obj.data))
	copy(res, obj.data)
	return res, nil
}

// Put stores a copy of data under key
func (m *Memory) Put(_ context.Context, key string, data []byte, opts PutOpts) (Object, error) {
	if err := validateKey(key); err != nil {
		return Object{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; ok && !opts.AllowOverwrite {
		return Object{}, fmt.Errorf("put %s: %w", key, ErrExists)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	now := time.Now()
	m.objects[key] = memObject{data: buf, updatedAt: now}
	return Object{Key: key, Location: m.location(key), Size: int64(len(buf)), UpdatedAt: now}, nil
}

// Delete removes the object
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("delete %s: %w", key, ErrNotFound)
	}
	delete(m.objects, key)
	return nil
}

func (m *Memory) location(key string) string { return "memory://" + key }
