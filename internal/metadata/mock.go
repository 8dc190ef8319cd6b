package metadata

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MockStore implements MetadataStore in memory for tests in any package.
// Versions come from one counter shared by all keys, like a real store's
// monotonic versions.
type MockStore struct {
	mu      sync.RWMutex
	data    map[string]KV
	version Version
	closed  bool

	// onPut runs before every Put with the lock released.
	onPut func(key string)
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{data: make(map[string]KV)}
}

// OnPut registers a hook that runs before each Put. Tests use it to race a
// concurrent writer against a compare-and-set.
func (m *MockStore) OnPut(hook func(key string)) {
	m.mu.Lock()
	m.onPut = hook
	m.mu.Unlock()
}

// Len returns the number of stored keys.
func (m *MockStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MockStore) Get(_ context.Context, key string) (GetResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return GetResult{}, ErrStoreClosed
	}
	kv, ok := m.data[key]
	return GetResult{Value: kv.Value, Version: kv.Version, Exists: ok}, nil
}

func (m *MockStore) Put(_ context.Context, key string, value []byte, opts ...PutOption) (Version, error) {
	m.mu.RLock()
	hook := m.onPut
	m.mu.RUnlock()
	if hook != nil {
		hook(key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrStoreClosed
	}
	// A missing key has version 0, which is what a create-only put expects.
	if expected := ExtractExpectedVersion(opts); expected != nil && m.data[key].Version != *expected {
		return 0, ErrVersionMismatch
	}
	m.version++
	m.data[key] = KV{Key: key, Value: value, Version: m.version}
	return m.version, nil
}

func (m *MockStore) Delete(_ context.Context, key string, opts ...DeleteOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	kv, ok := m.data[key]
	if !ok {
		return nil
	}
	if expected := ExtractDeleteExpectedVersion(opts); expected != nil && kv.Version != *expected {
		return ErrVersionMismatch
	}
	delete(m.data, key)
	return nil
}

func (m *MockStore) DeleteRange(_ context.Context, startKey, endKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	for k := range m.data {
		if inRange(k, startKey, endKey) {
			delete(m.data, k)
		}
	}
	return nil
}

func (m *MockStore) List(_ context.Context, startKey, endKey string, limit int) ([]KV, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	var out []KV
	for k, kv := range m.data {
		if inRange(k, startKey, endKey) {
			out = append(out, kv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// inRange applies the List bounds: a prefix match when endKey is empty,
// otherwise the half-open interval [startKey, endKey).
func inRange(key, startKey, endKey string) bool {
	if endKey == "" {
		return strings.HasPrefix(key, startKey)
	}
	return key >= startKey && key < endKey
}

var _ MetadataStore = (*MockStore)(nil)
