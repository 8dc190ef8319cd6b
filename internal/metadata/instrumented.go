package metadata

import (
	"context"
	"time"
)

// MetricsRecorder records metadata store operation metrics. It keeps this
// package independent of the metrics package.
type MetricsRecorder interface {
	RecordGet(durationSeconds float64, success bool)
	RecordPut(durationSeconds float64, success bool)
	RecordDelete(durationSeconds float64, success bool)
	RecordList(durationSeconds float64, success bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordGet(float64, bool)    {}
func (nopRecorder) RecordPut(float64, bool)    {}
func (nopRecorder) RecordDelete(float64, bool) {}
func (nopRecorder) RecordList(float64, bool)   {}

// InstrumentedStore times every call to the wrapped store.
type InstrumentedStore struct {
	store   MetadataStore
	metrics MetricsRecorder
}

// NewInstrumentedStore wraps store. A nil recorder discards the timings.
func NewInstrumentedStore(store MetadataStore, metrics MetricsRecorder) *InstrumentedStore {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &InstrumentedStore{store: store, metrics: metrics}
}

func since(start time.Time) float64 {
	return time.Since(start).Seconds()
}

func (s *InstrumentedStore) Get(ctx context.Context, key string) (GetResult, error) {
	start := time.Now()
	res, err := s.store.Get(ctx, key)
	s.metrics.RecordGet(since(start), err == nil)
	return res, err
}

// Put counts a lost compare-and-set as a failure; the caller has to retry.
func (s *InstrumentedStore) Put(ctx context.Context, key string, value []byte, opts ...PutOption) (Version, error) {
	start := time.Now()
	v, err := s.store.Put(ctx, key, value, opts...)
	s.metrics.RecordPut(since(start), err == nil)
	return v, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, key string, opts ...DeleteOption) error {
	start := time.Now()
	err := s.store.Delete(ctx, key, opts...)
	s.metrics.RecordDelete(since(start), err == nil)
	return err
}

// DeleteRange is recorded as a delete.
func (s *InstrumentedStore) DeleteRange(ctx context.Context, startKey, endKey string) error {
	start := time.Now()
	err := s.store.DeleteRange(ctx, startKey, endKey)
	s.metrics.RecordDelete(since(start), err == nil)
	return err
}

func (s *InstrumentedStore) List(ctx context.Context, startKey, endKey string, limit int) ([]KV, error) {
	start := time.Now()
	kvs, err := s.store.List(ctx, startKey, endKey, limit)
	s.metrics.RecordList(since(start), err == nil)
	return kvs, err
}

func (s *InstrumentedStore) Close() error {
	return s.store.Close()
}

var _ MetadataStore = (*InstrumentedStore)(nil)
