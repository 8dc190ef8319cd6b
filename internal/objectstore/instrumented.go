package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// MetricsRecorder receives one observation per store call. The metrics
// package implements it; this package only depends on the interface.
type MetricsRecorder interface {
	RecordPut(durationSeconds float64, success bool, bytes int64)
	RecordPart(durationSeconds float64, success bool, bytes int64)
	RecordGet(durationSeconds float64, success bool, bytes int64)
	RecordHead(durationSeconds float64, success bool)
	RecordDelete(durationSeconds float64, success bool)
	RecordList(durationSeconds float64, success bool)
	RecordDeleteBatch(durationSeconds float64, success bool, keys int)
}

type nopRecorder struct{}

func (nopRecorder) RecordPut(float64, bool, int64)       {}
func (nopRecorder) RecordPart(float64, bool, int64)      {}
func (nopRecorder) RecordGet(float64, bool, int64)       {}
func (nopRecorder) RecordHead(float64, bool)             {}
func (nopRecorder) RecordDelete(float64, bool)           {}
func (nopRecorder) RecordList(float64, bool)             {}
func (nopRecorder) RecordDeleteBatch(float64, bool, int) {}

// InstrumentedStore times the calls made to a Store. Multipart and batch
// delete methods are always present: multipart reports
// ErrMultipartUnsupported and batch delete falls back to single deletes when
// the wrapped store lacks them.
type InstrumentedStore struct {
	store   Store
	metrics MetricsRecorder
}

// NewInstrumentedStore wraps store. A nil recorder discards the timings.
func NewInstrumentedStore(store Store, metrics MetricsRecorder) *InstrumentedStore {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &InstrumentedStore{store: store, metrics: metrics}
}

func since(start time.Time) float64 {
	return time.Since(start).Seconds()
}

func (s *InstrumentedStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	return s.PutWithOptions(ctx, key, reader, size, contentType, PutOptions{})
}

func (s *InstrumentedStore) PutWithOptions(ctx context.Context, key string, reader io.Reader, size int64, contentType string, opts PutOptions) error {
	start := time.Now()
	err := s.store.PutWithOptions(ctx, key, reader, size, contentType, opts)
	s.metrics.RecordPut(since(start), err == nil, size)
	return err
}

// Get records once the returned body is closed, so the byte count is what
// the caller actually read.
func (s *InstrumentedStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := s.store.Get(ctx, key)
	if err != nil {
		s.metrics.RecordGet(since(start), false, 0)
		return nil, err
	}
	return &countingBody{ReadCloser: rc, start: start, metrics: s.metrics}, nil
}

// Head counts a missing object as a successful call.
func (s *InstrumentedStore) Head(ctx context.Context, key string) (ObjectMeta, error) {
	start := time.Now()
	meta, err := s.store.Head(ctx, key)
	s.metrics.RecordHead(since(start), err == nil || isNotFound(err))
	return meta, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.store.Delete(ctx, key)
	s.metrics.RecordDelete(since(start), err == nil)
	return err
}

func (s *InstrumentedStore) DeleteObjects(ctx context.Context, keys []string) error {
	bd, ok := s.store.(BatchDeleter)
	if !ok {
		var errs []error
		for _, key := range keys {
			errs = append(errs, s.Delete(ctx, key))
		}
		return errors.Join(errs...)
	}
	start := time.Now()
	err := bd.DeleteObjects(ctx, keys)
	s.metrics.RecordDeleteBatch(since(start), err == nil, len(keys))
	return err
}

func (s *InstrumentedStore) List(ctx context.Context, prefix string) ([]ObjectMeta, error) {
	start := time.Now()
	objs, err := s.store.List(ctx, prefix)
	s.metrics.RecordList(since(start), err == nil)
	return objs, err
}

func (s *InstrumentedStore) Close() error {
	return s.store.Close()
}

func (s *InstrumentedStore) CreateMultipartUpload(ctx context.Context, key string, contentType string) (MultipartUpload, error) {
	return s.CreateMultipartUploadWithOptions(ctx, key, contentType, PutOptions{})
}

func (s *InstrumentedStore) CreateMultipartUploadWithOptions(ctx context.Context, key string, contentType string, opts PutOptions) (MultipartUpload, error) {
	mp, ok := s.store.(MultipartStore)
	if !ok {
		return nil, &ObjectError{Op: "CreateMultipartUpload", Key: key, Err: ErrMultipartUnsupported}
	}
	up, err := mp.CreateMultipartUploadWithOptions(ctx, key, contentType, opts)
	if err != nil {
		return nil, err
	}
	return &timedUpload{MultipartUpload: up, metrics: s.metrics}, nil
}

// timedUpload records each part; Complete and Abort pass through.
type timedUpload struct {
	MultipartUpload
	metrics MetricsRecorder
}

func (u *timedUpload) UploadPart(ctx context.Context, partNum int, reader io.Reader, size int64) (string, error) {
	start := time.Now()
	etag, err := u.MultipartUpload.UploadPart(ctx, partNum, reader, size)
	u.metrics.RecordPart(since(start), err == nil, size)
	return etag, err
}

type countingBody struct {
	io.ReadCloser
	start   time.Time
	metrics MetricsRecorder
	n       int64
	failed  bool
	done    bool
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.n += int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		b.failed = true
	}
	return n, err
}

func (b *countingBody) Close() error {
	if b.done {
		return nil
	}
	b.done = true
	err := b.ReadCloser.Close()
	b.metrics.RecordGet(since(b.start), err == nil && !b.failed, b.n)
	return err
}

var (
	_ MultipartStore = (*InstrumentedStore)(nil)
	_ BatchDeleter   = (*InstrumentedStore)(nil)
)
