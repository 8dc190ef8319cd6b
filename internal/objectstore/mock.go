package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockStore is an in-memory MultipartStore for testing. Failures can be
// injected per operation and key with SetError.
type MockStore struct {
	mu       sync.RWMutex
	objects  map[string]mockObject
	failures map[string]error
	uploads  int
	batches  int
}

type mockObject struct {
	data []byte
	meta ObjectMeta
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		objects:  make(map[string]mockObject),
		failures: make(map[string]error),
	}
}

// SetError makes op ("Put", "Get", "Head", "Delete", "List", "UploadPart")
// fail with err for key. A nil err clears the failure.
func (s *MockStore) SetError(op, key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op+" "+key)
		return
	}
	s.failures[op+" "+key] = err
}

func (s *MockStore) failure(op, key string) error {
	if err, ok := s.failures[op+" "+key]; ok {
		return &ObjectError{Op: op, Key: key, Err: err}
	}
	return nil
}

// Object returns a copy of the stored bytes for key.
func (s *MockStore) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}

// Keys returns every stored key in sorted order.
func (s *MockStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ObjectCount returns the number of stored objects.
func (s *MockStore) ObjectCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func (s *MockStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	return s.PutWithOptions(ctx, key, reader, size, contentType, PutOptions{})
}

func (s *MockStore) PutWithOptions(ctx context.Context, key string, reader io.Reader, size int64, contentType string, opts PutOptions) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return &ObjectError{Op: "Put", Key: key, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure("Put", key); err != nil {
		return err
	}
	if opts.IfNoneMatch == "*" {
		if _, exists := s.objects[key]; exists {
			return &ObjectError{Op: "Put", Key: key, Err: ErrPreconditionFailed}
		}
	}
	s.store(key, data, contentType, opts.Metadata)
	return nil
}

func (s *MockStore) store(key string, data []byte, contentType string, metadata map[string]string) {
	s.objects[key] = mockObject{
		data: data,
		meta: ObjectMeta{
			Key:          key,
			Size:         int64(len(data)),
			ContentType:  contentType,
			ETag:         fmt.Sprintf("mock-%d", len(data)),
			LastModified: time.Now().UnixMilli(),
			Metadata:     metadata,
		},
	}
}

func (s *MockStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure("Get", key); err != nil {
		return nil, err
	}
	obj, exists := s.objects[key]
	if !exists {
		return nil, &ObjectError{Op: "Get", Key: key, Err: ErrNotFound}
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *MockStore) Head(ctx context.Context, key string) (ObjectMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure("Head", key); err != nil {
		return ObjectMeta{}, err
	}
	obj, exists := s.objects[key]
	if !exists {
		return ObjectMeta{}, &ObjectError{Op: "Head", Key: key, Err: ErrNotFound}
	}
	return obj.meta, nil
}

func (s *MockStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure("Delete", key); err != nil {
		return err
	}
	delete(s.objects, key)
	return nil
}

// DeleteObjects removes keys in one locked pass. Failures injected for
// "Delete" apply per key.
func (s *MockStore) DeleteObjects(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches++
	var errs []error
	for _, key := range keys {
		if err := s.failure("Delete", key); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(s.objects, key)
	}
	return errors.Join(errs...)
}

// BatchDeletes returns how many DeleteObjects calls the store has served.
func (s *MockStore) BatchDeletes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batches
}

func (s *MockStore) List(ctx context.Context, prefix string) ([]ObjectMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure("List", prefix); err != nil {
		return nil, err
	}
	var result []ObjectMeta
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			result = append(result, obj.meta)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})
	return result, nil
}

func (s *MockStore) Close() error {
	return nil
}

func (s *MockStore) CreateMultipartUpload(ctx context.Context, key string, contentType string) (MultipartUpload, error) {
	return s.CreateMultipartUploadWithOptions(ctx, key, contentType, PutOptions{})
}

func (s *MockStore) CreateMultipartUploadWithOptions(ctx context.Context, key string, contentType string, opts PutOptions) (MultipartUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads++
	return &mockUpload{
		store:       s,
		id:          fmt.Sprintf("upload-%d", s.uploads),
		key:         key,
		contentType: contentType,
		metadata:    opts.Metadata,
		parts:       make(map[int][]byte),
	}, nil
}

type mockUpload struct {
	store       *MockStore
	id          string
	key         string
	contentType string
	metadata    map[string]string

	mu    sync.Mutex
	parts map[int][]byte
	done  bool
}

func (u *mockUpload) UploadID() string { return u.id }

func (u *mockUpload) UploadPart(ctx context.Context, partNum int, reader io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", &ObjectError{Op: "UploadPart", Key: u.key, Err: err}
	}

	u.store.mu.RLock()
	ferr := u.store.failure("UploadPart", u.key)
	u.store.mu.RUnlock()
	if ferr != nil {
		return "", ferr
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return "", &ObjectError{Op: "UploadPart", Key: u.key, Err: fmt.Errorf("upload %s already finished", u.id)}
	}
	u.parts[partNum] = data
	return fmt.Sprintf("etag-%d", partNum), nil
}

func (u *mockUpload) Complete(ctx context.Context, etags []string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return &ObjectError{Op: "CompleteMultipartUpload", Key: u.key, Err: fmt.Errorf("upload %s already finished", u.id)}
	}
	if len(etags) != len(u.parts) {
		return &ObjectError{Op: "CompleteMultipartUpload", Key: u.key, Err: fmt.Errorf("got %d etags for %d parts", len(etags), len(u.parts))}
	}
	var buf bytes.Buffer
	for i := 1; i <= len(etags); i++ {
		part, ok := u.parts[i]
		if !ok {
			return &ObjectError{Op: "CompleteMultipartUpload", Key: u.key, Err: fmt.Errorf("missing part %d", i)}
		}
		buf.Write(part)
	}
	u.done = true

	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	u.store.store(u.key, buf.Bytes(), u.contentType, u.metadata)
	return nil
}

func (u *mockUpload) Abort(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.done = true
	u.parts = make(map[int][]byte)
	return nil
}

var (
	_ MultipartStore = (*MockStore)(nil)
	_ BatchDeleter   = (*MockStore)(nil)
)
