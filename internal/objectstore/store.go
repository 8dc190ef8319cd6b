// Package objectstore defines the Store interface for the S3-compatible
// storage that holds raw uploads and their columnar copies.
//
// Both conversion branches write through an [Uploader], which streams parts
// through [MultipartStore] when the backend supports it:
//
//	up := objectstore.NewUploader(ctx, store, objectstore.RawKey(c, m, table, file), "text/csv", objectstore.UploaderOptions{})
//	if _, err := io.Copy(up, src); err != nil {
//	    up.Abort()
//	    return err
//	}
//	return up.Close()
//
// Lookups that test existence use [Exists], which turns ErrNotFound into a
// plain boolean:
//
//	ok, err := objectstore.Exists(ctx, store, key)
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Common errors returned by Store implementations.
var (
	// ErrNotFound is returned when the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrPreconditionFailed is returned when a conditional write fails.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrAccessDenied is returned when the credentials lack permission for the operation.
	ErrAccessDenied = errors.New("access denied")

	// ErrMultipartUnsupported is returned by wrappers whose backing store
	// cannot do multipart uploads.
	ErrMultipartUnsupported = errors.New("multipart upload unsupported")
)

// ObjectError wraps an error with the object key for context.
type ObjectError struct {
	Op  string // Operation that failed (e.g., "Put", "Head", "Delete")
	Key string // Object key
	Err error  // Underlying error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("objectstore: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}

// ObjectMeta contains metadata about an object.
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	ETag        string

	// LastModified is the Unix timestamp in milliseconds.
	LastModified int64

	// Metadata contains user-defined key-value metadata.
	Metadata map[string]string
}

// PutOptions configures a Put operation.
type PutOptions struct {
	// Metadata is stored with the object, e.g. the ingesting process id.
	Metadata map[string]string

	// IfNoneMatch when set to "*" fails the Put with ErrPreconditionFailed if
	// an object already exists at the key.
	IfNoneMatch string
}

// Store is the interface for object storage operations.
//
// Implementations must be safe for concurrent use and should wrap errors in
// [ObjectError].
type Store interface {
	// Put stores an object. size must match the bytes read from reader.
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// PutWithOptions stores an object with metadata or a create-only condition.
	PutWithOptions(ctx context.Context, key string, reader io.Reader, size int64, contentType string, opts PutOptions) error

	// Get retrieves an entire object. The caller must close the reader.
	// Returns ErrNotFound when the object does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Head retrieves object metadata without the body.
	// Returns ErrNotFound when the object does not exist.
	Head(ctx context.Context, key string) (ObjectMeta, error)

	// Delete removes an object. Deleting a missing object succeeds.
	Delete(ctx context.Context, key string) error

	// List returns objects under prefix in lexicographic key order.
	List(ctx context.Context, prefix string) ([]ObjectMeta, error)

	// Close releases resources associated with the store.
	Close() error
}

// MultipartUpload is an in-progress multipart upload.
//
// Parts are numbered from 1. Every part except the last must meet the
// backend's minimum part size (5 MiB on S3). Finish with Complete, or Abort
// to discard the uploaded parts.
type MultipartUpload interface {
	UploadID() string
	UploadPart(ctx context.Context, partNum int, reader io.Reader, size int64) (etag string, err error)

	// Complete finalizes the upload. etags must be in part number order.
	Complete(ctx context.Context, etags []string) error

	// Abort cancels the upload. Abort is idempotent.
	Abort(ctx context.Context) error
}

// MultipartStore extends Store with multipart upload support.
type MultipartStore interface {
	Store

	CreateMultipartUpload(ctx context.Context, key string, contentType string) (MultipartUpload, error)
	CreateMultipartUploadWithOptions(ctx context.Context, key string, contentType string, opts PutOptions) (MultipartUpload, error)
}

// Exists reports whether key exists. A missing object is not an error.
func Exists(ctx context.Context, store Store, key string) (bool, error) {
	_, err := store.Head(ctx, key)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// BatchDeleter is implemented by stores that remove many keys per request.
//
// DeleteObjects attempts every key even when some fail and returns the
// joined per-key errors. Missing keys are not errors.
type BatchDeleter interface {
	DeleteObjects(ctx context.Context, keys []string) error
}

// DeleteAll deletes every key, continuing past failures, and returns the
// joined errors. Stores implementing [BatchDeleter] get one call.
func DeleteAll(ctx context.Context, store Store, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if bd, ok := store.(BatchDeleter); ok {
		return bd.DeleteObjects(ctx, keys)
	}
	var errs []error
	for _, key := range keys {
		if err := store.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
