// Package s3 implements objectstore.MultipartStore on S3 and S3-compatible
// endpoints such as MinIO.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/gridlake-io/gridlake/internal/objectstore"
)

// maxDeleteKeys is the DeleteObjects limit per request.
const maxDeleteKeys = 1000

var errClosed = errors.New("s3: store is closed")

// Config configures an S3 store.
type Config struct {
	Bucket string

	// Region defaults to us-east-1.
	Region string

	// Endpoint overrides the AWS endpoint, e.g. "http://localhost:9000"
	// for MinIO.
	Endpoint string

	// Static credentials. Both empty means the default credential chain.
	AccessKeyID     string
	SecretAccessKey string

	// UsePathStyle addresses objects as endpoint/bucket/key. MinIO needs it.
	UsePathStyle bool
}

// Store keeps the raw uploads and columnar copies of every client in one
// bucket.
type Store struct {
	client *s3.Client
	bucket string
	closed atomic.Bool
}

// LoadAWSConfig resolves the AWS configuration shared by the S3 store and
// the Athena query client. Static keys override the default credential chain.
func LoadAWSConfig(ctx context.Context, region, accessKeyID, secretAccessKey string) (aws.Config, error) {
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("s3: failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// New creates a store for cfg.Bucket. It does not contact the endpoint;
// use CheckBucket for that.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket name is required")
	}
	awsCfg, err := LoadAWSConfig(ctx, cfg.Region, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// MinIO omits response checksums; skip the warning for each GET.
		o.DisableLogOutputChecksumValidationSkipped = true
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Bucket returns the bucket the store writes to.
func (s *Store) Bucket() string {
	return s.bucket
}

// CheckBucket verifies that the bucket exists and the credentials reach it.
func (s *Store) CheckBucket(ctx context.Context) error {
	if s.closed.Load() {
		return errClosed
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	err = classify("HeadBucket", s.bucket, err)
	if errors.Is(err, objectstore.ErrNotFound) {
		return &objectstore.ObjectError{Op: "HeadBucket", Key: s.bucket, Err: objectstore.ErrBucketNotFound}
	}
	return err
}

func (s *Store) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	return s.PutWithOptions(ctx, key, reader, size, contentType, objectstore.PutOptions{})
}

// PutWithOptions uploads the object in one request. IfNoneMatch "*" turns a
// second upload of the same key into ErrPreconditionFailed.
func (s *Store) PutWithOptions(ctx context.Context, key string, reader io.Reader, size int64, contentType string, opts objectstore.PutOptions) error {
	if s.closed.Load() {
		return errClosed
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          reader,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
		Metadata:      opts.Metadata,
	}
	if opts.IfNoneMatch != "" {
		input.IfNoneMatch = aws.String(opts.IfNoneMatch)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return classify("Put", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if s.closed.Load() {
		return nil, errClosed
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify("Get", key, err)
	}
	return out.Body, nil
}

func (s *Store) Head(ctx context.Context, key string) (objectstore.ObjectMeta, error) {
	if s.closed.Load() {
		return objectstore.ObjectMeta{}, errClosed
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return objectstore.ObjectMeta{}, classify("Head", key, err)
	}
	meta := objectstore.ObjectMeta{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ETag:        aws.ToString(out.ETag),
		Metadata:    out.Metadata,
	}
	if out.LastModified != nil {
		meta.LastModified = out.LastModified.UnixMilli()
	}
	return meta, nil
}

// Delete removes key. A missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return errClosed
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err = classify("Delete", key, err); errors.Is(err, objectstore.ErrNotFound) {
		return nil
	}
	return err
}

// DeleteObjects removes keys with one DeleteObjects request per thousand
// keys. Requests run in order; a failed request does not stop the rest.
func (s *Store) DeleteObjects(ctx context.Context, keys []string) error {
	if s.closed.Load() {
		return errClosed
	}
	var errs []error
	for _, batch := range chunkKeys(keys, maxDeleteKeys) {
		ids := make([]types.ObjectIdentifier, len(batch))
		for i, k := range batch {
			ids[i] = types.ObjectIdentifier{Key: aws.String(k)}
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			errs = append(errs, classify("DeleteObjects", batch[0], err))
			continue
		}
		errs = append(errs, deleteErrors(out.Errors)...)
	}
	return errors.Join(errs...)
}

// List pages through every object under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]objectstore.ObjectMeta, error) {
	if s.closed.Load() {
		return nil, errClosed
	}
	var results []objectstore.ObjectMeta
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, classify("List", prefix, err)
		}
		for _, obj := range page.Contents {
			results = append(results, listedMeta(obj))
		}
	}
	return results, nil
}

// Close marks the store closed. The SDK client holds no resources.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *Store) CreateMultipartUpload(ctx context.Context, key string, contentType string) (objectstore.MultipartUpload, error) {
	return s.CreateMultipartUploadWithOptions(ctx, key, contentType, objectstore.PutOptions{})
}

// CreateMultipartUploadWithOptions starts an upload. Metadata is attached
// when the upload completes; IfNoneMatch is not supported for multipart.
func (s *Store) CreateMultipartUploadWithOptions(ctx context.Context, key string, contentType string, opts objectstore.PutOptions) (objectstore.MultipartUpload, error) {
	if s.closed.Load() {
		return nil, errClosed
	}
	out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Metadata:    opts.Metadata,
	})
	if err != nil {
		return nil, classify("CreateMultipartUpload", key, err)
	}
	return &upload{store: s, key: key, id: aws.ToString(out.UploadId)}, nil
}

func listedMeta(obj types.Object) objectstore.ObjectMeta {
	meta := objectstore.ObjectMeta{
		Key:  aws.ToString(obj.Key),
		Size: aws.ToInt64(obj.Size),
		ETag: aws.ToString(obj.ETag),
	}
	if obj.LastModified != nil {
		meta.LastModified = obj.LastModified.UnixMilli()
	}
	return meta
}

func chunkKeys(keys []string, size int) [][]string {
	var out [][]string
	for len(keys) > size {
		out = append(out, keys[:size:size])
		keys = keys[size:]
	}
	if len(keys) > 0 {
		out = append(out, keys)
	}
	return out
}

// deleteErrors converts the per-key failures of a DeleteObjects response.
// NoSuchKey entries count as deleted.
func deleteErrors(failed []types.Error) []error {
	var errs []error
	for _, e := range failed {
		code := aws.ToString(e.Code)
		if code == "NoSuchKey" {
			continue
		}
		errs = append(errs, &objectstore.ObjectError{
			Op:  "DeleteObjects",
			Key: aws.ToString(e.Key),
			Err: codeError(code, aws.ToString(e.Message)),
		})
	}
	return errs
}

// codeError maps an S3 error code to the objectstore sentinel errors.
func codeError(code, message string) error {
	switch code {
	case "NoSuchKey", "NotFound":
		return objectstore.ErrNotFound
	case "NoSuchBucket":
		return objectstore.ErrBucketNotFound
	case "AccessDenied", "Forbidden":
		return objectstore.ErrAccessDenied
	case "PreconditionFailed":
		return objectstore.ErrPreconditionFailed
	}
	if message == "" {
		return errors.New(code)
	}
	return fmt.Errorf("%s: %s", code, message)
}

// classify wraps err in an ObjectError whose cause is a sentinel error when
// the API code or HTTP status identifies one.
func classify(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if sentinel := codeError(apiErr.ErrorCode(), ""); isSentinel(sentinel) {
			return &objectstore.ObjectError{Op: op, Key: key, Err: sentinel}
		}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return &objectstore.ObjectError{Op: op, Key: key, Err: objectstore.ErrNotFound}
		case http.StatusForbidden:
			return &objectstore.ObjectError{Op: op, Key: key, Err: objectstore.ErrAccessDenied}
		case http.StatusPreconditionFailed:
			return &objectstore.ObjectError{Op: op, Key: key, Err: objectstore.ErrPreconditionFailed}
		}
	}
	return &objectstore.ObjectError{Op: op, Key: key, Err: err}
}

func isSentinel(err error) bool {
	switch err {
	case objectstore.ErrNotFound, objectstore.ErrBucketNotFound,
		objectstore.ErrAccessDenied, objectstore.ErrPreconditionFailed:
		return true
	}
	return false
}

type upload struct {
	store *Store
	key   string
	id    string
}

func (u *upload) UploadID() string {
	return u.id
}

func (u *upload) UploadPart(ctx context.Context, partNum int, reader io.Reader, size int64) (string, error) {
	if u.store.closed.Load() {
		return "", errClosed
	}
	out, err := u.store.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(u.store.bucket),
		Key:           aws.String(u.key),
		UploadId:      aws.String(u.id),
		PartNumber:    aws.Int32(int32(partNum)),
		Body:          reader,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", classify("UploadPart", u.key, err)
	}
	return aws.ToString(out.ETag), nil
}

func (u *upload) Complete(ctx context.Context, etags []string) error {
	if u.store.closed.Load() {
		return errClosed
	}
	parts := make([]types.CompletedPart, len(etags))
	for i, etag := range etags {
		parts[i] = types.CompletedPart{PartNumber: aws.Int32(int32(i + 1)), ETag: aws.String(etag)}
	}
	_, err := u.store.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(u.store.bucket),
		Key:             aws.String(u.key),
		UploadId:        aws.String(u.id),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	return classify("CompleteMultipartUpload", u.key, err)
}

// Abort discards the uploaded parts. An upload S3 no longer knows is
// already gone.
func (u *upload) Abort(ctx context.Context) error {
	if u.store.closed.Load() {
		return errClosed
	}
	_, err := u.store.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(u.store.bucket),
		Key:      aws.String(u.key),
		UploadId: aws.String(u.id),
	})
	var noSuchUpload *types.NoSuchUpload
	if errors.As(err, &noSuchUpload) {
		return nil
	}
	return classify("AbortMultipartUpload", u.key, err)
}

var (
	_ objectstore.MultipartStore  = (*Store)(nil)
	_ objectstore.BatchDeleter    = (*Store)(nil)
	_ objectstore.MultipartUpload = (*upload)(nil)
)
