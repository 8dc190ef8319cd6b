package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/gridlake-io/gridlake/internal/objectstore"
)

// The integration tests run against a local MinIO binary at /tmp/minio and
// skip when it is missing.
const (
	minioBinary = "/tmp/minio"
	minioAddr   = "127.0.0.1:19000"
	minioUser   = "minioadmin"
)

var minio struct {
	proc    *os.Process
	dataDir string
	skip    string
}

func TestMain(m *testing.M) {
	if err := startMinio(); err != nil {
		minio.skip = fmt.Sprintf("MinIO not available: %v", err)
	}
	code := m.Run()
	stopMinio()
	os.Exit(code)
}

func startMinio() error {
	if _, err := os.Stat(minioBinary); err != nil {
		return err
	}
	dir, err := os.MkdirTemp("", "gridlake-minio-*")
	if err != nil {
		return err
	}
	minio.dataDir = dir

	cmd := exec.Command(minioBinary, "server", dir, "--address", minioAddr, "--quiet")
	cmd.Env = append(os.Environ(), "MINIO_ROOT_USER="+minioUser, "MINIO_ROOT_PASSWORD="+minioUser)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return err
	}
	minio.proc = cmd.Process

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", minioAddr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return errors.New("minio did not start listening")
}

func stopMinio() {
	if minio.proc != nil {
		minio.proc.Kill()
		minio.proc.Wait()
	}
	if minio.dataDir != "" {
		os.RemoveAll(minio.dataDir)
	}
}

func minioConfig(bucket string) Config {
	return Config{
		Bucket:          bucket,
		Endpoint:        "http://" + minioAddr,
		AccessKeyID:     minioUser,
		SecretAccessKey: minioUser,
		UsePathStyle:    true,
	}
}

// lakeStore returns a store on a fresh bucket that is emptied and removed
// when the test ends.
func lakeStore(t *testing.T, bucket string) *Store {
	t.Helper()
	if minio.skip != "" {
		t.Skip(minio.skip)
	}
	ctx := context.Background()
	store, err := New(ctx, minioConfig(bucket))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	_, err = store.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	var owned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &owned) {
		t.Fatalf("CreateBucket() = %v", err)
	}
	t.Cleanup(func() {
		if objs, err := store.List(ctx, ""); err == nil {
			keys := make([]string, len(objs))
			for i, o := range objs {
				keys[i] = o.Key
			}
			_ = store.DeleteObjects(ctx, keys)
		}
		store.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)})
		store.Close()
	})
	return store
}

func putCSV(t *testing.T, store *Store, key, body string) {
	t.Helper()
	if err := store.Put(context.Background(), key, strings.NewReader(body), int64(len(body)), "text/csv"); err != nil {
		t.Fatalf("Put(%s) = %v", key, err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil || !strings.Contains(err.Error(), "bucket name is required") {
		t.Fatalf("New() error = %v", err)
	}
}

func TestChunkKeys(t *testing.T) {
	keys := make([]string, 2501)
	for i := range keys {
		keys[i] = fmt.Sprintf("k%04d", i)
	}
	chunks := chunkKeys(keys, maxDeleteKeys)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if len(chunks[0]) != 1000 || len(chunks[1]) != 1000 || len(chunks[2]) != 501 {
		t.Errorf("chunk sizes = %d, %d, %d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
	if chunks[2][500] != "k2500" {
		t.Errorf("last key = %s", chunks[2][500])
	}
	if got := chunkKeys(nil, maxDeleteKeys); len(got) != 0 {
		t.Errorf("chunkKeys(nil) = %v", got)
	}
	if got := chunkKeys(keys[:1000], maxDeleteKeys); len(got) != 1 {
		t.Errorf("exactly one full chunk expected, got %d", len(got))
	}
}

func TestDeleteErrors(t *testing.T) {
	errs := deleteErrors([]types.Error{
		{Key: aws.String("client/acme/m1/data/sales/gone.parquet"), Code: aws.String("NoSuchKey")},
		{Key: aws.String("client/acme/m1/data/sales/locked.parquet"), Code: aws.String("AccessDenied"), Message: aws.String("Access Denied")},
		{Key: aws.String("client/acme/m1/input/sales/odd.csv"), Code: aws.String("InternalError"), Message: aws.String("try again")},
	})
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(errs), errs)
	}
	if !errors.Is(errs[0], objectstore.ErrAccessDenied) {
		t.Errorf("errs[0] = %v, want access denied", errs[0])
	}
	var oe *objectstore.ObjectError
	if !errors.As(errs[1], &oe) || oe.Key != "client/acme/m1/input/sales/odd.csv" || oe.Op != "DeleteObjects" {
		t.Errorf("errs[1] = %#v", errs[1])
	}
	if !strings.Contains(errs[1].Error(), "InternalError: try again") {
		t.Errorf("errs[1] message = %q", errs[1].Error())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no such key", &smithy.GenericAPIError{Code: "NoSuchKey"}, objectstore.ErrNotFound},
		{"head not found", &smithy.GenericAPIError{Code: "NotFound"}, objectstore.ErrNotFound},
		{"no such bucket", &smithy.GenericAPIError{Code: "NoSuchBucket"}, objectstore.ErrBucketNotFound},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, objectstore.ErrAccessDenied},
		{"precondition", &smithy.GenericAPIError{Code: "PreconditionFailed"}, objectstore.ErrPreconditionFailed},
		{"typed no such key", &types.NoSuchKey{}, objectstore.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("Get", "client/acme/m1/input/sales/q1.csv", tt.err)
			if !errors.Is(err, tt.want) {
				t.Errorf("classify() = %v, want %v", err, tt.want)
			}
		})
	}

	if classify("Get", "k", nil) != nil {
		t.Error("classify(nil) should be nil")
	}
	other := errors.New("connection reset")
	if err := classify("Get", "k", other); !errors.Is(err, other) {
		t.Errorf("unknown errors should stay wrapped, got %v", err)
	}
}

func TestClosedStore(t *testing.T) {
	store, err := New(context.Background(), Config{Bucket: "lake", Region: "us-east-1"})
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	store.Close()
	ctx := context.Background()

	if _, err := store.Get(ctx, "k"); !errors.Is(err, errClosed) {
		t.Errorf("Get() = %v", err)
	}
	if err := store.Put(ctx, "k", bytes.NewReader(nil), 0, ""); !errors.Is(err, errClosed) {
		t.Errorf("Put() = %v", err)
	}
	if err := store.DeleteObjects(ctx, []string{"k"}); !errors.Is(err, errClosed) {
		t.Errorf("DeleteObjects() = %v", err)
	}
	if err := store.CheckBucket(ctx); !errors.Is(err, errClosed) {
		t.Errorf("CheckBucket() = %v", err)
	}
}

func TestCheckBucket(t *testing.T) {
	store := lakeStore(t, "lake-check")
	ctx := context.Background()
	if err := store.CheckBucket(ctx); err != nil {
		t.Fatalf("CheckBucket() = %v", err)
	}

	missing, err := New(ctx, minioConfig("lake-missing"))
	if err != nil {
		t.Fatal(err)
	}
	if err := missing.CheckBucket(ctx); !errors.Is(err, objectstore.ErrBucketNotFound) {
		t.Errorf("CheckBucket() on missing bucket = %v", err)
	}
}

func TestRawUploadRoundTrip(t *testing.T) {
	store := lakeStore(t, "lake-raw")
	ctx := context.Background()

	key := objectstore.RawKey("acme", "m1", "sales", "q1.csv")
	body := "region,amount\nnorth,10\n"
	err := store.PutWithOptions(ctx, key, strings.NewReader(body), int64(len(body)), "text/csv", objectstore.PutOptions{
		Metadata: map[string]string{"process-id": "p-123"},
	})
	if err != nil {
		t.Fatalf("PutWithOptions() = %v", err)
	}

	meta, err := store.Head(ctx, key)
	if err != nil {
		t.Fatalf("Head() = %v", err)
	}
	if meta.Size != int64(len(body)) || meta.ContentType != "text/csv" {
		t.Errorf("Head() = %+v", meta)
	}
	if meta.Metadata["process-id"] != "p-123" {
		t.Errorf("metadata = %v", meta.Metadata)
	}

	rc, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != body {
		t.Errorf("Get() = %q", got)
	}
}

func TestCreateOnlyPut(t *testing.T) {
	store := lakeStore(t, "lake-create-only")
	ctx := context.Background()

	key := objectstore.DataKey("acme", "m1", "sales", "q1.csv")
	opts := objectstore.PutOptions{IfNoneMatch: "*"}
	if err := store.PutWithOptions(ctx, key, strings.NewReader("a"), 1, "application/vnd.apache.parquet", opts); err != nil {
		t.Fatalf("first put = %v", err)
	}
	err := store.PutWithOptions(ctx, key, strings.NewReader("b"), 1, "application/vnd.apache.parquet", opts)
	if !errors.Is(err, objectstore.ErrPreconditionFailed) {
		t.Errorf("second put = %v, want precondition failed", err)
	}
}

func TestMissingObjects(t *testing.T) {
	store := lakeStore(t, "lake-missing-objects")
	ctx := context.Background()
	key := objectstore.RawKey("acme", "m1", "sales", "never.csv")

	if _, err := store.Head(ctx, key); !errors.Is(err, objectstore.ErrNotFound) {
		t.Errorf("Head() = %v", err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, objectstore.ErrNotFound) {
		t.Errorf("Get() = %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("Delete() of a missing key = %v", err)
	}
	if ok, err := objectstore.Exists(ctx, store, key); ok || err != nil {
		t.Errorf("Exists() = %v, %v", ok, err)
	}
}

func TestListSeparatesRawAndData(t *testing.T) {
	store := lakeStore(t, "lake-list")
	ctx := context.Background()

	putCSV(t, store, objectstore.RawKey("acme", "m1", "sales", "q1.csv"), "a\n1\n")
	putCSV(t, store, objectstore.RawKey("acme", "m1", "sales", "q2.csv"), "a\n2\n")
	putCSV(t, store, objectstore.RawKey("acme", "m1", "returns", "q1.csv"), "a\n3\n")
	putCSV(t, store, objectstore.DataKey("acme", "m1", "sales", "q1.csv"), "pq")

	raw, err := store.List(ctx, objectstore.RawPrefix("acme", "m1", "sales"))
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(raw) != 2 || raw[0].Key != objectstore.RawKey("acme", "m1", "sales", "q1.csv") {
		t.Errorf("raw listing = %+v", raw)
	}
	data, err := store.List(ctx, objectstore.DataPrefix("acme", "m1", "sales"))
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(data) != 1 || data[0].LastModified == 0 {
		t.Errorf("data listing = %+v", data)
	}
}

func TestDeleteObjectsAcrossBatches(t *testing.T) {
	store := lakeStore(t, "lake-batch-delete")
	ctx := context.Background()

	var keys []string
	for i := 0; i < maxDeleteKeys+5; i++ {
		key := objectstore.RawKey("acme", "m1", "sales", fmt.Sprintf("part-%04d.csv", i))
		putCSV(t, store, key, "a\n1\n")
		keys = append(keys, key)
	}
	keep := objectstore.RawKey("acme", "m1", "returns", "q1.csv")
	putCSV(t, store, keep, "a\n1\n")

	// A key that never existed does not fail the batch.
	keys = append(keys, objectstore.RawKey("acme", "m1", "sales", "ghost.csv"))
	if err := objectstore.DeleteAll(ctx, store, keys); err != nil {
		t.Fatalf("DeleteAll() = %v", err)
	}

	left, err := store.List(ctx, "client/acme/")
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(left) != 1 || left[0].Key != keep {
		t.Errorf("remaining objects = %+v", left)
	}
}

func TestUploaderStreamsParts(t *testing.T) {
	store := lakeStore(t, "lake-uploader")
	ctx := context.Background()

	key := objectstore.DataKey("acme", "m1", "sales", "big.csv")
	up := objectstore.NewUploader(ctx, store, key, "application/vnd.apache.parquet", objectstore.UploaderOptions{
		PartSize: 5 * 1024 * 1024,
	})

	chunk := bytes.Repeat([]byte("0123456789abcdef"), 64*1024)
	var want bytes.Buffer
	for i := 0; i < 12; i++ {
		want.Write(chunk)
		if _, err := up.Write(chunk); err != nil {
			t.Fatalf("Write() = %v", err)
		}
	}
	if err := up.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	rc, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() = %v", err)
	}
	if !bytes.Equal(got, want.Bytes()) {
		t.Errorf("uploaded %d bytes, read back %d", want.Len(), len(got))
	}
}
