package oxia

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	oxiaclient "github.com/oxia-db/oxia/oxia"

	"github.com/gridlake-io/gridlake/internal/metadata"
)

// Config configures the Oxia metadata store.
type Config struct {
	// ServiceAddress is host:port of the Oxia service, e.g. "localhost:6648".
	ServiceAddress string

	// Namespace scopes every key the store reads or writes.
	Namespace string

	// RequestTimeout bounds each request. Zero keeps the client default.
	RequestTimeout time.Duration
}

// Store keeps the catalogue, process records and orphan markers in Oxia.
type Store struct {
	client oxiaclient.SyncClient
	closed atomic.Bool
}

// New connects to the Oxia service.
func New(ctx context.Context, cfg Config) (*Store, error) {
	switch {
	case cfg.ServiceAddress == "":
		return nil, errors.New("oxia: service address is required")
	case cfg.Namespace == "":
		return nil, errors.New("oxia: namespace is required")
	}
	opts := []oxiaclient.ClientOption{oxiaclient.WithNamespace(cfg.Namespace)}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, oxiaclient.WithRequestTimeout(cfg.RequestTimeout))
	}
	client, err := oxiaclient.NewSyncClient(cfg.ServiceAddress, opts...)
	if err != nil {
		return nil, fmt.Errorf("oxia: failed to create client: %w", err)
	}
	return &Store{client: client}, nil
}

// Oxia numbers versions from 0. metadata.Version reserves 0 for a key that
// was never written, so the two are offset by one.
func toVersion(v oxiaclient.Version) metadata.Version {
	return metadata.Version(v.VersionId + 1)
}

func fromVersion(v metadata.Version) int64 {
	return int64(v) - 1
}

// translate maps Oxia client errors onto the metadata package errors.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, oxiaclient.ErrUnexpectedVersionId):
		return metadata.ErrVersionMismatch
	default:
		return fmt.Errorf("oxia: %s failed: %w", op, err)
	}
}

func (s *Store) Get(ctx context.Context, key string) (metadata.GetResult, error) {
	if s.closed.Load() {
		return metadata.GetResult{}, metadata.ErrStoreClosed
	}
	_, value, version, err := s.client.Get(ctx, key)
	if errors.Is(err, oxiaclient.ErrKeyNotFound) {
		return metadata.GetResult{}, nil
	}
	if err != nil {
		return metadata.GetResult{}, translate("get", err)
	}
	return metadata.GetResult{Value: value, Version: toVersion(version), Exists: true}, nil
}

// Put writes value. An expected version of 0 requires the key to be absent.
func (s *Store) Put(ctx context.Context, key string, value []byte, opts ...metadata.PutOption) (metadata.Version, error) {
	if s.closed.Load() {
		return 0, metadata.ErrStoreClosed
	}
	var putOpts []oxiaclient.PutOption
	switch expected := metadata.ExtractExpectedVersion(opts); {
	case expected == nil:
	case *expected == 0:
		putOpts = append(putOpts, oxiaclient.ExpectedRecordNotExists())
	default:
		putOpts = append(putOpts, oxiaclient.ExpectedVersionId(fromVersion(*expected)))
	}
	_, version, err := s.client.Put(ctx, key, value, putOpts...)
	if err != nil {
		return 0, translate("put", err)
	}
	return toVersion(version), nil
}

func (s *Store) Delete(ctx context.Context, key string, opts ...metadata.DeleteOption) error {
	if s.closed.Load() {
		return metadata.ErrStoreClosed
	}
	var delOpts []oxiaclient.DeleteOption
	if expected := metadata.ExtractDeleteExpectedVersion(opts); expected != nil {
		delOpts = append(delOpts, oxiaclient.ExpectedVersionId(fromVersion(*expected)))
	}
	err := s.client.Delete(ctx, key, delOpts...)
	if errors.Is(err, oxiaclient.ErrKeyNotFound) {
		return nil
	}
	return translate("delete", err)
}

// DeleteRange removes every key in [startKey, endKey) in one request per
// shard.
func (s *Store) DeleteRange(ctx context.Context, startKey, endKey string) error {
	if s.closed.Load() {
		return metadata.ErrStoreClosed
	}
	return translate("delete range", s.client.DeleteRange(ctx, startKey, scanEnd(startKey, endKey)))
}

func (s *Store) List(ctx context.Context, startKey, endKey string, limit int) ([]metadata.KV, error) {
	if s.closed.Load() {
		return nil, metadata.ErrStoreClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := s.client.RangeScan(ctx, startKey, scanEnd(startKey, endKey))
	var kvs []metadata.KV
	for r := range results {
		if r.Err != nil {
			go drain(results)
			return nil, translate("list", r.Err)
		}
		kvs = append(kvs, metadata.KV{Key: r.Key, Value: r.Value, Version: toVersion(r.Version)})
		if limit > 0 && len(kvs) >= limit {
			go drain(results)
			break
		}
	}
	return kvs, nil
}

func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.client.Close()
}

// scanEnd resolves the exclusive end of a scan whose caller gave only a
// prefix. Oxia orders keys segment by segment, so a prefix ending in '/'
// covers its direct children up to prefix+"/".
func scanEnd(startKey, endKey string) string {
	if endKey != "" {
		return endKey
	}
	if strings.HasSuffix(startKey, "/") {
		return startKey + "/"
	}
	return prefixEnd(startKey)
}

// prefixEnd returns the smallest key greater than every key starting with
// prefix, or "" when no such key exists.
func prefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0xFF {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}

func drain(results <-chan oxiaclient.GetResult) {
	for range results {
	}
}

var _ metadata.MetadataStore = (*Store)(nil)
