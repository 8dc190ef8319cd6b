package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gridlake-io/gridlake/internal/activity"
	"github.com/gridlake-io/gridlake/internal/catalog"
	"github.com/gridlake-io/gridlake/internal/config"
	"github.com/gridlake-io/gridlake/internal/convert"
	"github.com/gridlake-io/gridlake/internal/ingest"
	"github.com/gridlake-io/gridlake/internal/logging"
	"github.com/gridlake-io/gridlake/internal/metadata"
	metaoxia "github.com/gridlake-io/gridlake/internal/metadata/oxia"
	"github.com/gridlake-io/gridlake/internal/metrics"
	"github.com/gridlake-io/gridlake/internal/objectstore"
	"github.com/gridlake-io/gridlake/internal/objectstore/s3"
	"github.com/gridlake-io/gridlake/internal/query"
	"github.com/gridlake-io/gridlake/internal/query/athena"
	"github.com/gridlake-io/gridlake/internal/query/localjobs"
	"github.com/gridlake-io/gridlake/internal/reconcile"
	"github.com/gridlake-io/gridlake/internal/tracking"
)

// app holds the components built from one configuration.
type app struct {
	cfg    *config.Config
	logger *logging.Logger

	meta     metadata.MetadataStore
	store    objectstore.Store
	bucket   *s3.Store
	gateway  *query.Gateway
	tracker  tracking.Tracker
	activity activity.Logger

	ingestMetrics *metrics.IngestMetrics
	gcMetrics     *metrics.GCMetrics

	closers []func() error
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases components in reverse construction order.
func (a *app) Close() error {
	var errList []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errList = append(errList, err)
		}
	}
	a.closers = nil
	return errors.Join(errList...)
}

// newApp builds the stores and query gateway. Components that only some
// commands need are built lazily by the with* methods.
func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if err := a.openMetadata(ctx); err != nil {
		return nil, err
	}
	if err := a.openObjectStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openGateway(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openMetadata(ctx context.Context) error {
	var store metadata.MetadataStore
	switch strings.ToLower(a.cfg.Metadata.Backend) {
	case "memory":
		a.logger.Warn("using in-memory metadata store; catalog is lost on exit")
		store = metadata.NewMockStore()
	case "oxia", "":
		oxiaStore, err := metaoxia.New(ctx, metaoxia.Config{
			ServiceAddress: a.cfg.Metadata.OxiaEndpoint,
			Namespace:      a.cfg.Metadata.Namespace,
			RequestTimeout: time.Duration(a.cfg.Metadata.RequestTimeoutMs) * time.Millisecond,
		})
		if err != nil {
			return fmt.Errorf("failed to create Oxia metadata store: %w", err)
		}
		store = oxiaStore
	default:
		return fmt.Errorf("unknown metadata backend %q", a.cfg.Metadata.Backend)
	}
	a.meta = metadata.NewInstrumentedStore(store, metrics.NewMetadataMetrics())
	a.onClose(a.meta.Close)
	return nil
}

func (a *app) openObjectStore(ctx context.Context) error {
	oc := a.cfg.ObjectStore
	store, err := s3.New(ctx, s3.Config{
		Bucket:          oc.Bucket,
		Region:          oc.Region,
		Endpoint:        oc.Endpoint,
		AccessKeyID:     oc.AccessKey,
		SecretAccessKey: oc.SecretKey,
		UsePathStyle:    oc.Endpoint != "",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}
	a.bucket = store
	a.store = objectstore.NewInstrumentedStore(store, metrics.NewObjectStoreMetrics())
	a.onClose(a.store.Close)
	return nil
}

func (a *app) openGateway(ctx context.Context) error {
	qc := a.cfg.Query
	var client query.JobClient
	switch strings.ToLower(qc.Backend) {
	case "athena":
		oc := a.cfg.ObjectStore
		awsCfg, err := s3.LoadAWSConfig(ctx, oc.Region, oc.AccessKey, oc.SecretKey)
		if err != nil {
			return err
		}
		client = athena.NewFromConfig(awsCfg, athena.Config{
			Database:       qc.Database,
			Workgroup:      qc.Workgroup,
			OutputLocation: qc.OutputLocation,
		})
	case "duckdb":
		oc := a.cfg.ObjectStore
		runner, err := localjobs.Open(ctx, qc.DuckDBPath, localjobs.Options{
			InitSQL: localjobs.S3SecretSQL(oc.AccessKey, oc.SecretKey, oc.Endpoint, oc.Region),
		})
		if err != nil {
			return fmt.Errorf("failed to open duckdb: %w", err)
		}
		a.onClose(runner.Close)
		client = runner
	default:
		return fmt.Errorf("unknown query backend %q", qc.Backend)
	}

	a.gateway = query.NewGateway(client, query.Options{
		PollInterval: time.Duration(qc.PollIntervalMs) * time.Millisecond,
		Timeout:      time.Duration(qc.TimeoutMs) * time.Millisecond,
	})
	a.gateway.SetMetrics(metrics.NewQueryMetrics())
	return nil
}

// withTracking builds the process tracker and activity sink.
func (a *app) withTracking(ctx context.Context) error {
	tc := a.cfg.Tracking
	switch strings.ToLower(tc.Backend) {
	case "metadata", "":
		a.tracker = tracking.NewMetadataTracker(a.meta)
	case "redis":
		t, err := tracking.NewRedisTracker(ctx, tracking.RedisConfig{
			Address:  tc.RedisAddr,
			Password: tc.RedisPassword,
			Database: tc.RedisDB,
			TTL:      time.Duration(tc.RecordTTLMs) * time.Millisecond,
		})
		if err != nil {
			return fmt.Errorf("failed to connect process tracker: %w", err)
		}
		a.onClose(t.Close)
		a.tracker = t
	default:
		return fmt.Errorf("unknown tracking backend %q", tc.Backend)
	}

	ac := a.cfg.Activity
	switch strings.ToLower(ac.Backend) {
	case "log", "":
		a.activity = activity.NewLogSink(a.logger)
	case "kafka":
		sink, err := activity.NewKafkaSink(ctx, activity.KafkaConfig{
			Brokers:           ac.KafkaBrokers,
			Topic:             ac.KafkaTopic,
			Partitions:        int32(ac.KafkaPartitions),
			ReplicationFactor: int16(ac.KafkaReplication),
		})
		if err != nil {
			return fmt.Errorf("failed to create activity sink: %w", err)
		}
		a.onClose(func() error {
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return sink.Close(flushCtx)
		})
		a.activity = sink
	default:
		return fmt.Errorf("unknown activity backend %q", ac.Backend)
	}
	return nil
}

// ingestService composes the ingestion pipeline.
func (a *app) ingestService(ctx context.Context) (*ingest.Service, error) {
	if err := a.bucket.CheckBucket(ctx); err != nil {
		return nil, fmt.Errorf("object store unreachable: %w", err)
	}
	if err := a.withTracking(ctx); err != nil {
		return nil, err
	}
	ic := a.cfg.Ingest
	codec, err := convert.ParseCodec(ic.RawCompression)
	if err != nil {
		return nil, err
	}
	delim, err := delimiter(ic.Delimiter)
	if err != nil {
		return nil, err
	}

	a.ingestMetrics = metrics.NewIngestMetrics()
	pipeline := convert.NewPipeline(a.store, convert.Options{
		SampleRows: ic.SampleRows,
		BufferRows: ic.BranchBufferRows,
		PartSize:   a.cfg.ObjectStore.PartSizeBytes,
		Delimiter:  delim,
		RawCodec:   codec,
	})
	pipeline.SetMetrics(a.ingestMetrics)

	dialect, err := reconcile.DialectFor(strings.ToLower(a.cfg.Query.Backend), a.cfg.Query.Database)
	if err != nil {
		return nil, err
	}
	rec := reconcile.New(a.gateway, a.store, dialect, reconcile.Options{Bucket: a.cfg.ObjectStore.Bucket})

	return ingest.New(ingest.Deps{
		Pipeline:   pipeline,
		Reconciler: rec,
		Catalog:    catalog.New(a.meta),
		Store:      a.store,
		Meta:       a.meta,
		Tracker:    a.tracker,
		Activity:   a.activity,
		Metrics:    a.ingestMetrics,
	}, ingest.Options{MaxConcurrentFiles: ic.MaxConcurrentFiles}), nil
}

// delimiter reads the configured field separator. Empty means comma.
func delimiter(s string) (rune, error) {
	if s == "" {
		return ',', nil
	}
	r := []rune(s)
	if len(r) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	return r[0], nil
}
