// Package config provides configuration loading and validation for gridlake.
// Supports YAML files with environment variable overrides.
package config

// Config holds all configuration for the ingestion pipeline.
type Config struct {
	ObjectStore   ObjectStoreConfig   `yaml:"objectStore"`
	Metadata      MetadataConfig      `yaml:"metadata"`
	Query         QueryConfig         `yaml:"query"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Tracking      TrackingConfig      `yaml:"tracking"`
	Activity      ActivityConfig      `yaml:"activity"`
	GC            GCConfig            `yaml:"gc"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ObjectStoreConfig struct {
	Endpoint      string `yaml:"endpoint" env:"GRIDLAKE_S3_ENDPOINT"`
	Bucket        string `yaml:"bucket" env:"GRIDLAKE_S3_BUCKET"`
	Region        string `yaml:"region" env:"GRIDLAKE_S3_REGION"`
	AccessKey     string `yaml:"accessKey" env:"GRIDLAKE_S3_ACCESS_KEY"`
	SecretKey     string `yaml:"secretKey" env:"GRIDLAKE_S3_SECRET_KEY"`
	PartSizeBytes int    `yaml:"partSizeBytes" env:"GRIDLAKE_S3_PART_SIZE"`
}

// MetadataConfig selects the document store. Backend "memory" keeps
// everything in process and is meant for local runs.
type MetadataConfig struct {
	Backend          string `yaml:"backend" env:"GRIDLAKE_METADATA_BACKEND"`
	OxiaEndpoint     string `yaml:"oxiaEndpoint" env:"GRIDLAKE_OXIA_ENDPOINT"`
	Namespace        string `yaml:"namespace" env:"GRIDLAKE_OXIA_NAMESPACE"`
	RequestTimeoutMs int64  `yaml:"requestTimeoutMs" env:"GRIDLAKE_OXIA_REQUEST_TIMEOUT_MS"`
}

type QueryConfig struct {
	Backend        string `yaml:"backend" env:"GRIDLAKE_QUERY_BACKEND"`
	Database       string `yaml:"database" env:"GRIDLAKE_QUERY_DATABASE"`
	Workgroup      string `yaml:"workgroup" env:"GRIDLAKE_ATHENA_WORKGROUP"`
	OutputLocation string `yaml:"outputLocation" env:"GRIDLAKE_ATHENA_OUTPUT_LOCATION"`
	DuckDBPath     string `yaml:"duckdbPath" env:"GRIDLAKE_DUCKDB_PATH"`
	PollIntervalMs int64  `yaml:"pollIntervalMs" env:"GRIDLAKE_QUERY_POLL_INTERVAL_MS"`
	TimeoutMs      int64  `yaml:"timeoutMs" env:"GRIDLAKE_QUERY_TIMEOUT_MS"`
}

type IngestConfig struct {
	SampleRows         int    `yaml:"sampleRows" env:"GRIDLAKE_INGEST_SAMPLE_ROWS"`
	MaxConcurrentFiles int    `yaml:"maxConcurrentFiles" env:"GRIDLAKE_INGEST_MAX_CONCURRENT_FILES"`
	BranchBufferRows   int    `yaml:"branchBufferRows" env:"GRIDLAKE_INGEST_BRANCH_BUFFER_ROWS"`
	RawCompression     string `yaml:"rawCompression" env:"GRIDLAKE_INGEST_RAW_COMPRESSION"`
	Delimiter          string `yaml:"delimiter" env:"GRIDLAKE_INGEST_DELIMITER"`
}

type TrackingConfig struct {
	Backend       string `yaml:"backend" env:"GRIDLAKE_TRACKING_BACKEND"`
	RedisAddr     string `yaml:"redisAddr" env:"GRIDLAKE_REDIS_ADDR"`
	RedisPassword string `yaml:"redisPassword" env:"GRIDLAKE_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redisDb" env:"GRIDLAKE_REDIS_DB"`
	RecordTTLMs   int64  `yaml:"recordTtlMs" env:"GRIDLAKE_TRACKING_RECORD_TTL_MS"`
}

type ActivityConfig struct {
	Backend          string   `yaml:"backend" env:"GRIDLAKE_ACTIVITY_BACKEND"`
	KafkaBrokers     []string `yaml:"kafkaBrokers" env:"GRIDLAKE_KAFKA_BROKERS"`
	KafkaTopic       string   `yaml:"kafkaTopic" env:"GRIDLAKE_KAFKA_TOPIC"`
	KafkaPartitions  int      `yaml:"kafkaPartitions" env:"GRIDLAKE_KAFKA_PARTITIONS"`
	KafkaReplication int      `yaml:"kafkaReplication" env:"GRIDLAKE_KAFKA_REPLICATION"`
}

type GCConfig struct {
	Enabled        bool  `yaml:"enabled" env:"GRIDLAKE_GC_ENABLED"`
	OrphanTTLMs    int64 `yaml:"orphanTTLMs" env:"GRIDLAKE_GC_ORPHAN_TTL_MS"`
	ScanIntervalMs int64 `yaml:"scanIntervalMs" env:"GRIDLAKE_GC_SCAN_INTERVAL_MS"`
}

type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metricsAddr" env:"GRIDLAKE_METRICS_ADDR"`
	LogLevel    string `yaml:"logLevel" env:"GRIDLAKE_LOG_LEVEL"`
	LogFormat   string `yaml:"logFormat" env:"GRIDLAKE_LOG_FORMAT"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		ObjectStore: ObjectStoreConfig{
			Region:        "us-east-1",
			PartSizeBytes: 8 * 1024 * 1024, // 8MB
		},
		Metadata: MetadataConfig{
			Backend:          "oxia",
			OxiaEndpoint:     "localhost:6648",
			Namespace:        "gridlake",
			RequestTimeoutMs: 30000,
		},
		Query: QueryConfig{
			Backend:        "athena",
			Database:       "default",
			Workgroup:      "primary",
			PollIntervalMs: 500,
			TimeoutMs:      120000, // 2 minutes
		},
		Ingest: IngestConfig{
			SampleRows:         1000,
			MaxConcurrentFiles: 4,
			BranchBufferRows:   256,
			RawCompression:     "none",
			Delimiter:          ",",
		},
		Tracking: TrackingConfig{
			Backend:     "metadata",
			RedisAddr:   "localhost:6379",
			RecordTTLMs: 7 * 24 * 3600 * 1000, // 1 week
		},
		Activity: ActivityConfig{
			Backend:          "log",
			KafkaTopic:       "gridlake-activity",
			KafkaPartitions:  1,
			KafkaReplication: 1,
		},
		GC: GCConfig{
			Enabled:        true,
			OrphanTTLMs:    3600000, // 1 hour
			ScanIntervalMs: 60000,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: ":9090",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}
