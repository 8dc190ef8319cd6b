package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.ObjectStore.Bucket = "lake"
	cfg.Query.OutputLocation = "s3://lake/athena-results/"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "localhost:6648", cfg.Metadata.OxiaEndpoint)
	assert.Equal(t, 8*1024*1024, cfg.ObjectStore.PartSizeBytes)
	assert.Equal(t, 1000, cfg.Ingest.SampleRows)
	assert.Equal(t, "none", cfg.Ingest.RawCompression)
	assert.Equal(t, "athena", cfg.Query.Backend)
	assert.True(t, cfg.GC.Enabled)

	// Defaults alone lack a bucket and an Athena output location.
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "objectStore.bucket")
	assert.Contains(t, err.Error(), "query.outputLocation")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"duckdb needs no output location", func(c *Config) { c.Query.Backend = "duckdb"; c.Query.OutputLocation = "" }, ""},
		{"unknown query backend", func(c *Config) { c.Query.Backend = "presto" }, "query.backend"},
		{"small part size", func(c *Config) { c.ObjectStore.PartSizeBytes = 1024 }, "partSizeBytes"},
		{"bad compression", func(c *Config) { c.Ingest.RawCompression = "brotli" }, "rawCompression"},
		{"zero timeout", func(c *Config) { c.Query.TimeoutMs = 0 }, "query.timeoutMs"},
		{"multi-char delimiter", func(c *Config) { c.Ingest.Delimiter = ";;" }, "delimiter"},
		{"kafka without brokers", func(c *Config) { c.Activity.Backend = "kafka" }, "kafkaBrokers"},
		{"redis without addr", func(c *Config) { c.Tracking.Backend = "redis"; c.Tracking.RedisAddr = "" }, "redisAddr"},
		{"gc disabled ignores ttl", func(c *Config) { c.GC.Enabled = false; c.GC.OrphanTTLMs = 0 }, ""},
		{"bad log level", func(c *Config) { c.Observability.LogLevel = "trace" }, "logLevel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gridlake.yaml")
	yamlData := `
objectStore:
  bucket: lake
  endpoint: http://localhost:9000
query:
  backend: duckdb
ingest:
  sampleRows: 50
  rawCompression: zstd
activity:
  kafkaBrokers: [a:9092, b:9092]
`
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0o600))

	t.Setenv("GRIDLAKE_INGEST_MAX_CONCURRENT_FILES", "8")
	t.Setenv("GRIDLAKE_GC_ENABLED", "false")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "lake", cfg.ObjectStore.Bucket)
	assert.Equal(t, "http://localhost:9000", cfg.ObjectStore.Endpoint)
	assert.Equal(t, "duckdb", cfg.Query.Backend)
	assert.Equal(t, 50, cfg.Ingest.SampleRows)
	assert.Equal(t, "zstd", cfg.Ingest.RawCompression)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Activity.KafkaBrokers)
	assert.Equal(t, 8, cfg.Ingest.MaxConcurrentFiles)
	assert.False(t, cfg.GC.Enabled)

	// Untouched fields keep their defaults.
	assert.Equal(t, "us-east-1", cfg.ObjectStore.Region)
	assert.Equal(t, int64(500), cfg.Query.PollIntervalMs)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("GRIDLAKE_S3_BUCKET", "env-bucket")
	t.Setenv("GRIDLAKE_QUERY_BACKEND", "duckdb")
	t.Setenv("GRIDLAKE_ACTIVITY_BACKEND", "kafka")
	t.Setenv("GRIDLAKE_KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env-bucket", cfg.ObjectStore.Bucket)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Activity.KafkaBrokers)
}

func TestLoadBadEnvValue(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("GRIDLAKE_S3_BUCKET", "lake")
	t.Setenv("GRIDLAKE_INGEST_SAMPLE_ROWS", "many")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "GRIDLAKE_INGEST_SAMPLE_ROWS"), err.Error())
}

func TestLoadFromPathMissingFile(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("ingest: [unclosed"))
	assert.Error(t, err)
}
