package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that points at a YAML file.
const EnvConfigPath = "GRIDLAKE_CONFIG"

// Load reads the file named by GRIDLAKE_CONFIG, or starts from Default when
// it is unset, then applies environment overrides and validates.
func Load() (*Config, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return LoadFromPath(path)
	}
	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath reads a YAML file over the defaults, then applies environment
// overrides and validates. Fields absent from the file keep their defaults.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without env overrides or validation.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

// applyEnv walks every section and overrides fields whose env tag names a
// set variable.
func (c *Config) applyEnv() error {
	return applyEnvTo(reflect.ValueOf(c).Elem())
}

func applyEnvTo(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		sf := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := applyEnvTo(field); err != nil {
				return err
			}
			continue
		}

		name := sf.Tag.Get("env")
		if name == "" {
			continue
		}
		raw, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		if err := setField(field, raw); err != nil {
			return fmt.Errorf("config: %s=%q: %w", name, raw, err)
		}
	}
	return nil
}

func setField(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		var parts []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

var (
	validMetadataBackends = []string{"oxia", "memory"}
	validQueryBackends    = []string{"athena", "duckdb"}
	validCompressions     = []string{"none", "gzip", "zstd", "snappy", "lz4"}
	validTrackingBackends = []string{"metadata", "redis"}
	validActivityBackends = []string{"log", "kafka"}
	validLogLevels        = []string{"debug", "info", "warn", "error"}
	validLogFormats       = []string{"json", "text"}
)

// Validate reports every invalid setting, joined.
func (c *Config) Validate() error {
	var errs []error
	oneOf := func(field, value string, allowed []string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: %q is not one of %s", field, value, strings.Join(allowed, ", ")))
	}
	positive := func(field string, value int64) {
		if value <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive, got %d", field, value))
		}
	}

	if c.ObjectStore.Bucket == "" {
		errs = append(errs, errors.New("objectStore.bucket: required"))
	}
	if c.ObjectStore.PartSizeBytes < 5*1024*1024 {
		errs = append(errs, fmt.Errorf("objectStore.partSizeBytes: must be at least 5MiB, got %d", c.ObjectStore.PartSizeBytes))
	}

	oneOf("metadata.backend", c.Metadata.Backend, validMetadataBackends)
	if c.Metadata.Backend == "oxia" && (c.Metadata.OxiaEndpoint == "" || c.Metadata.Namespace == "") {
		errs = append(errs, errors.New("metadata: oxiaEndpoint and namespace are required for the oxia backend"))
	}

	oneOf("query.backend", c.Query.Backend, validQueryBackends)
	if c.Query.Backend == "athena" && c.Query.OutputLocation == "" {
		errs = append(errs, errors.New("query.outputLocation: required for the athena backend"))
	}
	positive("query.pollIntervalMs", c.Query.PollIntervalMs)
	positive("query.timeoutMs", c.Query.TimeoutMs)

	positive("ingest.sampleRows", int64(c.Ingest.SampleRows))
	positive("ingest.maxConcurrentFiles", int64(c.Ingest.MaxConcurrentFiles))
	positive("ingest.branchBufferRows", int64(c.Ingest.BranchBufferRows))
	oneOf("ingest.rawCompression", c.Ingest.RawCompression, validCompressions)
	if len([]rune(c.Ingest.Delimiter)) != 1 {
		errs = append(errs, fmt.Errorf("ingest.delimiter: must be a single character, got %q", c.Ingest.Delimiter))
	}

	oneOf("tracking.backend", c.Tracking.Backend, validTrackingBackends)
	if c.Tracking.Backend == "redis" && c.Tracking.RedisAddr == "" {
		errs = append(errs, errors.New("tracking.redisAddr: required for the redis backend"))
	}

	oneOf("activity.backend", c.Activity.Backend, validActivityBackends)
	if c.Activity.Backend == "kafka" {
		if len(c.Activity.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("activity.kafkaBrokers: required for the kafka backend"))
		}
		if c.Activity.KafkaTopic == "" {
			errs = append(errs, errors.New("activity.kafkaTopic: required for the kafka backend"))
		}
	}

	if c.GC.Enabled {
		positive("gc.orphanTTLMs", c.GC.OrphanTTLMs)
		positive("gc.scanIntervalMs", c.GC.ScanIntervalMs)
	}

	oneOf("observability.logLevel", c.Observability.LogLevel, validLogLevels)
	oneOf("observability.logFormat", c.Observability.LogFormat, validLogFormats)

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid: %w", errors.Join(errs...))
	}
	return nil
}
