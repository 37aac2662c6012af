package eventgw

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/dittox/eventgw/internal/aggregate"
)

//go:embed config.schema.json
var configSchema string

var schema = jsonschema.MustCompileString("config.schema.json", configSchema)

// LoadConfig reads a config file, checks it against the config schema and
// decodes it over DefaultConfig, so omitted keys keep their defaults.
// Supported formats: JSON (.json), YAML (.yaml, .yml).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var (
		doc    any
		decode func(any) error
	)
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
		if doc, err = normalize(doc); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
		decode = func(v any) error { return yaml.Unmarshal(data, v) }
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
		decode = func(v any) error { return json.Unmarshal(data, v) }
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	if doc != nil {
		if err := schema.Validate(doc); err != nil {
			return nil, fmt.Errorf("config schema: %w", err)
		}
	}
	cfg := DefaultConfig()
	if err := decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// normalize converts a decoded YAML document into the JSON value model the
// schema validator expects.
func normalize(doc any) (any, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	return nil
}

// Load returns the effective configuration: the file at path (or the
// defaults when path is empty), then the environment, then validation.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateConfig validates a Config for correctness.
func ValidateConfig(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}

	if cfg.Webflow.SiteID == "" {
		return errors.New("webflow site_id is required")
	}
	if u, err := url.Parse(cfg.Webflow.BaseURL); err != nil || !u.IsAbs() {
		return fmt.Errorf("webflow base_url %q must be an absolute url", cfg.Webflow.BaseURL)
	}
	for k := range cfg.Webflow.Collections {
		if !knownKind(k) {
			return fmt.Errorf("unknown collection kind %q", k)
		}
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RequestsPerSecond <= 0 {
			return errors.New("rate_limit requires requests_per_second > 0")
		}
		if cfg.RateLimit.Burst < 1 {
			return errors.New("rate_limit requires burst >= 1")
		}
	}

	if cfg.Offline.Port <= 0 || cfg.Offline.Port > 65535 {
		return fmt.Errorf("invalid offline port %d", cfg.Offline.Port)
	}
	switch cfg.Offline.Storage.Driver {
	case DriverMemory:
	case DriverLevelDB, DriverSQLite, DriverPostgres:
		if cfg.Offline.Storage.DSN == "" {
			return fmt.Errorf("offline storage driver %q requires a dsn", cfg.Offline.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown offline storage driver %q", cfg.Offline.Storage.Driver)
	}
	oc, err := cfg.EdgeConfig()
	if err != nil {
		return err
	}
	if oc.Origin == nil || !oc.Origin.IsAbs() {
		return fmt.Errorf("offline origin %q must be an absolute url", cfg.Offline.Origin)
	}
	return oc.Validate()
}

func knownKind(k string) bool {
	for _, kind := range aggregate.Kinds {
		if string(kind) == k {
			return true
		}
	}
	return false
}
