package eventgw

import (
	"fmt"
	"net/url"
	"time"

	"github.com/dittox/eventgw/internal/aggregate"
	"github.com/dittox/eventgw/internal/offline"
)

// Config holds the configuration for the event gateway and its edge cache.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Webflow   WebflowConfig   `json:"webflow" yaml:"webflow"`
	Event     EventConfig     `json:"event" yaml:"event"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Offline   OfflineConfig   `json:"offline" yaml:"offline"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port int `json:"port" yaml:"port" env:"PORT"`
	// PublicDir serves the app from disk; empty uses the embedded shell.
	PublicDir string `json:"public_dir,omitempty" yaml:"public_dir,omitempty" env:"PUBLIC_DIR"`
}

// WebflowConfig configures the CMS client.
type WebflowConfig struct {
	APIToken       string `json:"api_token,omitempty" yaml:"api_token,omitempty" env:"WEBFLOW_API_TOKEN"`
	SiteID         string `json:"site_id" yaml:"site_id" env:"WEBFLOW_SITE_ID"`
	BaseURL        string `json:"base_url" yaml:"base_url" env:"WEBFLOW_BASE_URL"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	// Collections pins collection IDs by kind (speakers, schedule, sponsors,
	// stages, exhibitors, types).
	Collections map[string]string `json:"collections,omitempty" yaml:"collections,omitempty"`
}

// EventConfig selects the event partition of the shared collections.
type EventConfig struct {
	StageEvent    string `json:"stage_event" yaml:"stage_event"`
	ScheduleEvent string `json:"schedule_event" yaml:"schedule_event"`
}

// RateLimitConfig configures the per-client token bucket on /api/*.
type RateLimitConfig struct {
	Enabled           bool    `json:"enabled" yaml:"enabled"`
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             float64 `json:"burst" yaml:"burst"`
}

// OfflineConfig configures the edge cache manager.
type OfflineConfig struct {
	Port                int           `json:"port" yaml:"port"`
	Origin              string        `json:"origin" yaml:"origin" env:"EDGE_ORIGIN"`
	StaticCache         string        `json:"static_cache" yaml:"static_cache"`
	APICache            string        `json:"api_cache" yaml:"api_cache"`
	ImageCache          string        `json:"image_cache" yaml:"image_cache"`
	APIPrefix           string        `json:"api_prefix" yaml:"api_prefix"`
	CDNHosts            []string      `json:"cdn_hosts" yaml:"cdn_hosts"`
	Precache            []string      `json:"precache" yaml:"precache"`
	SkipWaiting         bool          `json:"skip_waiting" yaml:"skip_waiting"`
	// FetchTimeoutSeconds bounds each network fetch; zero means no timeout.
	FetchTimeoutSeconds int           `json:"fetch_timeout_seconds,omitempty" yaml:"fetch_timeout_seconds,omitempty"`
	Storage             StorageConfig `json:"storage" yaml:"storage"`
}

// StorageConfig selects the named-cache backend.
type StorageConfig struct {
	// Driver is one of memory, leveldb, sqlite, postgres.
	Driver     string `json:"driver" yaml:"driver" env:"OFFLINE_STORAGE_DRIVER"`
	DSN        string `json:"dsn,omitempty" yaml:"dsn,omitempty" env:"OFFLINE_STORAGE_DSN"`
	MaxEntries int    `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`
}

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverLevelDB  = "leveldb"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const cdnBase = "https://cdn.prod.website-files.com/655e0fa544c67c1ee5ce01a4/"

// DefaultConfig returns the configuration of the DittoX 2025 deployment.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{Port: 3000},
		Webflow: WebflowConfig{
			SiteID:         "655e0fa544c67c1ee5ce01a4",
			BaseURL:        "https://api.webflow.com/v2",
			TimeoutSeconds: 30,
		},
		Event: EventConfig{
			StageEvent:    "386bc0edacc93d0d034fa7bff70938a2",
			ScheduleEvent: "86742d9d05a1057c7f30ce72498d21da",
		},
		RateLimit: RateLimitConfig{Enabled: true, RequestsPerSecond: 10, Burst: 20},
		Offline: OfflineConfig{
			Port:        8081,
			Origin:      "http://localhost:3000",
			StaticCache: "dittox25-v1.0.0",
			APICache:    "dittox25-api-v1.0.0",
			ImageCache:  "dittox25-images-v1.0.0",
			APIPrefix:   "/api/",
			CDNHosts:    []string{"cdn.prod.website-files.com"},
			Precache: []string{
				"/",
				"/index.html",
				"/manifest.json",
				"/fonts/Neusa-Bold.otf",
				"/fonts/Neusa-Medium.otf",
				"/fonts/Satoshi-Regular.woff",
				"/fonts/Satoshi-Medium.woff",
				"/fonts/Satoshi-Bold.woff",
				cdnBase + "68fb46ee67d4cdc1e9e7c1fd_DX25_Ground%20Floor.webp",
				cdnBase + "68fb46ee6ccb844ca97ce83f_DX25_Upstairs.webp",
				cdnBase + "68fb46ee3743b02cea6fcf70_DX25_O2%20Lounge.webp",
				cdnBase + "68fb7fe2c713ccd9ee11fdcc_home_DX.svg",
				cdnBase + "68fb7fe2a1ffd936855f4f04_schedule_DX.svg",
				cdnBase + "68fb7fe26572868589be04a6_Agenda_DX.svg",
				cdnBase + "68fb7fe2beea8175785e1af0_Map_DX.svg",
				cdnBase + "68fb7fe24ce680144a604a8d_Extras_DX.svg",
				cdnBase + "655e0fa544c67c1ee5ce040f_dittoxicon-white.svg",
			},
			SkipWaiting: true,
			Storage:     StorageConfig{Driver: DriverMemory},
		},
	}
}

// WebflowTimeout returns the CMS request timeout.
func (c Config) WebflowTimeout() time.Duration {
	if c.Webflow.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Webflow.TimeoutSeconds) * time.Second
}

// AggregateOptions converts the config into aggregator options.
func (c Config) AggregateOptions() aggregate.Options {
	ids := make(map[aggregate.Kind]string, len(c.Webflow.Collections))
	for k, id := range c.Webflow.Collections {
		ids[aggregate.Kind(k)] = id
	}
	return aggregate.Options{
		SiteID:        c.Webflow.SiteID,
		StageEvent:    c.Event.StageEvent,
		ScheduleEvent: c.Event.ScheduleEvent,
		CollectionIDs: ids,
	}
}

// FetchTimeout returns the per-fetch timeout of the edge cache; zero means
// none.
func (c Config) FetchTimeout() time.Duration {
	if c.Offline.FetchTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Offline.FetchTimeoutSeconds) * time.Second
}

// EdgeConfig converts the config into a cache manager deployment.
func (c Config) EdgeConfig() (offline.Config, error) {
	origin, err := url.Parse(c.Offline.Origin)
	if err != nil {
		return offline.Config{}, fmt.Errorf("offline origin: %w", err)
	}
	return offline.Config{
		StaticCache: c.Offline.StaticCache,
		APICache:    c.Offline.APICache,
		ImageCache:  c.Offline.ImageCache,
		Precache:    append([]string(nil), c.Offline.Precache...),
		APIPrefix:   c.Offline.APIPrefix,
		CDNHosts:    append([]string(nil), c.Offline.CDNHosts...),
		SkipWaiting: c.Offline.SkipWaiting,
		Origin:      origin,
	}, nil
}
