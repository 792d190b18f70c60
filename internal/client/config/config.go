package config

import "time"

// Config holds runtime settings for the zelebiz client.
type Config struct {
	ServerEndpointAddr string
	Transport          string
	HTTPBaseURL        string
	DatabasePath       string
	LogLevel           string

	OnlineCheckInterval time.Duration
	ProbeTimeout        time.Duration

	SyncInterval    time.Duration
	RequestTimeout  time.Duration
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	MaxAttempts     int
	SyncConcurrency int

	CacheMaxAge time.Duration
	CacheGCAge  time.Duration

	SyncedRetention      time.Duration
	ArchiveSynced        bool
	HousekeepingInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.Transport = "grpc"
	c.HTTPBaseURL = "http://127.0.0.1:8080"
	c.DatabasePath = "zelebiz.db"
	c.LogLevel = "info"

	c.OnlineCheckInterval = 3 * time.Second
	c.ProbeTimeout = 3 * time.Second

	c.SyncInterval = 30 * time.Second
	c.RequestTimeout = 10 * time.Second
	c.RetryBaseDelay = time.Second
	c.RetryMaxDelay = time.Minute
	c.MaxAttempts = 5
	c.SyncConcurrency = 4

	c.CacheMaxAge = 5 * time.Minute
	c.CacheGCAge = 24 * time.Hour

	c.SyncedRetention = 24 * time.Hour
	c.ArchiveSynced = false
	c.HousekeepingInterval = time.Hour
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the config file (if present) and command-line flags (if present). Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}
