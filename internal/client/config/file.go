package config

import (
	"github.com/zelebiz/zelebiz/internal/flagx"
	"github.com/zelebiz/zelebiz/internal/timex"
)

// FileConfig is a DTO used exclusively for decoding config files. Durations
// go through timex.Duration so files may write "3s" or integer nanoseconds.
type FileConfig struct {
	ServerEndpointAddr string `json:"server_endpoint_addr" yaml:"server_endpoint_addr"`
	Transport          string `json:"transport" yaml:"transport"`
	HTTPBaseURL        string `json:"http_base_url" yaml:"http_base_url"`
	DatabasePath       string `json:"database_path" yaml:"database_path"`
	LogLevel           string `json:"log_level" yaml:"log_level"`

	OnlineCheckInterval timex.Duration `json:"online_check_interval" yaml:"online_check_interval"`
	ProbeTimeout        timex.Duration `json:"probe_timeout" yaml:"probe_timeout"`

	SyncInterval    timex.Duration `json:"sync_interval" yaml:"sync_interval"`
	RequestTimeout  timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	RetryBaseDelay  timex.Duration `json:"retry_base_delay" yaml:"retry_base_delay"`
	RetryMaxDelay   timex.Duration `json:"retry_max_delay" yaml:"retry_max_delay"`
	MaxAttempts     int            `json:"max_attempts" yaml:"max_attempts"`
	SyncConcurrency int            `json:"sync_concurrency" yaml:"sync_concurrency"`

	CacheMaxAge timex.Duration `json:"cache_max_age" yaml:"cache_max_age"`
	CacheGCAge  timex.Duration `json:"cache_gc_age" yaml:"cache_gc_age"`

	SyncedRetention      timex.Duration `json:"synced_retention" yaml:"synced_retention"`
	ArchiveSynced        bool           `json:"archive_synced" yaml:"archive_synced"`
	HousekeepingInterval timex.Duration `json:"housekeeping_interval" yaml:"housekeeping_interval"`
}

func toFile(c *Config) FileConfig {
	return FileConfig{
		ServerEndpointAddr:   c.ServerEndpointAddr,
		Transport:            c.Transport,
		HTTPBaseURL:          c.HTTPBaseURL,
		DatabasePath:         c.DatabasePath,
		LogLevel:             c.LogLevel,
		OnlineCheckInterval:  timex.Duration{Duration: c.OnlineCheckInterval},
		ProbeTimeout:         timex.Duration{Duration: c.ProbeTimeout},
		SyncInterval:         timex.Duration{Duration: c.SyncInterval},
		RequestTimeout:       timex.Duration{Duration: c.RequestTimeout},
		RetryBaseDelay:       timex.Duration{Duration: c.RetryBaseDelay},
		RetryMaxDelay:        timex.Duration{Duration: c.RetryMaxDelay},
		MaxAttempts:          c.MaxAttempts,
		SyncConcurrency:      c.SyncConcurrency,
		CacheMaxAge:          timex.Duration{Duration: c.CacheMaxAge},
		CacheGCAge:           timex.Duration{Duration: c.CacheGCAge},
		SyncedRetention:      timex.Duration{Duration: c.SyncedRetention},
		ArchiveSynced:        c.ArchiveSynced,
		HousekeepingInterval: timex.Duration{Duration: c.HousekeepingInterval},
	}
}

func (f FileConfig) apply(c *Config) {
	c.ServerEndpointAddr = f.ServerEndpointAddr
	c.Transport = f.Transport
	c.HTTPBaseURL = f.HTTPBaseURL
	c.DatabasePath = f.DatabasePath
	c.LogLevel = f.LogLevel
	c.OnlineCheckInterval = f.OnlineCheckInterval.Duration
	c.ProbeTimeout = f.ProbeTimeout.Duration
	c.SyncInterval = f.SyncInterval.Duration
	c.RequestTimeout = f.RequestTimeout.Duration
	c.RetryBaseDelay = f.RetryBaseDelay.Duration
	c.RetryMaxDelay = f.RetryMaxDelay.Duration
	c.MaxAttempts = f.MaxAttempts
	c.SyncConcurrency = f.SyncConcurrency
	c.CacheMaxAge = f.CacheMaxAge.Duration
	c.CacheGCAge = f.CacheGCAge.Duration
	c.SyncedRetention = f.SyncedRetention.Duration
	c.ArchiveSynced = f.ArchiveSynced
	c.HousekeepingInterval = f.HousekeepingInterval.Duration
}

// parseFile overlays cfg with the file named by -c/-config. The file is
// decoded on top of the current values, so absent keys keep them. Read or
// decode errors panic.
func parseFile(cfg *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	fc := toFile(cfg)
	if err := flagx.DecodeConfigFile(path, &fc); err != nil {
		panic(err)
	}
	fc.apply(cfg)
}
