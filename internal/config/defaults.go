package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Tracker.Store == "" {
		cfg.Tracker.Store = "sqlite"
	}
	if cfg.Tracker.DatabasePath == "" {
		cfg.Tracker.DatabasePath = "/usr/local/var/soroe/data/tracker.db"
	}
	if cfg.Tracker.FilePath == "" {
		cfg.Tracker.FilePath = "/usr/local/var/soroe/data/tracker.json"
	}
	if cfg.Source.Timeout == 0 {
		cfg.Source.Timeout = 60
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30
	}
	if cfg.Index.MaxBatchSize == 0 {
		cfg.Index.MaxBatchSize = 100
	}
	if cfg.Index.MaxAttempts == 0 {
		cfg.Index.MaxAttempts = 3
	}
	if cfg.Index.BaseDelayMs == 0 {
		cfg.Index.BaseDelayMs = 500
	}
	if cfg.Index.RatePerSec == 0 {
		cfg.Index.RatePerSec = 2
	}
	if cfg.Index.Timeout == 0 {
		cfg.Index.Timeout = 30
	}
	if cfg.Sync.CycleTimeoutSeconds == 0 {
		cfg.Sync.CycleTimeoutSeconds = 900
	}
	if cfg.Sync.BatchTimeoutSeconds == 0 {
		cfg.Sync.BatchTimeoutSeconds = 60
	}
	if cfg.Sync.Concurrency == 0 {
		cfg.Sync.Concurrency = 2
	}
	if cfg.Sync.IntervalSeconds == 0 {
		cfg.Sync.IntervalSeconds = 300
	}
}
