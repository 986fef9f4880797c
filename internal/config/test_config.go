package config

import "time"

// TestConfig returns a config suitable for testing
func TestConfig() *Config {
	cfg := defaultConfig()
	cfg.Database.Path = ":memory:"
	cfg.Database.SearchIndex = ""
	cfg.Fetch.HTTPTimeout = 5 * time.Second
	cfg.Fetch.ProbeTimeout = 1 * time.Second
	cfg.Fetch.UserAgent = "ntrack-test/1.0"
	cfg.Scheduler.InitialDelay = 0
	cfg.Scheduler.PaceDelay = 0
	cfg.Engine.PermissiveURLs = true
	return cfg
}
