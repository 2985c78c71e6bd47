package engine

import (
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	DataDir     string // cache store + per-scope indexes live here
	RedisURL    string // optional L2 cache tier; empty disables
	DatabaseURL string // optional PostgreSQL cache store; empty = SQLite

	CacheTTL               time.Duration // L2 record lifetime
	MaxConcurrentDownloads int           // video-load admission permits
	HandoffCapacity        int           // loader → indexer queue depth
	BatchSize              int           // videos per index commit
	PadContext             int           // highlight padding, characters
	RequestsPerSecond      float64       // provider rate limit

	HTTPClient *http.Client
}

var cfg Config

// Cfg exposes the engine configuration for sub-packages (sources).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration,
// filling unset fields with defaults.
func Init(c Config) {
	if c.DataDir == "" {
		c.DataDir = filepath.Join(os.Getenv("HOME"), ".go_subsearch")
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 15 * time.Minute
	}
	if c.MaxConcurrentDownloads <= 0 {
		c.MaxConcurrentDownloads = 5
	}
	if c.HandoffCapacity <= 0 {
		c.HandoffCapacity = 5
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.PadContext <= 0 {
		c.PadContext = 23
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 4
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		}
	}
	cfg = c
	Cfg = &cfg
}
