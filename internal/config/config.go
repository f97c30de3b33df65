// Package config provides tuning configuration for the core engine:
// indexing block size, search chunk size, matcher concurrency, cache
// capacity and file-watcher timing. Precedence (highest to lowest):
// environment variables, configuration file, defaults — matching the
// teacher's documented precedence scheme.
package config

import (
	"encoding/json"
	"os"
	"strconv"
)

// Config holds every tunable knob used by the indexing and search engine.
type Config struct {
	// IndexBlockSize is the fixed block size (bytes) the indexer reads at
	// a time. Default 1 MiB per spec.md §4.4.
	IndexBlockSize int `json:"indexBlockSize"`
	// IndexReadBufferSizeMB bounds how far the reader stage may run ahead
	// of the parser stage, in MB. Default per spec.md §4.4 step 4.
	IndexReadBufferSizeMB int `json:"indexReadBufferSizeMB"`
	// TabStopWidth is the tab expansion width used for maxLength tracking.
	TabStopWidth int `json:"tabStopWidth"`
	// SearchChunkLines is the default chunk size L (lines per chunk).
	SearchChunkLines int `json:"searchChunkLines"`
	// SearchMatcherThreads is M, the matcher thread count when parallel
	// matching is enabled. 0 means "use runtime.NumCPU()".
	SearchMatcherThreads int `json:"searchMatcherThreads"`
	// SearchParallel toggles parallel matching; if false M is forced to 1.
	SearchParallel bool `json:"searchParallel"`
	// SearchCacheMaxMatchingLines bounds SearchResultsCache's total
	// cached matching-line count across all entries.
	SearchCacheMaxMatchingLines int `json:"searchCacheMaxMatchingLines"`
	// SearchCacheMaxEntries bounds the cache's entry count directly.
	SearchCacheMaxEntries int `json:"searchCacheMaxEntries"`
	// WatcherDebounceMs is the coalescing window for file-change events.
	WatcherDebounceMs int `json:"watcherDebounceMs"`
	// WatcherPollIntervalMs is the polling fallback interval.
	WatcherPollIntervalMs int `json:"watcherPollIntervalMs"`
	// LogLevel is one of "error", "warn", "info", "debug".
	LogLevel string `json:"logLevel"`
	// LogDir, if set, enables file logging in that directory.
	LogDir string `json:"logDir"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		IndexBlockSize:              1 << 20, // 1 MiB
		IndexReadBufferSizeMB:       16,
		TabStopWidth:                8,
		SearchChunkLines:            5000,
		SearchMatcherThreads:        0,
		SearchParallel:              true,
		SearchCacheMaxMatchingLines: 2_000_000,
		SearchCacheMaxEntries:       64,
		WatcherDebounceMs:           500,
		WatcherPollIntervalMs:       2000,
		LogLevel:                    "info",
		LogDir:                      "",
	}
}

// Load builds a Config by layering, in increasing precedence: defaults,
// an optional JSON config file, then LOGDCORE_-prefixed environment
// variables.
func Load(configFile string) (*Config, error) {
	cfg := Default()
	if configFile != "" {
		fd, err := os.Open(configFile)
		if err != nil {
			return nil, err
		}
		defer fd.Close()
		dec := json.NewDecoder(fd)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("LOGDCORE_INDEX_BLOCK_SIZE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.IndexBlockSize = n
		}
	}
	if v, ok := os.LookupEnv("LOGDCORE_SEARCH_CHUNK_LINES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SearchChunkLines = n
		}
	}
	if v, ok := os.LookupEnv("LOGDCORE_SEARCH_MATCHER_THREADS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SearchMatcherThreads = n
		}
	}
	if v, ok := os.LookupEnv("LOGDCORE_SEARCH_PARALLEL"); ok {
		cfg.SearchParallel = v == "1" || v == "true"
	}
	if v, ok := os.LookupEnv("LOGDCORE_SEARCH_CACHE_MAX_LINES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SearchCacheMaxMatchingLines = n
		}
	}
	if v, ok := os.LookupEnv("LOGDCORE_WATCHER_DEBOUNCE_MS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WatcherDebounceMs = n
		}
	}
	if v, ok := os.LookupEnv("LOGDCORE_WATCHER_POLL_INTERVAL_MS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WatcherPollIntervalMs = n
		}
	}
	if v, ok := os.LookupEnv("LOGDCORE_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("LOGDCORE_LOG_DIR"); ok {
		cfg.LogDir = v
	}
}
