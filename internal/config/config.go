package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

func homeDirOrFallback() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return home
}

// Backend describes one search backend known to the client.
type Backend struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// Config holds all user-configurable settings.
type Config struct {
	// DataDir holds the index database and temporary fetched documents.
	// Empty means the config directory.
	DataDir string `json:"data_dir"`
	// RequestsPerSecond rate-limits HTTP metadata fetches.
	RequestsPerSecond float64 `json:"requests_per_second"`
	// StartDelayMS is how long deep search waits for results to accumulate.
	StartDelayMS int `json:"smart_search_start_delay_ms"`
	// RoundDelayMS is the pause between deep-search rounds.
	RoundDelayMS int `json:"smart_search_round_delay_ms"`
	// DeepSearchRounds is the number of polling rounds per session.
	DeepSearchRounds int `json:"smart_search_deep_search_rounds"`
	// MaxTorrentsToScan caps the fetches issued per round.
	MaxTorrentsToScan int `json:"smart_search_maximum_torrents_to_scan"`
	// FullTextResultsLimit bounds both phases of a local search.
	FullTextResultsLimit int `json:"smart_search_fulltext_search_results_limit"`
	// FetchTimeoutSeconds bounds a single metadata fetch.
	FetchTimeoutSeconds int `json:"fetch_timeout_seconds"`
	// FetchWorkers is the size of the fetch worker pool.
	FetchWorkers int `json:"fetch_workers"`
	// SwarmFetch enables resolving magnet links through the BitTorrent swarm.
	SwarmFetch bool `json:"swarm_fetch"`
	// SlowQueryWarningMS is the local search duration that triggers a
	// corruption warning.
	SlowQueryWarningMS int `json:"slow_query_warning_ms"`
	// Backends lists the search backends and whether each is enabled.
	Backends []Backend `json:"backends"`
}

// DefaultBackends returns the stock backend table.
func DefaultBackends() []Backend {
	return []Backend{
		{ID: 0, Name: "ClearBits", Enabled: true},
		{ID: 1, Name: "Mininova", Enabled: true},
		{ID: 2, Name: "ISOHunt", Enabled: true},
		{ID: 4, Name: "Extratorrent", Enabled: true},
		{ID: 5, Name: "Vertor", Enabled: true},
		{ID: 6, Name: "TPB", Enabled: true},
		{ID: 7, Name: "Monova", Enabled: true},
		{ID: 8, Name: "KAT", Enabled: true},
		{ID: 9, Name: "YouTube", Enabled: true},
		{ID: 10, Name: "Soundcloud", Enabled: true},
	}
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RequestsPerSecond:    5.0,
		StartDelayMS:         3000,
		RoundDelayMS:         3000,
		DeepSearchRounds:     3,
		MaxTorrentsToScan:    4,
		FullTextResultsLimit: 256,
		FetchTimeoutSeconds:  30,
		FetchWorkers:         8,
		SwarmFetch:           true,
		SlowQueryWarningMS:   3000,
		Backends:             DefaultBackends(),
	}
}

// ConfigDir returns the directory where config and data files are stored.
func ConfigDir() string {
	if dir := os.Getenv("SMARTSEARCH_CONFIG_DIR"); dir != "" {
		return dir
	}
	home := homeDirOrFallback()
	return filepath.Join(home, ".config", "smartsearch")
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// DataPath returns the resolved data directory.
func (c *Config) DataPath() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return ConfigDir()
}

// DBPath returns the path to the SQLite index.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataPath(), "search_db", "smartsearch.db")
}

// FetchDir returns where fetched metadata documents are written.
func (c *Config) FetchDir() string {
	return filepath.Join(c.DataPath(), "fetch")
}

// SwarmDir returns the BitTorrent client's state directory.
func (c *Config) SwarmDir() string {
	return filepath.Join(c.DataPath(), "swarm")
}

func (c *Config) StartDelay() time.Duration {
	return time.Duration(c.StartDelayMS) * time.Millisecond
}

func (c *Config) RoundDelay() time.Duration {
	return time.Duration(c.RoundDelayMS) * time.Millisecond
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

func (c *Config) SlowQueryWarning() time.Duration {
	return time.Duration(c.SlowQueryWarningMS) * time.Millisecond
}

// Load reads config from disk, returning defaults if the file doesn't exist.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			if err := cfg.Save(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if len(cfg.Backends) == 0 {
		cfg.Backends = DefaultBackends()
	}
	return cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ConfigPath(), data, 0o644)
}
