package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Airbrain AirbrainConfig `yaml:"airbrain"`
}

// AirbrainConfig is the project configuration.
type AirbrainConfig struct {
	Env         EnvConfig         `yaml:"env"`
	Scan        ScanConfig        `yaml:"scan"`
	Attacks     AttacksConfig     `yaml:"attacks"`
	Personality PersonalityConfig `yaml:"personality"`
	State       StateConfig       `yaml:"state"`
	Events      EventsConfig      `yaml:"events"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// EnvConfig controls the recon daemon API client.
type EnvConfig struct {
	APIURL   string        `yaml:"api_url"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ScanConfig controls channel dwell and capture scanning.
type ScanConfig struct {
	HandshakesDir string        `yaml:"handshakes_dir"`
	Channels      []int         `yaml:"channels"`
	MinReconTime  time.Duration `yaml:"min_recon_time"`
	MaxReconTime  time.Duration `yaml:"max_recon_time"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

// AttacksConfig controls target filtering and attack pacing.
type AttacksConfig struct {
	MinRSSI           int           `yaml:"min_rssi"`
	FilterWeakSignal  bool          `yaml:"filter_weak_signal"`
	MaxTargetsPerChan int           `yaml:"max_targets_per_channel"`
	Cooldown          time.Duration `yaml:"cooldown"`
	BlacklistDeauths  int           `yaml:"blacklist_deauths"`
	BlacklistTTL      time.Duration `yaml:"blacklist_ttl"`
	HistoryTTL        time.Duration `yaml:"history_ttl"`
}

// PersonalityConfig controls mood thresholds.
type PersonalityConfig struct {
	BoredNumEpochs   int `yaml:"bored_num_epochs"`
	SadNumEpochs     int `yaml:"sad_num_epochs"`
	ExcitedNumEpochs int `yaml:"excited_num_epochs"`
	MaxMisses        int `yaml:"max_misses"`
}

// StateConfig controls brain snapshot persistence.
type StateConfig struct {
	Path               string `yaml:"path"`
	SaveIntervalEpochs int    `yaml:"save_interval_epochs"`
}

// EventsConfig controls event sink wiring.
type EventsConfig struct {
	Mode       string           `yaml:"mode"` // none|file|redis|http|clickhouse
	File       FileOutputConfig `yaml:"file"`
	Redis      RedisConfig      `yaml:"redis"`
	HTTP       HTTPConfig       `yaml:"http"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// HTTPConfig controls the HTTP event sink.
type HTTPConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// ClickHouseConfig controls the ClickHouse event sink.
type ClickHouseConfig struct {
	URL      string            `yaml:"url"`
	Database string            `yaml:"database"`
	Table    string            `yaml:"table"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Timeout  time.Duration     `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
}

// RedisConfig controls the Redis event sink.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	MaxLen   int64  `yaml:"max_len"`
}

// FileOutputConfig config for local JSON output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
