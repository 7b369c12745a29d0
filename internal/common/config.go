package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration. Both daemons load the
// same file; feederd reads the controller and scaling sections, nommerd
// reads the worker section.
type Config struct {
	Service    ServiceConfig    `toml:"service"`
	Logging    LoggingConfig    `toml:"logging"`
	Storage    StorageConfig    `toml:"storage"`
	Queue      QueueConfig      `toml:"queue"`
	Controller ControllerConfig `toml:"controller"`
	Scaling    ScalingConfig    `toml:"scaling"`
	Worker     WorkerConfig     `toml:"worker"`
	Notify     NotifyConfig     `toml:"notify"`
	Encoding   EncodingConfig   `toml:"encoding"`
}

type ServiceConfig struct {
	Name string `toml:"name"`
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type QueueConfig struct {
	NewJobQueue       string `toml:"new_job_queue"`      // Queue name for controller -> worker dispatch
	StateChangeQueue  string `toml:"state_change_queue"` // Queue name for worker -> controller notifications
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g. "1h" - covers a full download/encode/upload cycle
	ReceiveWait       string `toml:"receive_wait"`       // e.g. "20s" - per-pop wait bound so loops stay responsive
}

type ControllerConfig struct {
	StateChangeInterval string `toml:"state_change_interval"` // State-change ingestion period
	PruneInterval       string `toml:"prune_interval"`        // Stale-job sweep period
	AutoscaleInterval   string `toml:"autoscale_interval"`    // Autoscaler period
	AbandonThreshold    string `toml:"abandon_threshold"`     // Age at which a silent job is abandoned
}

type ScalingConfig struct {
	Enabled              bool `toml:"enabled"`
	MaxNodes             int  `toml:"max_nodes"`
	MaxJobsPerNode       int  `toml:"max_jobs_per_node"`
	JobOverflowThreshold int  `toml:"job_overflow_threshold"` // Backlog slack before launching
}

type WorkerConfig struct {
	Enabled                bool   `toml:"enabled"`                  // Run an embedded worker inside feederd (local mode)
	NewJobCheckInterval    string `toml:"new_job_check_interval"`   // Intake period
	HeartbeatInterval      string `toml:"heartbeat_interval"`       // Heartbeat period
	IdleThreshold          string `toml:"idle_threshold"`           // Idle duration before self-termination
	IdleTerminationEnabled bool   `toml:"idle_termination_enabled"` // Master switch for self-termination
	WorkDir                string `toml:"work_dir"`                 // Root for per-job scratch directories
}

type NotifyConfig struct {
	Timeout       string  `toml:"timeout"`         // Total HTTP callback timeout
	RatePerSecond float64 `toml:"rate_per_second"` // Callback pacing
	Burst         int     `toml:"burst"`           // Callback burst allowance
}

type EncodingConfig struct {
	FFmpegPath string `toml:"ffmpeg_path"` // Path to the ffmpeg binary
}

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name: "chomp",
			Host: "0.0.0.0",
			Port: 8001,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/chomp",
				ResetOnStartup: false,
			},
		},
		Queue: QueueConfig{
			NewJobQueue:       "new-jobs",
			StateChangeQueue:  "state-changes",
			VisibilityTimeout: "1h",
			ReceiveWait:       "20s",
		},
		Controller: ControllerConfig{
			StateChangeInterval: "60s",
			PruneInterval:       "300s",
			AutoscaleInterval:   "60s",
			AbandonThreshold:    "24h",
		},
		Scaling: ScalingConfig{
			Enabled:              true,
			MaxNodes:             4,
			MaxJobsPerNode:       2,
			JobOverflowThreshold: 2,
		},
		Worker: WorkerConfig{
			Enabled:                true,
			NewJobCheckInterval:    "60s",
			HeartbeatInterval:      "60s",
			IdleThreshold:          "10m",
			IdleTerminationEnabled: false,
			WorkDir:                "",
		},
		Notify: NotifyConfig{
			Timeout:       "30s",
			RatePerSecond: 5,
			Burst:         10,
		},
		Encoding: EncodingConfig{
			FFmpegPath: "ffmpeg",
		},
	}
}

// LoadConfig loads configuration from a TOML file, starting from defaults.
// When path is empty, chomp.toml is auto-discovered in the current directory
// and then beside the executable.
func LoadConfig(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path == "" {
		path = discoverConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func discoverConfigFile() string {
	if _, err := os.Stat("chomp.toml"); err == nil {
		return "chomp.toml"
	}
	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), "chomp.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("CHOMP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Service.Port = port
		}
	}
	if v := os.Getenv("CHOMP_HOST"); v != "" {
		config.Service.Host = v
	}
	if v := os.Getenv("CHOMP_DATA_DIR"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("CHOMP_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// Validate checks the configuration for values that would break the
// control loops at runtime.
func (c *Config) Validate() error {
	if c.Service.Port <= 0 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid service port: %d", c.Service.Port)
	}
	if c.Scaling.MaxJobsPerNode <= 0 {
		return fmt.Errorf("scaling.max_jobs_per_node must be positive, got %d", c.Scaling.MaxJobsPerNode)
	}
	if c.Scaling.MaxNodes <= 0 {
		return fmt.Errorf("scaling.max_nodes must be positive, got %d", c.Scaling.MaxNodes)
	}
	if c.Scaling.JobOverflowThreshold < 0 {
		return fmt.Errorf("scaling.job_overflow_threshold must not be negative, got %d", c.Scaling.JobOverflowThreshold)
	}
	if c.Storage.Badger.Path == "" {
		return fmt.Errorf("storage.badger.path is required")
	}
	return nil
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Service.Port = port
	}
	if host != "" {
		config.Service.Host = host
	}
}

// Duration parses a duration string from config, falling back to the
// given default when the value is empty or malformed.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
