package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// Config holds the observer-side settings. The worker daemon owns everything
// about how transfers actually run; this only configures how we reach it and
// how aggressively we reconcile.
type Config struct {
	WorkerURL       string        `mapstructure:"worker_url"`
	WorkerEventsURL string        `mapstructure:"worker_events_url"`
	DatabaseURL     string        `mapstructure:"database_url"`
	JobPollInterval time.Duration `mapstructure:"job_poll_interval"`
	VolPollInterval time.Duration `mapstructure:"volume_poll_interval"`
	VolumeMountRoot string        `mapstructure:"volume_mount_root"`
	LogLevel        string        `mapstructure:"log_level"`
}

var Default = Config{
	WorkerURL:       "http://127.0.0.1:8490",
	WorkerEventsURL: "ws://127.0.0.1:8490/events",
	DatabaseURL:     "sqlite://./offload.db",
	JobPollInterval: 30 * time.Second,
	VolPollInterval: 5 * time.Second,
	VolumeMountRoot: defaultMountRoot(),
	LogLevel:        "info",
}

// Load reads config.yaml from the user config directory, creating the
// directory if needed, with OFFLOAD_* env vars taking precedence.
func Load() (*Config, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}

	appDir := filepath.Join(configDir, "offload")
	if err := os.MkdirAll(appDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(appDir)

	v.SetDefault("worker_url", Default.WorkerURL)
	v.SetDefault("worker_events_url", Default.WorkerEventsURL)
	v.SetDefault("database_url", Default.DatabaseURL)
	v.SetDefault("job_poll_interval", Default.JobPollInterval)
	v.SetDefault("volume_poll_interval", Default.VolPollInterval)
	v.SetDefault("volume_mount_root", Default.VolumeMountRoot)
	v.SetDefault("log_level", Default.LogLevel)

	v.SetEnvPrefix("OFFLOAD")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func defaultMountRoot() string {
	switch runtime.GOOS {
	case "darwin":
		return "/Volumes"
	case "windows":
		return ""
	default:
		return "/media"
	}
}
