package config

import (
	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/newshub/newsdesk/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Logger    logger.Config   `yaml:"logger"`
	Media     MediaConfig     `yaml:"media"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

type CacheConfig struct {
	// RedisAddr is the shared dedup cache. Empty means in-process only.
	RedisAddr string `yaml:"redis_addr"`
	// DedupWindow is how long a visitor's repeat views are suppressed.
	DedupWindow string `yaml:"dedup_window"`
}

type MediaConfig struct {
	BaseURL string `yaml:"base_url"`
	Bucket  string `yaml:"bucket"`
	APIKey  string `yaml:"api_key"`
}

type SchedulerConfig struct {
	SweepInterval string `yaml:"sweep_interval"`
	// Enabled defaults to true when omitted; set false to turn the
	// sweeper off.
	Enabled *bool `yaml:"enabled"`
}

// Disabled reports whether the sweeper was explicitly switched off.
func (c *SchedulerConfig) Disabled() bool {
	return c.Enabled != nil && !*c.Enabled
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	// Set default values
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5440
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Cache.DedupWindow == "" {
		cfg.Cache.DedupWindow = "5m"
	}
	if cfg.Scheduler.SweepInterval == "" {
		cfg.Scheduler.SweepInterval = "1m"
	}

	return cfg, nil
}
