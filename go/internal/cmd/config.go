package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Database string `yaml:"database"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"database"`

	NATS struct {
		Enabled       bool   `yaml:"enabled"`
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Realtime struct {
		StatsThrottleSec int `yaml:"stats_throttle_sec"`
		ClockSyncSec     int `yaml:"clock_sync_sec"`
		StaleTimeoutSec  int `yaml:"stale_timeout_sec"`
		CacheTTLSec      int `yaml:"cache_ttl_sec"`
	} `yaml:"realtime"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// loadConfig reads the yaml config file, then applies environment overrides
// so deployments can tweak without editing the file.
func loadConfig(path string) (*Config, error) {
	var config Config

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.Server.Port = getEnv("PORT", defaultStr(config.Server.Port, "8080"))

	config.Database.Host = getEnv("DB_HOST", defaultStr(config.Database.Host, "localhost"))
	config.Database.Port = getEnvAsInt("DB_PORT", defaultInt(config.Database.Port, 5432))
	config.Database.User = getEnv("DB_USER", defaultStr(config.Database.User, "postgres"))
	config.Database.Password = getEnv("DB_PASSWORD", defaultStr(config.Database.Password, "postgres"))
	config.Database.Database = getEnv("DB_NAME", defaultStr(config.Database.Database, "livesync"))
	config.Database.SSLMode = getEnv("DB_SSLMODE", defaultStr(config.Database.SSLMode, "disable"))

	config.NATS.URL = getEnv("NATS_URL", defaultStr(config.NATS.URL, "nats://localhost:4222"))
	config.NATS.SubjectPrefix = defaultStr(config.NATS.SubjectPrefix, "livesync.match")

	config.Realtime.StatsThrottleSec = defaultInt(config.Realtime.StatsThrottleSec, 10)
	config.Realtime.ClockSyncSec = defaultInt(config.Realtime.ClockSyncSec, 5)
	config.Realtime.StaleTimeoutSec = defaultInt(config.Realtime.StaleTimeoutSec, 300)
	config.Realtime.CacheTTLSec = defaultInt(config.Realtime.CacheTTLSec, 60)

	return &config, nil
}

// DSN renders the Postgres connection string shared by the pgx pool and the
// notification listener.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Database, c.Database.SSLMode)
}

func (c *Config) statsThrottle() time.Duration {
	return time.Duration(c.Realtime.StatsThrottleSec) * time.Second
}

func (c *Config) clockSync() time.Duration {
	return time.Duration(c.Realtime.ClockSyncSec) * time.Second
}

func (c *Config) staleTimeout() time.Duration {
	return time.Duration(c.Realtime.StaleTimeoutSec) * time.Second
}

func (c *Config) cacheTTL() time.Duration {
	return time.Duration(c.Realtime.CacheTTLSec) * time.Second
}

func defaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func defaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
