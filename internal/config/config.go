// Package config loads the registryd configuration from YAML, with
// environment overrides for the secrets that should not live in a file.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Redis  RedisConfig  `yaml:"redis"`
	Score  ScoreConfig  `yaml:"score"`
	Sample SampleConfig `yaml:"sample"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type RedisConfig struct {
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	Key            string `yaml:"key"`
	DialTimeoutMs  int    `yaml:"dial_timeout_ms"`
	ReadTimeoutMs  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMs int    `yaml:"write_timeout_ms"`
	MemoryFallback bool   `yaml:"memory_fallback"`
}

// DialTimeout returns the configured dial timeout as a duration.
func (r RedisConfig) DialTimeout() time.Duration { return time.Duration(r.DialTimeoutMs) * time.Millisecond }

// ReadTimeout returns the configured read timeout as a duration.
func (r RedisConfig) ReadTimeout() time.Duration { return time.Duration(r.ReadTimeoutMs) * time.Millisecond }

// WriteTimeout returns the configured write timeout as a duration.
func (r RedisConfig) WriteTimeout() time.Duration {
	return time.Duration(r.WriteTimeoutMs) * time.Millisecond
}

type ScoreConfig struct {
	Min  int64 `yaml:"min"`
	Max  int64 `yaml:"max"`
	Init int64 `yaml:"init"`
}

type SampleConfig struct {
	// TopK bounds fallback sampling to the best K endpoints by rank.
	// 0 keeps the whole surviving population in play.
	TopK int64 `yaml:"top_k"`
}

// Load reads the YAML config at path and applies defaults and
// environment overrides. An empty path yields a default config.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "5555"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.Key == "" {
		c.Redis.Key = "proxyrank:endpoints"
	}
	if c.Score.Max == 0 {
		c.Score.Max = 100
	}
	if c.Score.Init == 0 {
		c.Score.Init = 10
	}
}

// applyEnv lets deployment environments override the file without
// editing it: PORT (platform requirement), REDIS_ADDR, REDIS_PASSWORD,
// REDIS_DB.
func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
}
