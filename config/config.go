// Package config loads settings from an optional YAML file, a .env file
// and SPLITTER_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const envPrefix = "SPLITTER"

type Config struct {
	DB      DBConfig      `mapstructure:"db"`
	Extract ExtractConfig `mapstructure:"extract"`
	Split   SplitConfig   `mapstructure:"split"`
	API     APIConfig     `mapstructure:"api"`
	Log     LogConfig     `mapstructure:"log"`
}

type DBConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type ExtractConfig struct {
	OverpassURL string        `mapstructure:"overpass_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	RedisAddr   string        `mapstructure:"redis_addr"`
	RedisDB     int           `mapstructure:"redis_db"`
}

type SplitConfig struct {
	Concurrency      int     `mapstructure:"concurrency"`
	DefaultMeters    float64 `mapstructure:"default_meters"`
	DefaultBuildings int     `mapstructure:"default_buildings"`
}

type APIConfig struct {
	Listen string `mapstructure:"listen"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var defaults = map[string]any{
	"db.url":                  "",
	"db.max_conns":            8,
	"extract.overpass_url":    "https://overpass-api.de/api/interpreter",
	"extract.timeout":         "60s",
	"extract.cache_ttl":       "1h",
	"extract.redis_addr":      "",
	"extract.redis_db":        0,
	"split.concurrency":       4,
	"split.default_meters":    100.0,
	"split.default_buildings": 5,
	"api.listen":              ":8080",
	"log.level":               "info",
	"log.format":              "text",
}

// newViper registers every key with its default so that environment
// overrides apply to keys missing from the file.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	return v
}

// Load reads path when given, then .env and the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.Warnf("ignoring .env: %s", err)
	}
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DB.MaxConns < 1 {
		return fmt.Errorf("db.max_conns must be at least 1, got %d", c.DB.MaxConns)
	}
	if c.Split.Concurrency < 0 {
		return fmt.Errorf("split.concurrency must not be negative, got %d", c.Split.Concurrency)
	}
	if c.Split.DefaultMeters <= 0 {
		return fmt.Errorf("split.default_meters must be positive, got %v", c.Split.DefaultMeters)
	}
	if c.Split.DefaultBuildings < 1 {
		return fmt.Errorf("split.default_buildings must be at least 1, got %d", c.Split.DefaultBuildings)
	}
	if c.Extract.Timeout <= 0 {
		return fmt.Errorf("extract.timeout must be positive, got %s", c.Extract.Timeout)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Apply configures the standard logrus logger.
func (l LogConfig) Apply() {
	if level, err := logrus.ParseLevel(l.Level); err == nil {
		logrus.SetLevel(level)
	}
	if l.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
