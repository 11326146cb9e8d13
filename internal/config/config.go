// internal/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Host string `json:"host" yaml:"host"`
		Port int    `json:"port" yaml:"port"`
	} `json:"server" yaml:"server"`

	Sessions struct {
		// Dir holds one durable overlay per archive fingerprint.
		Dir string `json:"dir" yaml:"dir"`
	} `json:"sessions" yaml:"sessions"`

	Export struct {
		Level           int      `json:"level" yaml:"level"`
		YieldEvery      int      `json:"yield_every" yaml:"yield_every"`
		StoreExtensions []string `json:"store_extensions" yaml:"store_extensions"`
	} `json:"export" yaml:"export"`

	Resolver struct {
		Concurrency     int      `json:"concurrency" yaml:"concurrency"`
		ImageExtensions []string `json:"image_extensions" yaml:"image_extensions"`
	} `json:"resolver" yaml:"resolver"`

	Preview struct {
		ThumbSize  int `json:"thumb_size" yaml:"thumb_size"`
		MaxHandles int `json:"max_handles" yaml:"max_handles"`
	} `json:"preview" yaml:"preview"`

	Environment string `json:"environment" yaml:"environment"` // development, production
	LogLevel    string `json:"log_level" yaml:"log_level"`     // debug, info, warn, error
	LogFormat   string `json:"log_format" yaml:"log_format"`   // json, console
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{
		Environment: "development",
		LogLevel:    "info",
		LogFormat:   "json",
	}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8080
	cfg.Sessions.Dir = ".dpack/sessions"
	cfg.Export.Level = 6
	cfg.Export.YieldEvery = 20
	cfg.Export.StoreExtensions = []string{".png", ".jpg", ".jpeg", ".webp", ".gif", ".zip", ".ogg", ".mp3"}
	cfg.Resolver.Concurrency = 8
	cfg.Resolver.ImageExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}
	cfg.Preview.ThumbSize = 120
	cfg.Preview.MaxHandles = 4096
	return cfg
}

// Path picks the configuration file: DPACK_CONFIG if set, otherwise
// config/config.<DPACK_ENV>.json.
func Path() string {
	if p := os.Getenv("DPACK_CONFIG"); p != "" {
		return p
	}
	env := os.Getenv("DPACK_ENV")
	if env == "" {
		env = "development"
	}
	return fmt.Sprintf("config/config.%s.json", env)
}

// Load reads path over the defaults. JSON and YAML are chosen by extension.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Export.Level < -2 || c.Export.Level > 9 {
		return fmt.Errorf("invalid export level %d", c.Export.Level)
	}
	if c.Resolver.Concurrency < 0 {
		return fmt.Errorf("invalid resolver concurrency %d", c.Resolver.Concurrency)
	}
	return nil
}
