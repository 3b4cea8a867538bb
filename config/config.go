// Package config loads the docserve TOML configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Server contains listen address and site identity configuration.
type Server struct {
	Address  string `toml:"address"`
	SiteName string `toml:"site_name"`
}

// Content contains content tree configuration.
type Content struct {
	Root string `toml:"root"`
	// DevMode switches the directory settings cache to its short TTL so
	// settings edits show up without a restart.
	DevMode bool `toml:"dev_mode"`
}

// Images contains image derivative cache configuration.
type Images struct {
	CacheDir string `toml:"cache_dir"`
}

// Telemetry contains metrics export configuration.
type Telemetry struct {
	OTLPEndpoint     string `toml:"otlp_endpoint"`
	EnablePrometheus bool   `toml:"enable_prometheus"`
}

// Logging contains log output configuration.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the complete docserve configuration.
type Config struct {
	Server    Server    `toml:"server"`
	Content   Content   `toml:"content"`
	Images    Images    `toml:"images"`
	Telemetry Telemetry `toml:"telemetry"`
	Logging   Logging   `toml:"logging"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Address:  ":8080",
			SiteName: "Documentation",
		},
		Content: Content{
			Root: "./content",
		},
		Images: Images{
			CacheDir: "./cache/images",
		},
		Telemetry: Telemetry{
			EnablePrometheus: true,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the TOML file at path over the defaults. A missing file is not
// an error; the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}
