package config

import (
	"fmt"
	"github.com/fzft/go-epoll-echo/log"
	"github.com/fzft/go-epoll-echo/reactor"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Listen struct {
	Address string `yaml:"address" toml:"address"`
	Port    int    `yaml:"port" toml:"port"`
	Backlog int    `yaml:"backlog" toml:"backlog"`
}

type Reactor struct {
	Mode       string `yaml:"mode" toml:"mode"` // lt or et
	BufferSize int    `yaml:"buffer_size" toml:"buffer_size"`
	MaxEvents  int    `yaml:"max_events" toml:"max_events"`
	Handler    string `yaml:"handler" toml:"handler"` // echo, log or discard
}

type Log struct {
	Level      string `yaml:"level" toml:"level"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

type Stats struct {
	// Interval between stats log lines, 0 disables periodic reporting.
	Interval time.Duration `yaml:"interval" toml:"interval"`
}

type Config struct {
	Listen  Listen  `yaml:"listen" toml:"listen"`
	Reactor Reactor `yaml:"reactor" toml:"reactor"`
	Log     Log     `yaml:"log" toml:"log"`
	Stats   Stats   `yaml:"stats" toml:"stats"`
}

func Default() *Config {
	return &Config{
		Listen: Listen{
			Address: "0.0.0.0",
			Port:    8080,
			Backlog: 128,
		},
		Reactor: Reactor{
			Mode:       "lt",
			BufferSize: reactor.DefaultBufferSize,
			MaxEvents:  reactor.DefaultMaxEvents,
			Handler:    "echo",
		},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  128,
			MaxBackups: 30,
			MaxAgeDays: 7,
		},
	}
}

// Load reads a toml or yaml file on top of the defaults and validates the result.
func Load(filePath string) (*Config, error) {
	file, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	config := Default()
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".toml":
		err = toml.Unmarshal(file, config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(file, config)
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(filePath))
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	if c.Reactor.BufferSize < 1 {
		return fmt.Errorf("reactor.buffer_size must be positive, got %d", c.Reactor.BufferSize)
	}
	if c.Reactor.MaxEvents < 1 {
		return fmt.Errorf("reactor.max_events must be positive, got %d", c.Reactor.MaxEvents)
	}
	if _, err := reactor.ParseTriggerMode(c.Reactor.Mode); err != nil {
		return fmt.Errorf("reactor.mode: %w", err)
	}
	if _, err := reactor.NewHandler(c.Reactor.Handler); err != nil {
		return fmt.Errorf("reactor.handler: %w", err)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Stats.Interval < 0 {
		return fmt.Errorf("stats.interval must not be negative")
	}
	return nil
}

// ReactorOptions converts the reactor section for reactor.NewDispatcher.
func (c *Config) ReactorOptions() (reactor.Options, error) {
	mode, err := reactor.ParseTriggerMode(c.Reactor.Mode)
	if err != nil {
		return reactor.Options{}, err
	}
	handler, err := reactor.NewHandler(c.Reactor.Handler)
	if err != nil {
		return reactor.Options{}, err
	}
	return reactor.Options{
		Mode:       mode,
		BufferSize: c.Reactor.BufferSize,
		MaxEvents:  c.Reactor.MaxEvents,
		Handler:    handler,
	}, nil
}

func (c *Config) LogOptions() log.Options {
	return log.Options{
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}
