package config

import (
	"github.com/spf13/pflag"
	"time"
)

// Flags holds the command line values of the server.
type Flags struct {
	ConfigFile    string
	Address       string
	Port          int
	EdgeTriggered bool
	Mode          string
	BufferSize    int
	MaxEvents     int
	Backlog       int
	Handler       string
	LogLevel      string
	LogFile       string
	StatsInterval time.Duration
	Version       bool

	fs *pflag.FlagSet
}

// BindFlags registers the server flags on fs.
func BindFlags(fs *pflag.FlagSet) *Flags {
	def := Default()
	f := &Flags{fs: fs}
	fs.StringVarP(&f.ConfigFile, "config", "c", "", "path to a .toml or .yaml configuration file")
	fs.StringVarP(&f.Address, "address", "a", def.Listen.Address, "address to listen on")
	fs.IntVarP(&f.Port, "port", "p", def.Listen.Port, "port to listen on")
	fs.BoolVarP(&f.EdgeTriggered, "edge-triggered", "e", false, "use edge triggered notification (default level triggered)")
	fs.StringVarP(&f.Mode, "mode", "m", def.Reactor.Mode, "trigger mode, lt or et")
	fs.IntVarP(&f.BufferSize, "buffer-size", "b", def.Reactor.BufferSize, "per connection receive buffer in bytes")
	fs.IntVar(&f.MaxEvents, "max-events", def.Reactor.MaxEvents, "max ready descriptors reported per wait")
	fs.IntVar(&f.Backlog, "backlog", def.Listen.Backlog, "listen backlog")
	fs.StringVar(&f.Handler, "handler", def.Reactor.Handler, "what to do with received bytes: echo, log or discard")
	fs.StringVar(&f.LogLevel, "log-level", def.Log.Level, "debug, info, warn or error")
	fs.StringVar(&f.LogFile, "log-file", "", "also write logs to this file, rotated")
	fs.DurationVar(&f.StatsInterval, "stats-interval", 0, "log reactor stats at this interval, 0 disables")
	fs.BoolVarP(&f.Version, "version", "v", false, "print version and exit")
	return f
}

// Resolve loads the config file if one was given and applies every flag
// that was set explicitly on top of it.
func (f *Flags) Resolve() (*Config, error) {
	config := Default()
	if f.ConfigFile != "" {
		loaded, err := Load(f.ConfigFile)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	changed := f.fs.Changed
	if changed("address") {
		config.Listen.Address = f.Address
	}
	if changed("port") {
		config.Listen.Port = f.Port
	}
	if changed("backlog") {
		config.Listen.Backlog = f.Backlog
	}
	if changed("mode") {
		config.Reactor.Mode = f.Mode
	}
	if changed("edge-triggered") {
		if f.EdgeTriggered {
			config.Reactor.Mode = "et"
		} else {
			config.Reactor.Mode = "lt"
		}
	}
	if changed("buffer-size") {
		config.Reactor.BufferSize = f.BufferSize
	}
	if changed("max-events") {
		config.Reactor.MaxEvents = f.MaxEvents
	}
	if changed("handler") {
		config.Reactor.Handler = f.Handler
	}
	if changed("log-level") {
		config.Log.Level = f.LogLevel
	}
	if changed("log-file") {
		config.Log.File = f.LogFile
	}
	if changed("stats-interval") {
		config.Stats.Interval = f.StatsInterval
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
