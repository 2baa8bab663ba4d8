package config

import (
	"github.com/fzft/go-epoll-echo/reactor"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const tomlConfig = `
[listen]
address = "127.0.0.1"
port = 9000

[reactor]
mode = "et"
buffer_size = 2
handler = "log"

[log]
level = "debug"

[stats]
interval = "5s"
`

const yamlConfig = `
listen:
  address: 127.0.0.1
  port: 9001
reactor:
  mode: edge
  max_events: 64
stats:
  interval: 1m
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadToml(t *testing.T) {
	config, err := Load(writeFile(t, "server.toml", tomlConfig))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", config.Listen.Address)
	assert.Equal(t, 9000, config.Listen.Port)
	assert.Equal(t, 128, config.Listen.Backlog, "unset keys keep defaults")
	assert.Equal(t, "et", config.Reactor.Mode)
	assert.Equal(t, 2, config.Reactor.BufferSize)
	assert.Equal(t, "log", config.Reactor.Handler)
	assert.Equal(t, "debug", config.Log.Level)
	assert.Equal(t, 5*time.Second, config.Stats.Interval)

	opts, err := config.ReactorOptions()
	require.NoError(t, err)
	assert.Equal(t, reactor.EdgeTriggered, opts.Mode)
	assert.IsType(t, reactor.LogHandler{}, opts.Handler)
}

func TestLoadYaml(t *testing.T) {
	config, err := Load(writeFile(t, "server.yaml", yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, 9001, config.Listen.Port)
	assert.Equal(t, "edge", config.Reactor.Mode)
	assert.Equal(t, 64, config.Reactor.MaxEvents)
	assert.Equal(t, reactor.DefaultBufferSize, config.Reactor.BufferSize)
	assert.Equal(t, time.Minute, config.Stats.Interval)
}

func TestLoadRejects(t *testing.T) {
	_, err := Load(writeFile(t, "server.json", "{}"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "reactor:\n  mode: sometimes\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.toml", "[reactor]\nbuffer_size = 0\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	config := Default()
	require.NoError(t, config.Validate())

	config.Listen.Port = 70000
	assert.Error(t, config.Validate())

	config = Default()
	config.Reactor.Handler = "upper"
	assert.Error(t, config.Validate())

	config = Default()
	config.Log.Level = "verbose"
	assert.Error(t, config.Validate())
}

func TestFlagsOverrideFile(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := BindFlags(fs)

	path := writeFile(t, "server.toml", tomlConfig)
	require.NoError(t, fs.Parse([]string{"-c", path, "-p", "7000", "--edge-triggered=false", "-b", "16"}))

	config, err := flags.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", config.Listen.Address, "from file")
	assert.Equal(t, 7000, config.Listen.Port)
	assert.Equal(t, "lt", config.Reactor.Mode)
	assert.Equal(t, 16, config.Reactor.BufferSize)
	assert.Equal(t, "log", config.Reactor.Handler, "from file")
}

func TestFlagsWithoutFile(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"-e", "--handler", "discard"}))

	config, err := flags.Resolve()
	require.NoError(t, err)
	assert.Equal(t, Default().Listen, config.Listen)
	assert.Equal(t, "et", config.Reactor.Mode)
	assert.Equal(t, "discard", config.Reactor.Handler)

	fs = pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags = BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--max-events", "0"}))
	_, err = flags.Resolve()
	assert.Error(t, err)
}
