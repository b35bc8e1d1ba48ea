package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"netpump/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netpump.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NETPUMP_CONFIG", "")

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, transport.NewAddr("127.0.0.1", 12345), c.Server.Addr())
	assert.Equal(t, transport.NewAddr("127.0.0.1", 12345), c.Client.Addr())
	assert.Equal(t, time.Second/60, c.Server.TickInterval)
	assert.Equal(t, time.Second/60, c.Client.FrameInterval)
	assert.Equal(t, "player", c.Client.Name)
	assert.Equal(t, 100.0, c.Client.Speed)
	assert.Equal(t, WorldConfig{Width: 800, Height: 600}, c.World)
	assert.Equal(t, NetworkConfig{MaxPacketSize: 65507}, c.Network)
	assert.Equal(t, "info", c.Log.Level)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 4000
  tick_interval: 50ms
client:
  name: alice
world:
  width: 320
log:
  level: debug
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4000, c.Server.Port)
	assert.Equal(t, "127.0.0.1", c.Server.Host, "unset keys keep their defaults")
	assert.Equal(t, 50*time.Millisecond, c.Server.TickInterval)
	assert.Equal(t, "alice", c.Client.Name)
	assert.Equal(t, WorldConfig{Width: 320, Height: 600}, c.World)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestLoadFileFromEnv(t *testing.T) {
	t.Setenv("NETPUMP_CONFIG", writeConfig(t, "client:\n  port: 9999\n"))

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9999, c.Client.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 4000\n")
	t.Setenv("NETPUMP_SERVER_PORT", "5000")
	t.Setenv("NETPUMP_SERVER_TICK_INTERVAL", "1s")
	t.Setenv("NETPUMP_NETWORK_DROP_MALFORMED", "true")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, c.Server.Port)
	assert.Equal(t, time.Second, c.Server.TickInterval)
	assert.True(t, c.Network.DropMalformed)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  port: 70000\n"))
	assert.ErrorContains(t, err, "server port")
}

func TestValidate(t *testing.T) {
	t.Setenv("NETPUMP_CONFIG", "")
	valid, err := Load("")
	require.NoError(t, err)
	require.NoError(t, valid.Validate())

	testcases := []struct {
		desc   string
		modify func(c *Config)
	}{
		{desc: "negative server port", modify: func(c *Config) { c.Server.Port = -1 }},
		{desc: "client port zero", modify: func(c *Config) { c.Client.Port = 0 }},
		{desc: "negative tick interval", modify: func(c *Config) { c.Server.TickInterval = -time.Second }},
		{desc: "zero frame interval", modify: func(c *Config) { c.Client.FrameInterval = 0 }},
		{desc: "empty name", modify: func(c *Config) { c.Client.Name = "" }},
		{desc: "negative frames", modify: func(c *Config) { c.Client.Frames = -1 }},
		{desc: "zero width", modify: func(c *Config) { c.World.Width = 0 }},
		{desc: "negative height", modify: func(c *Config) { c.World.Height = -1 }},
		{desc: "unknown log level", modify: func(c *Config) { c.Log.Level = "loud" }},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			c := valid
			tc.modify(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestSlogLevel(t *testing.T) {
	level, err := LogConfig{Level: "warn"}.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, "WARN", level.String())
}
