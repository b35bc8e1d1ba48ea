// Package config loads the netpump process configuration.
package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"netpump/transport"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const envPrefix = "NETPUMP"

type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Client  ClientConfig  `mapstructure:"client" yaml:"client"`
	World   WorldConfig   `mapstructure:"world" yaml:"world"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	// 0 picks a free port.
	Port         int           `mapstructure:"port" yaml:"port"`
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
}

type ClientConfig struct {
	Host          string        `mapstructure:"host" yaml:"host"`
	Port          int           `mapstructure:"port" yaml:"port"`
	Name          string        `mapstructure:"name" yaml:"name"`
	Speed         float64       `mapstructure:"speed" yaml:"speed"`
	FrameInterval time.Duration `mapstructure:"frame_interval" yaml:"frame_interval"`
	// 0 plays until interrupted.
	Frames int `mapstructure:"frames" yaml:"frames"`
}

type WorldConfig struct {
	Width  float64 `mapstructure:"width" yaml:"width"`
	Height float64 `mapstructure:"height" yaml:"height"`
}

type NetworkConfig struct {
	MaxPacketSize uint `mapstructure:"max_packet_size" yaml:"max_packet_size"`
	// 0 means unbounded.
	QueueLimit    uint `mapstructure:"queue_limit" yaml:"queue_limit"`
	DropMalformed bool `mapstructure:"drop_malformed" yaml:"drop_malformed"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 12345)
	v.SetDefault("server.tick_interval", time.Second/60)

	v.SetDefault("client.host", "127.0.0.1")
	v.SetDefault("client.port", 12345)
	v.SetDefault("client.name", "player")
	v.SetDefault("client.speed", 100.0)
	v.SetDefault("client.frame_interval", time.Second/60)
	v.SetDefault("client.frames", 0)

	v.SetDefault("world.width", 800.0)
	v.SetDefault("world.height", 600.0)

	v.SetDefault("network.max_packet_size", 65507)
	v.SetDefault("network.queue_limit", 0)
	v.SetDefault("network.drop_malformed", false)

	v.SetDefault("log.level", "info")
}

// Load reads defaults, then the config file, then NETPUMP_ environment variables.
// Without an explicit path, NETPUMP_CONFIG is used, and then an optional
// netpump.yaml in the working directory.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("netpump")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, errors.Wrap(err, "reading config")
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal config")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	switch {
	case c.Server.Port < 0 || c.Server.Port > 65535:
		return errors.Errorf("server port out of range: %d", c.Server.Port)
	case c.Client.Port <= 0 || c.Client.Port > 65535:
		return errors.Errorf("client port out of range: %d", c.Client.Port)
	case c.Server.TickInterval < 0:
		return errors.Errorf("negative tick interval: %s", c.Server.TickInterval)
	case c.Client.FrameInterval <= 0:
		return errors.Errorf("frame interval must be positive: %s", c.Client.FrameInterval)
	case c.Client.Name == "":
		return errors.New("client name is empty")
	case c.Client.Frames < 0:
		return errors.Errorf("negative frame count: %d", c.Client.Frames)
	case c.World.Width <= 0 || c.World.Height <= 0:
		return errors.Errorf("world size must be positive: %vx%v", c.World.Width, c.World.Height)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

func (c ServerConfig) Addr() transport.Addr {
	return transport.NewAddr(c.Host, uint16(c.Port))
}

func (c ClientConfig) Addr() transport.Addr {
	return transport.NewAddr(c.Host, uint16(c.Port))
}

func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, errors.Wrapf(err, "log level %q", c.Level)
	}
	return level, nil
}
