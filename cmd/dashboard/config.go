package main

import (
	"io"
	"strings"
	"time"

	"loaddash/pkg/export"
	"loaddash/pkg/runner"
	"loaddash/pkg/session"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const envPrefix = "LOADDASH"

type Config struct {
	Runner  RunnerConfig  `mapstructure:"runner"`
	Session SessionConfig `mapstructure:"session"`
	Export  ExportConfig  `mapstructure:"export"`
	Display DisplayConfig `mapstructure:"display"`
	Log     LogConfig     `mapstructure:"log"`
}

type RunnerConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SessionConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

type ExportConfig struct {
	Dir    string `mapstructure:"dir"`
	Format string `mapstructure:"format"`
}

type DisplayConfig struct {
	LocalTime bool `mapstructure:"local_time"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func setDefault(v *viper.Viper) {
	v.SetDefault("runner.url", "http://127.0.0.1:8000")
	v.SetDefault("runner.timeout", runner.DefaultTimeout)
	v.SetDefault("session.tick_interval", session.DefaultTickInterval)
	v.SetDefault("export.dir", ".")
	v.SetDefault("export.format", string(export.FormatCSV))
	v.SetDefault("display.local_time", true)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.pretty", true)
}

// loadConfig merges defaults, the optional config file and LOADDASH_* environment
// variables, in increasing precedence. Flags bound to v take precedence over all.
func loadConfig(v *viper.Viper, configPath string) (*Config, error) {
	setDefault(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "cannot read config file")
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal config")
	}

	if cfg.Session.TickInterval <= 0 {
		return nil, errors.Errorf("session.tick_interval must be positive, got %s", cfg.Session.TickInterval)
	}
	return &cfg, nil
}

func newLogger(cfg LogConfig, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), errors.Wrapf(err, "invalid log level %q", cfg.Level)
	}

	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}
