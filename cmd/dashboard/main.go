package main

import (
	"fmt"
	"io"
	"os"

	"loaddash/pkg/result"
	"loaddash/pkg/runner"
	"loaddash/pkg/session"
	"loaddash/pkg/store"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	Execute()
}

func Execute() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// app carries what every subcommand needs once configuration is loaded
type app struct {
	v          *viper.Viper
	configPath string

	out    io.Writer
	errOut io.Writer

	cfg    *Config
	logger zerolog.Logger
	client *runner.HTTPClient
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{
		v:      viper.New(),
		out:    out,
		errOut: errOut,
	}

	cmd := &cobra.Command{
		Use:           "dashboard",
		Short:         "Run HTTP load tests on a remote runner and browse their results",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a config file (yaml, toml or json)")
	flags.String("runner-url", "", "base URL of the load runner")
	flags.Duration("timeout", 0, "timeout of each call to the runner")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	_ = a.v.BindPFlag("runner.url", flags.Lookup("runner-url"))
	_ = a.v.BindPFlag("runner.timeout", flags.Lookup("timeout"))
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))

	cmd.AddCommand(newRunCmd(a))
	cmd.AddCommand(newResultsCmd(a))
	cmd.AddCommand(newExportCmd(a))
	cmd.AddCommand(newStopCmd(a))
	cmd.AddCommand(newHealthCmd(a))
	return cmd
}

func (a *app) setup() error {
	cfg, err := loadConfig(a.v, a.configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, a.errOut)
	if err != nil {
		return err
	}

	client, err := runner.NewHTTPClient(runner.Config{
		BaseURL: cfg.Runner.URL,
		Timeout: cfg.Runner.Timeout,
	})
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.client = client

	a.logger.Debug().
		Str("runner_url", cfg.Runner.URL).
		Dur("timeout", cfg.Runner.Timeout).
		Dur("tick_interval", cfg.Session.TickInterval).
		Msg("Configuration loaded")
	return nil
}

func (a *app) newController() *session.Controller {
	c := session.NewController(a.client, store.New(), a.logger)
	c.SetTicker(session.NewTimeTicker, a.cfg.Session.TickInterval)
	return c
}

func (a *app) timestampFormatter() result.TimestampFormatter {
	if a.cfg.Display.LocalTime {
		return result.LocalTimestamp
	}
	return result.FormatTimestamp
}
