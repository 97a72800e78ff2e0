package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"loaddash/pkg/export"
	"loaddash/pkg/runner"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	var params runner.Params

	cmd := &cobra.Command{
		Use:   "run --url <url> --qps <n> --duration <seconds>",
		Short: "Start a load test, follow its progress and print the results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			interrupted, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(cmd.Context(), interrupted.Done(), params)
		},
	}

	cmd.Flags().StringVar(&params.URL, "url", "", "target URL")
	cmd.Flags().IntVar(&params.QPS, "qps", 10, "requests per second")
	cmd.Flags().IntVar(&params.Duration, "duration", 5, "duration in seconds (1-10)")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

// run submits a test and renders progress until it completes. A value on interrupt
// asks the runner to stop the test.
func (a *app) run(ctx context.Context, interrupt <-chan struct{}, params runner.Params) error {
	ctrl := a.newController()
	defer ctrl.Close()

	if err := ctrl.Refresh(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Could not load previous results")
	}

	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	if err := ctrl.Submit(ctx, params); err != nil {
		return errors.Wrap(err, "failed to start load test")
	}

	done := make(chan struct{})
	go func() {
		ctrl.Wait()
		close(done)
	}()

	stopped := false
loop:
	for {
		select {
		case st, ok := <-updates:
			if ok {
				fmt.Fprint(a.out, "\r"+renderProgress(st))
			}
		case <-interrupt:
			interrupt = nil
			if err := ctrl.Stop(ctx); err != nil {
				a.logger.Error().Err(err).Msg("Stop failed, waiting for the test to finish")
				continue
			}
			stopped = true
		case <-done:
			break loop
		}
	}

	fmt.Fprintln(a.out, "\r"+renderProgress(ctrl.Status()))
	if stopped {
		fmt.Fprintln(a.out, styleMuted.Render("Load test stopped"))
	}
	fmt.Fprint(a.out, renderResults(ctrl.Store().Snapshot(), a.timestampFormatter()))
	return nil
}

func newResultsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "results",
		Short: "Fetch and print the result history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl := a.newController()
			defer ctrl.Close()

			if err := ctrl.Refresh(cmd.Context()); err != nil {
				return errors.Wrap(err, "failed to fetch results")
			}
			fmt.Fprint(a.out, renderResults(ctrl.Store().Snapshot(), a.timestampFormatter()))
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var format, dir string

	cmd := &cobra.Command{
		Use:   "export [--format csv|xlsx] [--dir <dir>]",
		Short: "Fetch the result history and save it as load_test_results.<format>",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format == "" {
				format = a.cfg.Export.Format
			}
			if dir == "" {
				dir = a.cfg.Export.Dir
			}

			ctrl := a.newController()
			defer ctrl.Close()

			if err := ctrl.Refresh(cmd.Context()); err != nil {
				return errors.Wrap(err, "failed to fetch results")
			}

			records := ctrl.Store().Snapshot()
			path, written, err := export.Save(dir, export.Format(format), records)
			if err != nil {
				return err
			}
			if !written {
				fmt.Fprintln(a.out, "No results to export")
				return nil
			}

			a.logger.Info().Str("path", path).Int("count", len(records)).Msg("Results exported")
			fmt.Fprintf(a.out, "Exported %d results to %s\n", len(records), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "export format (csv or xlsx)")
	cmd.Flags().StringVar(&dir, "dir", "", "output directory")
	return cmd
}

func newStopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the test running on the runner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client.Stop(cmd.Context()); err != nil {
				return errors.Wrap(err, "failed to stop load test")
			}
			fmt.Fprintln(a.out, "Load test stopped")
			return nil
		},
	}
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show the runner status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			health, err := a.client.Health(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "runner health check failed")
			}

			fmt.Fprintln(a.out, styleTitle.Render("Runner"))
			fmt.Fprintf(a.out, "Status:  %s (v%s)\n", health.Status, health.Version)
			fmt.Fprintf(a.out, "Uptime:  %.0fs\n", health.Uptime)
			fmt.Fprintf(a.out, "CPU:     %.1f%%\n", health.CPUPercent)
			fmt.Fprintf(a.out, "Memory:  %.1f%%\n", health.MemoryPercent)
			if health.Running {
				fmt.Fprintf(a.out, "Running: %s\n", health.CurrentURL)
				fmt.Fprintf(a.out, "Run ID:  %s\n", health.RunID)
			} else {
				fmt.Fprintln(a.out, "Running: -")
			}
			return nil
		},
	}
}
