package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/temcen/shoprec/internal/app"
	"github.com/temcen/shoprec/internal/builder"
	"github.com/temcen/shoprec/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}

var rootCommand = &cobra.Command{
	Use:          "shoprec-builder",
	Short:        "Build and evaluate shoprec recommendation models",
	SilenceUsage: true,
}

func init() {
	rootCommand.PersistentFlags().StringP("config", "c", "./config", "Directory holding app.yaml")
	rootCommand.PersistentFlags().String("metrics-textfile", "", "Write build metrics to this file in Prometheus text format")
}

// loadConfig reads the configuration directory named by --config.
func loadConfig(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	dir, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadFrom(dir)
	if err != nil {
		return nil, nil, err
	}
	return cfg, app.NewLogger(cfg), nil
}

// withRunner opens a runner for the duration of fn and writes the metrics
// textfile afterwards when one was requested.
func withRunner(cmd *cobra.Command, fn func(ctx context.Context, runner *builder.Runner) error) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	runner, closeFn, err := builder.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFn(); err != nil {
			logger.WithError(err).Warn("Error closing connections")
		}
	}()

	runErr := fn(cmd.Context(), runner)

	textfile, _ := cmd.Flags().GetString("metrics-textfile")
	if textfile != "" {
		if err := prometheus.WriteToTextfile(textfile, prometheus.DefaultGatherer); err != nil {
			logger.WithError(err).WithField("path", textfile).Warn("Failed to write metrics textfile")
		}
	}

	return runErr
}

func writeJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
