// main package for the sovits-service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/sovits-service/internal/config"
	"github.com/spf13/cobra"
)

const (
	serviceName      = "sovits-service"
	bootstrapLogFile = "sovits-service-bootstrap.log"
	serviceLogFile   = "sovits-service.log"
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// loadService runs the bootstrap sequence and hands the loaded configuration and the
// service logger to fn. The logger is closed when fn returns.
func loadService(fn func(cfg *config.Config, log *logger.Logger) error) error {
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() {
		_ = bootstrapLog.Close()
	}()

	bootstrapLog.Info("Bootstrap logger created.")

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	logsDir := cfg.Paths.BaseLogsDir
	if logsDir == "" {
		logsDir = os.TempDir()
	}

	finalLog, err := setupLogger(logsDir, serviceLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	return fn(cfg, finalLog)
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Speaker-conditioned speech synthesis service",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.AddCommand(
		newServeCommand(),
		newVoicesCommand(),
		newCacheCommand(),
		newSayCommand(),
		newHealthCommand(),
	)

	return cmd
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCommand().ExecuteContext(ctx)
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
