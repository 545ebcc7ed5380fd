package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"deepfakeserver/internal/config"
	"deepfakeserver/internal/logger"

	"github.com/spf13/cobra"
)

// Version is the application version.
const Version = "0.1.0"

var (
	// cfg and appLogger are shared by every subcommand
	cfg       *config.Config
	appLogger *logger.Logger
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:           "deepfakectl",
	Short:         "Deepfake video detection from the command line",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		// Keep stdout for command output unless asked otherwise
		logCfg := *cfg
		if !verbose && cmd.Name() != "serve" {
			logCfg.LogLevel = "error"
		}
		appLogger, err = logger.NewLogger(&logCfg)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appLogger != nil {
			_ = appLogger.Sync()
		}
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print info logs to the console")
}
