package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiopool/cmd/buffers"
	"github.com/tphakala/audiopool/cmd/config"
	"github.com/tphakala/audiopool/cmd/run"
	"github.com/tphakala/audiopool/internal/conf"
	"github.com/tphakala/audiopool/internal/logging"
	"github.com/tphakala/audiopool/internal/telemetry"
)

// version is set at build time with -ldflags "-X github.com/tphakala/audiopool/cmd.version=..."
var version = "dev"

// RootCommand creates and returns the root command
func RootCommand() *cobra.Command {
	var (
		configPath string
		debug      bool
		closeLog   func() error
	)

	rootCmd := &cobra.Command{
		Use:          "audiopool",
		Short:        "Audio device pool runner and diagnostics",
		SilenceUsage: true,
		Version:      version,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default searches ./, ~/.config/audiopool, /etc/audiopool)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		settings, err := conf.Load(configPath)
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}
		if debug {
			settings.Debug = true
		}

		closeLog, err = initialize(settings)
		return err
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		telemetry.Flush()
		if closeLog != nil {
			return closeLog()
		}
		return nil
	}

	rootCmd.AddCommand(
		run.Command(),
		buffers.Command(),
		config.Command(),
	)

	return rootCmd
}

// initialize sets up logging and error reporting before any subcommand runs.
// The returned function closes the log file, if one was opened.
func initialize(settings *conf.Settings) (func() error, error) {
	logging.Init()

	level := logging.ParseLevel(settings.Log.Level)
	if settings.Debug {
		level = slog.LevelDebug
	}
	logging.SetLevel(level)

	var closeLog func() error
	if settings.Log.File.Enabled {
		fileLogger, closeFn, err := logging.NewFileLogger(settings.Log.File, "audiopool", level)
		if err != nil {
			return nil, fmt.Errorf("error opening log file: %w", err)
		}
		slog.SetDefault(fileLogger)
		closeLog = closeFn
	}

	if _, err := telemetry.Init(settings.Telemetry, version); err != nil {
		// Error reporting is optional; keep running without it.
		slog.Warn("error reporting disabled", "error", err)
	}

	slog.Debug("configuration loaded",
		"config_file", settings.ConfigFile,
		"debug", settings.Debug,
		"log_level", level.String())

	return closeLog, nil
}
