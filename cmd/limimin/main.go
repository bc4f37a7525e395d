// ABOUTME: Entry point for the limimin stamp bot
// ABOUTME: Cobra root with run, init, provision and migrate subcommands

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/limimin/internal/config"
)

const banner = `
    ╭──────────────────────────────────╮
    │                                  │
    │   ╻  ╻┏┳┓╻┏┳┓╻┏┓╻                │
    │   ┃  ┃┃┃┃┃┃┃┃┃┃┗┫                │
    │   ┗━╸╹╹ ╹╹╹ ╹╹╹ ╹                │
    │                                  │
    │         stamps for matrix        │
    │                                  │
    ╰──────────────────────────────────╯
`

// configPath is set by --config; empty means config.Path().
var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "limimin",
		Short:         "Matrix bot that posts game stamps for registered terms",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBot,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $LIMIMIN_CONFIG or ~/.config/limimin/config.toml)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Connect to Matrix and answer stamp commands (default)",
			Args:  cobra.NoArgs,
			RunE:  runBot,
		},
		&cobra.Command{
			Use:   "init",
			Short: "Interactively write a config file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), resolveConfigPath())
			},
		},
		&cobra.Command{
			Use:   "provision",
			Short: "Download every missing stamp image and exit",
			Args:  cobra.NoArgs,
			RunE:  runProvision,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Copy terms.json into the SQLite registry",
			Args:  cobra.NoArgs,
			RunE:  runMigrate,
		},
	)
	return rootCmd
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.Path()
}

// loadConfig reads the config and builds the logger every subcommand needs.
func loadConfig() (*config.Config, string, *slog.Logger, error) {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, nil, fmt.Errorf("loading config from %s: %w", path, err)
	}
	return cfg, path, setupLogger(cfg.Logging.Level, cfg.Logging.Format), nil
}

func runBot(cmd *cobra.Command, args []string) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	cfg, path, logger, err := loadConfig()
	if err != nil {
		return err
	}
	printStartup(cfg, path)

	// Setup graceful shutdown context first - all operations should respect it
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if cfg.Provision.SkipOnStart {
		logger.Info("startup provisioning skipped")
	} else {
		app.startProvisioning(ctx)
	}

	bridge, err := NewBridge(cfg, app.handler, logger)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	// Login to Matrix (required before crypto setup)
	if err := bridge.Login(ctx); err != nil {
		return fmt.Errorf("matrix login: %w", err)
	}

	if cfg.Matrix.RecoveryKey != "" {
		cryptoMgr, err := SetupCrypto(ctx, bridge.matrix, bridge.UserID(), cfg.Matrix.RecoveryKey, cfg.Storage.DataDir, logger)
		if err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}
		defer cryptoMgr.Close()
	} else {
		logger.Info("encryption disabled (no recovery key)")
	}

	logger.Info("starting bridge")
	return bridge.Run(ctx)
}

func printStartup(cfg *config.Config, path string) {
	green := color.New(color.FgGreen)
	line := func(label, value string) {
		green.Print("    ▶ ")
		fmt.Printf("%-12s%s\n", label+":", value)
	}

	line("Config", path)
	line("Homeserver", cfg.Matrix.Homeserver)
	if cfg.Matrix.UserID != "" {
		line("User", cfg.Matrix.UserID)
	} else {
		line("Username", cfg.Matrix.Username)
	}
	line("Storage", fmt.Sprintf("%s (%s)", cfg.StorePath(), cfg.Storage.Driver))
	line("Prefix", cfg.Bot.CommandPrefix)
	if cfg.Matrix.RecoveryKey != "" {
		line("Encryption", "enabled")
	}
	fmt.Println()
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
