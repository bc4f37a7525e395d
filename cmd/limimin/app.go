// ABOUTME: Startup wiring shared by the limimin subcommands
// ABOUTME: Prepares the data directory, opens the term store and supervises stamp provisioning

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/limimin/internal/commands"
	"github.com/2389/limimin/internal/config"
	"github.com/2389/limimin/internal/provision"
	"github.com/2389/limimin/internal/stamp"
	"github.com/2389/limimin/internal/store"
)

type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	provisioner *provision.Provisioner
	supervisor  *provision.Supervisor
	store       store.TermStore
	handler     *commands.Handler
}

// newProvisioner builds the provisioner and makes sure its directories exist.
func newProvisioner(cfg *config.Config, logger *slog.Logger) (*provision.Provisioner, error) {
	p := provision.New(provision.Options{
		BaseDir:        cfg.Storage.DataDir,
		CatalogURL:     cfg.Provision.CatalogURL,
		RequestTimeout: cfg.Provision.RequestTimeout,
		UserAgent:      cfg.Provision.UserAgent,
		Logger:         logger,
	})
	if err := p.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("preparing stamp directories: %w", err)
	}
	return p, nil
}

// newApp runs the startup sequence up to, but not including, Matrix.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	p, err := newProvisioner(cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Storage.Driver == "json" {
		if err := p.EnsureRegistryFile(cfg.StorePath()); err != nil {
			return nil, fmt.Errorf("preparing term registry: %w", err)
		}
	}

	s, err := store.Open(cfg.Storage.Driver, cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("opening term store: %w", err)
	}

	handler := commands.New(commands.Config{
		Store:  s,
		Assets: p,
		Pref:   stamp.NewPreference(stamp.Small),
		Prefix: cfg.Bot.CommandPrefix,
		Logger: logger,
	})

	return &app{
		cfg:         cfg,
		logger:      logger,
		provisioner: p,
		supervisor:  provision.NewSupervisor(p, logger),
		store:       s,
		handler:     handler,
	}, nil
}

// startProvisioning downloads both size variants in the background. The bot
// keeps serving while it runs; fetches for missing stamps download on demand.
func (a *app) startProvisioning(ctx context.Context) {
	a.supervisor.Start(ctx, stamp.Sizes...)
	go func() {
		reports, err := a.supervisor.Wait(ctx)
		for _, r := range reports {
			logReport(a.logger, r)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("stamp provisioning incomplete", "error", err)
		}
	}()
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("closing term store", "error", err)
	}
}

func logReport(logger *slog.Logger, r *provision.Report) {
	level := slog.LevelInfo
	if !r.Complete() {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "stamp provisioning finished",
		"run_id", r.RunID,
		"size", r.Size.String(),
		"downloaded", len(r.Downloaded),
		"skipped", len(r.Skipped),
		"failed", len(r.Failures),
		"duration", r.FinishedAt.Sub(r.StartedAt),
	)
}

func runProvision(cmd *cobra.Command, args []string) error {
	cfg, _, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, err := newProvisioner(cfg, logger)
	if err != nil {
		return err
	}

	sup := provision.NewSupervisor(p, logger)
	sup.Start(ctx, stamp.Sizes...)
	reports, err := sup.Wait(ctx)
	printReports(cmd.OutOrStdout(), reports)
	return err
}

func printReports(w io.Writer, reports []*provision.Report) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	for _, r := range reports {
		if r.Complete() {
			green.Fprint(w, "    ✓ ")
		} else {
			yellow.Fprint(w, "    ! ")
		}
		fmt.Fprintf(w, "%s: %d downloaded, %d already present, %d failed\n",
			r.Size.Label(), len(r.Downloaded), len(r.Skipped), len(r.Failures))
		for _, f := range r.Failures {
			fmt.Fprintf(w, "        %s: %v\n", stamp.FileName(f.ID), f.Err)
		}
	}
}

// runMigrate imports terms.json into terms.db without touching existing rows.
func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, _, logger, err := loadConfig()
	if err != nil {
		return err
	}

	jsonPath := filepath.Join(cfg.Storage.DataDir, "terms.json")
	if _, err := os.Stat(jsonPath); err != nil {
		return fmt.Errorf("reading %s: %w", jsonPath, err)
	}

	src, err := store.NewJSONStore(jsonPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", jsonPath, err)
	}
	defer src.Close()

	dbPath := filepath.Join(cfg.Storage.DataDir, "terms.db")
	dst, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", dbPath, err)
	}
	defer dst.Close()

	ctx := cmd.Context()
	registry, err := src.Load(ctx)
	if err != nil {
		return err
	}
	n, err := dst.ImportRegistry(ctx, registry)
	if err != nil {
		return err
	}

	logger.Info("terms migrated", "from", jsonPath, "to", dbPath, "rows", n)
	color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "    ✓ Imported %d terms into %s\n", n, dbPath)
	if cfg.Storage.Driver != "sqlite" {
		fmt.Fprintln(cmd.OutOrStdout(), `    Set [storage] driver = "sqlite" to use it.`)
	}
	return nil
}
