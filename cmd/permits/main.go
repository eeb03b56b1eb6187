package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/atlasgrowth23/lapermits/internal/config"
	"github.com/atlasgrowth23/lapermits/internal/dataset"
	"github.com/atlasgrowth23/lapermits/internal/db"
	"github.com/atlasgrowth23/lapermits/internal/ingest"
	"github.com/atlasgrowth23/lapermits/internal/logging"
	"github.com/atlasgrowth23/lapermits/internal/metrics"
	"github.com/atlasgrowth23/lapermits/internal/web/handlers"
)

// permitStore is everything the commands need from a store
type permitStore interface {
	ingest.Store
	handlers.PermitReader
	EnsureTable(ctx context.Context, spec db.TableSpec) error
	Count(ctx context.Context, table string) (int64, error)
	Curate(ctx context.Context, src db.PermitSource, exclude []string) (int64, error)
}

// app carries process-wide state shared by every subcommand
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	dryRun   bool
	logLevel string
	logJSON  bool
}

func main() {
	if err := config.LoadEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	a := &app{cfg: config.FromEnv(), registry: prometheus.NewRegistry()}
	a.metrics = metrics.New(a.registry)

	rootCmd := &cobra.Command{
		Use:           "permits",
		Short:         "Building permit ingestion and read API",
		Long:          `Loads municipal building permit extracts and feeds into PostgreSQL and serves them over HTTP`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.logger = logging.New(a.logLevel, a.logJSON)
		},
	}
	rootCmd.PersistentFlags().BoolVar(&a.dryRun, "dry-run", false, "Use an in-memory store instead of PostgreSQL")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", a.cfg.Log.Level, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&a.logJSON, "log-json", a.cfg.Log.JSON, "Emit JSON logs")

	rootCmd.AddCommand(createPingCmd(a))
	rootCmd.AddCommand(createInitDBCmd(a))
	rootCmd.AddCommand(createImportCmd(a))
	rootCmd.AddCommand(createFetchCmd(a))
	rootCmd.AddCommand(createImportAllCmd(a))
	rootCmd.AddCommand(createRecoverCmd(a))
	rootCmd.AddCommand(createRunsCmd(a))
	rootCmd.AddCommand(createWidenCmd(a))
	rootCmd.AddCommand(createCurateCmd(a))
	rootCmd.AddCommand(createServeCmd(a))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openStore connects to PostgreSQL, or builds an in-memory store with every
// dataset table when --dry-run is set
func (a *app) openStore(ctx context.Context) (permitStore, func(), error) {
	if a.dryRun {
		specs := make([]db.TableSpec, 0)
		for _, s := range dataset.All() {
			specs = append(specs, s.TableSpec())
		}
		a.logger.Info("dry run, using in-memory store")
		return db.NewMemoryStore(specs...), func() {}, nil
	}

	conn, err := db.NewConnection(ctx, a.cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := conn.Close(); err != nil {
			a.logger.Warn("close database", "error", err)
		}
	}
	return db.NewPostgresStore(conn), closeFn, nil
}

// interactive reports whether stdout is a terminal
func interactive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
