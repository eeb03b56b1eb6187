package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atlasgrowth23/lapermits/internal/dataset"
	"github.com/atlasgrowth23/lapermits/internal/db"
	"github.com/atlasgrowth23/lapermits/internal/ingest"
	"github.com/atlasgrowth23/lapermits/internal/normalize"
	"github.com/atlasgrowth23/lapermits/internal/web"
)

// createPingCmd creates a command to test database connectivity
func createPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test database connectivity and show table counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.Ping(ctx); err != nil {
				return err
			}
			fmt.Println("Database connection successful!")

			for _, s := range dataset.All() {
				n, err := store.Count(ctx, s.Table)
				if errors.Is(err, db.ErrNotFound) {
					fmt.Printf("%-8s %-28s not created\n", s.Name, s.Table)
					continue
				}
				if err != nil {
					a.logger.Warn("count failed", "table", s.Table, "error", err)
					continue
				}
				fmt.Printf("%-8s %-28s %d rows\n", s.Name, s.Table, n)
			}
			return nil
		},
	}
}

func createInitDBCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db [dataset]...",
		Short: "Create dataset tables (all datasets when none are named)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			schemas := dataset.All()
			if len(args) > 0 {
				schemas = schemas[:0:0]
				for _, name := range args {
					s, err := dataset.Lookup(name)
					if err != nil {
						return err
					}
					schemas = append(schemas, s)
				}
			}

			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			for _, s := range schemas {
				if err := store.EnsureTable(ctx, s.TableSpec()); err != nil {
					return err
				}
				a.logger.Info("table ready", "dataset", s.Name, "table", s.Table, "columns", len(s.Rules))
			}
			return nil
		},
	}
}

func createWidenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "widen [dataset] [column] [precision]",
		Short: "Raise the precision of a numeric column",
		Long:  `Widening is monotonic: a precision at or below the current one changes nothing. Scale is kept from the dataset's rules`,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			schema, err := dataset.Lookup(args[0])
			if err != nil {
				return err
			}
			rule, ok := schema.Rules.Lookup(args[1])
			if !ok || rule.Type != normalize.TypeDecimal {
				return fmt.Errorf("%s is not a numeric column of %s", args[1], schema.Name)
			}
			precision, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid precision %q: %w", args[2], err)
			}

			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			recovery := ingest.NewRecovery(store, schema.Name, schema.Table, schema.Rules, a.logger, a.metrics)
			changed, err := recovery.Widen(ctx, rule.Target, precision, rule.Scale)
			if err != nil {
				return err
			}
			if changed {
				fmt.Printf("%s.%s widened to NUMERIC(%d,%d)\n", schema.Table, rule.Target, precision, rule.Scale)
			} else {
				fmt.Printf("%s.%s already holds precision %d\n", schema.Table, rule.Target, precision)
			}
			return nil
		},
	}
}

func createCurateCmd(a *app) *cobra.Command {
	var exclude string

	cmd := &cobra.Command{
		Use:   "curate [dataset]",
		Short: "Rebuild the curated table without the excluded permit type codes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			schema, err := dataset.Lookup(args[0])
			if err != nil {
				return err
			}

			codes := schema.CurateExclude
			if cmd.Flags().Changed("exclude") {
				codes = nil
				for _, c := range strings.Split(exclude, ",") {
					if c = strings.TrimSpace(c); c != "" {
						codes = append(codes, c)
					}
				}
			}

			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			src := schema.Source()
			n, err := store.Curate(ctx, src, codes)
			if err != nil {
				return err
			}
			a.logger.Info("curated table rebuilt", "table", src.CuratedTable(), "rows", n, "excluded", codes)
			return nil
		},
	}
	cmd.Flags().StringVar(&exclude, "exclude", "", "Comma-separated permit type codes to drop (default: the dataset's list)")
	return cmd
}

func createServeCmd(a *app) *cobra.Command {
	var configFile string
	var curated bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the permit read API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			webConfig := web.ConfigFrom(a.cfg)
			webConfig.Features.CuratedByDefault = curated
			if configFile != "" {
				var err error
				if webConfig, err = web.LoadConfig(configFile, webConfig); err != nil {
					return fmt.Errorf("load %s: %w", configFile, err)
				}
			}

			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			return web.NewServer(webConfig, store, a.registry, a.logger).Start(ctx)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "JSON file overriding server settings")
	cmd.Flags().BoolVar(&curated, "curated", false, "List from curated tables unless ?curated=false")
	return cmd
}
