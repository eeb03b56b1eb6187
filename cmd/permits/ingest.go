package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/atlasgrowth23/lapermits/internal/dataset"
	"github.com/atlasgrowth23/lapermits/internal/ingest"
	"github.com/atlasgrowth23/lapermits/internal/runlog"
	"github.com/atlasgrowth23/lapermits/internal/source"
)

// runFlags are the batching flags shared by every ingesting command
type runFlags struct {
	batchSize      int
	skipDuplicates bool
	delay          time.Duration
	maxDefects     int
}

func (f *runFlags) register(cmd *cobra.Command, a *app, delay time.Duration) {
	cmd.Flags().IntVar(&f.batchSize, "batch-size", a.cfg.Ingest.BatchSize, "Rows per INSERT transaction")
	cmd.Flags().BoolVar(&f.skipDuplicates, "skip-duplicates", a.cfg.Ingest.SkipDuplicates, "Skip rows whose key already exists instead of failing the batch")
	cmd.Flags().DurationVar(&f.delay, "delay", delay, "Pause between batches")
	cmd.Flags().IntVar(&f.maxDefects, "max-defects", a.cfg.Ingest.MaxDefects, "Defects retained in the run summary")
}

func (f runFlags) options(a *app) ingest.Options {
	mode := ingest.ModeInsert
	if f.skipDuplicates {
		mode = ingest.ModeSkipDuplicates
	}
	return ingest.Options{
		BatchSize:  f.batchSize,
		Mode:       mode,
		BatchDelay: f.delay,
		MaxDefects: f.maxDefects,
		Logger:     a.logger,
		Metrics:    a.metrics,
	}
}

// parseDelimiter accepts a single character, or "tab"
func parseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return ',', nil
	case "tab", `\t`:
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// parseAssignment splits "dataset=path"
func parseAssignment(arg string) (string, string, error) {
	name, path, ok := strings.Cut(arg, "=")
	if !ok || name == "" || path == "" {
		return "", "", fmt.Errorf("expected dataset=path, got %q", arg)
	}
	return name, path, nil
}

func (a *app) csvSource(ctx context.Context, path, delimiter string) (source.Source, error) {
	delim, err := parseDelimiter(delimiter)
	if err != nil {
		return nil, err
	}
	opener, err := source.OpenerFor(ctx, path, a.cfg.S3)
	if err != nil {
		return nil, err
	}
	return source.NewCSV(path, opener, delim), nil
}

func (a *app) feedSource(schema dataset.Schema, filter string) (*source.Feed, error) {
	if schema.Feed == nil {
		return nil, fmt.Errorf("dataset %s has no remote feed", schema.Name)
	}
	feed, err := source.NewFeed(schema.Feed.URL, schema.Feed.SortKey, a.cfg.Feed.PageSize, a.cfg.Feed.Timeout)
	if err != nil {
		return nil, err
	}
	feed.AppToken = a.cfg.Feed.AppToken
	feed.Where = filter
	return feed, nil
}

// execute runs one controller, records the summary in the ledger and
// reports an incomplete run as an error
func (a *app) execute(ctx context.Context, store permitStore, schema dataset.Schema, src source.Source, opts ingest.Options, entry runlog.Entry) (ingest.RunSummary, error) {
	if err := store.EnsureTable(ctx, schema.TableSpec()); err != nil {
		return ingest.RunSummary{}, err
	}

	ctrl, err := ingest.NewController(store, src, schema, opts)
	if err != nil {
		return ingest.RunSummary{}, err
	}

	stop := a.progress(ctrl)
	summary, runErr := ctrl.Run(ctx)
	stop()

	if summary.RunID != "" && !a.dryRun {
		if err := a.saveRun(ctx, entry, summary); err != nil {
			a.logger.Error("failed to record run", "run_id", summary.RunID, "error", err)
		}
	}
	if runErr != nil {
		return summary, runErr
	}
	if n := len(summary.FailedRanges); n > 0 {
		return summary, fmt.Errorf("run %s left %d failed range(s); replay with: permits recover %s", summary.RunID, n, summary.RunID)
	}
	return summary, nil
}

func (a *app) saveRun(ctx context.Context, entry runlog.Entry, summary ingest.RunSummary) error {
	ledger, err := runlog.Open(a.cfg.RunLog.Path)
	if err != nil {
		return err
	}
	defer ledger.Close()

	entry.Summary = summary
	return ledger.Save(context.WithoutCancel(ctx), entry)
}

// progress prints the controller state to stderr while attached to a terminal
func (a *app) progress(ctrl *ingest.Controller) func() {
	if !interactive() {
		return func() {}
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				fmt.Fprintln(os.Stderr)
				return
			case <-ticker.C:
				fmt.Fprintf(os.Stderr, "\r[%s] %-12s", shortID(ctrl.RunID()), ctrl.State())
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func createImportCmd(a *app) *cobra.Command {
	var flags runFlags
	var delimiter string

	cmd := &cobra.Command{
		Use:   "import [dataset] [path|s3://bucket/key]",
		Short: "Import a CSV extract into a dataset table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			schema, err := dataset.Lookup(args[0])
			if err != nil {
				return err
			}
			src, err := a.csvSource(ctx, args[1], delimiter)
			if err != nil {
				return err
			}

			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			summary, err := a.execute(ctx, store, schema, src, flags.options(a), runlog.Entry{Kind: runlog.KindCSV, Delimiter: delimiter})
			if summary.RunID != "" {
				if perr := printJSON(summary); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	flags.register(cmd, a, a.cfg.Ingest.BatchDelay)
	cmd.Flags().StringVar(&delimiter, "delimiter", ",", `Field delimiter (single character or "tab")`)
	return cmd
}

func createFetchCmd(a *app) *cobra.Command {
	var flags runFlags
	var all bool
	var since string

	cmd := &cobra.Command{
		Use:   "fetch [dataset]",
		Short: "Ingest a dataset from its remote paginated feed",
		Long:  `Pages through the dataset's feed in a stable order. By default only the dataset's recent window is fetched`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			schema, err := dataset.Lookup(args[0])
			if err != nil {
				return err
			}
			feed, err := a.feedSource(schema, "")
			if err != nil {
				return err
			}

			switch {
			case since != "":
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since: %w", err)
				}
				feed.Since(schema.Feed.DateField, t)
			case !all && schema.Feed.WindowYears > 0:
				feed.Since(schema.Feed.DateField, time.Now().AddDate(-schema.Feed.WindowYears, 0, 0))
			}

			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			summary, err := a.execute(ctx, store, schema, feed, flags.options(a), runlog.Entry{Kind: runlog.KindFeed, Filter: feed.Where})
			if summary.RunID != "" {
				if perr := printJSON(summary); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	flags.register(cmd, a, a.cfg.Feed.BatchDelay)
	cmd.Flags().BoolVar(&all, "all", false, "Fetch the whole feed instead of the recent window")
	cmd.Flags().StringVar(&since, "since", "", "Fetch rows on or after this date (YYYY-MM-DD)")
	return cmd
}

func createImportAllCmd(a *app) *cobra.Command {
	var flags runFlags
	var delimiter string
	var parallel int

	cmd := &cobra.Command{
		Use:   "import-all [dataset=path]...",
		Short: "Import several extracts concurrently, one run per dataset",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			type job struct {
				schema dataset.Schema
				src    source.Source
			}
			jobs := make([]job, 0, len(args))
			for _, arg := range args {
				name, path, err := parseAssignment(arg)
				if err != nil {
					return err
				}
				schema, err := dataset.Lookup(name)
				if err != nil {
					return err
				}
				src, err := a.csvSource(ctx, path, delimiter)
				if err != nil {
					return err
				}
				jobs = append(jobs, job{schema: schema, src: src})
			}

			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			summaries := make([]ingest.RunSummary, len(jobs))
			var g errgroup.Group
			if parallel > 0 {
				g.SetLimit(parallel)
			}
			for i, j := range jobs {
				i, j := i, j
				g.Go(func() error {
					summary, err := a.execute(ctx, store, j.schema, j.src, flags.options(a), runlog.Entry{Kind: runlog.KindCSV, Delimiter: delimiter})
					summaries[i] = summary
					if err != nil {
						return fmt.Errorf("%s: %w", j.schema.Name, err)
					}
					return nil
				})
			}
			runErr := g.Wait()

			if err := printJSON(summaries); err != nil {
				return err
			}
			return runErr
		},
	}
	flags.register(cmd, a, a.cfg.Ingest.BatchDelay)
	cmd.Flags().StringVar(&delimiter, "delimiter", ",", `Field delimiter for every file (single character or "tab")`)
	cmd.Flags().IntVar(&parallel, "parallel", 2, "Runs in flight at once (0 for unlimited)")
	return cmd
}

func createRecoverCmd(a *app) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "recover [run-id]",
		Short: "Replay the failed ranges of a recorded run with duplicate skipping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			ledger, err := runlog.Open(a.cfg.RunLog.Path)
			if err != nil {
				return err
			}
			entry, err := ledger.Load(ctx, args[0])
			ledger.Close()
			if err != nil {
				return err
			}

			prev := entry.Summary
			if len(prev.FailedRanges) == 0 {
				a.logger.Info("nothing to recover", "run_id", prev.RunID)
				return nil
			}
			if prev.Cancelled || prev.Aborted != "" {
				a.logger.Warn("run stopped early; only its failed ranges are replayed", "run_id", prev.RunID)
			}

			schema, err := dataset.Lookup(prev.Dataset)
			if err != nil {
				return err
			}

			var src source.Source
			switch entry.Kind {
			case runlog.KindFeed:
				src, err = a.feedSource(schema, entry.Filter)
			case runlog.KindCSV:
				src, err = a.csvSource(ctx, prev.Source, entry.Delimiter)
			default:
				err = fmt.Errorf("run %s has unknown source kind %q", prev.RunID, entry.Kind)
			}
			if err != nil {
				return err
			}

			opts := flags.options(a)
			opts.Mode = ingest.ModeSkipDuplicates
			for _, f := range prev.FailedRanges {
				opts.Ranges = append(opts.Ranges, f.Range())
			}

			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			a.logger.Info("recovering run", "run_id", prev.RunID, "ranges", len(opts.Ranges))
			summary, err := a.execute(ctx, store, schema, src, opts, runlog.Entry{Kind: entry.Kind, Delimiter: entry.Delimiter, Filter: entry.Filter})
			if summary.RunID != "" {
				if perr := printJSON(summary); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	flags.register(cmd, a, a.cfg.Ingest.BatchDelay)
	return cmd
}

func createRunsCmd(a *app) *cobra.Command {
	var datasetName string
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := runlog.Open(a.cfg.RunLog.Path)
			if err != nil {
				return err
			}
			defer ledger.Close()

			entries, err := ledger.List(cmd.Context(), datasetName, limit)
			if err != nil {
				return err
			}
			if !interactive() {
				return printJSON(entries)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tDATASET\tSTARTED\tWRITTEN\tDEFECTS\tFAILED\tSTATUS")
			for _, e := range entries {
				s := e.Summary
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					s.RunID, s.Dataset, s.StartedAt.Local().Format(time.DateTime),
					s.RowsWritten, s.TotalDefects(), len(s.FailedRanges), runStatus(s))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&datasetName, "dataset", "", "Only runs for this dataset")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	return cmd
}

func runStatus(s ingest.RunSummary) string {
	switch {
	case s.Aborted != "":
		return "aborted"
	case s.Cancelled:
		return "cancelled"
	case len(s.FailedRanges) > 0:
		return "incomplete"
	default:
		return "complete"
	}
}
