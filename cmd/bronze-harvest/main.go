package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bronze-harvest/internal/config"
	"bronze-harvest/internal/event"
	"bronze-harvest/internal/harvest"
	"bronze-harvest/internal/metrics"
	"bronze-harvest/internal/snapshot"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	parallel   bool
	recentDays int
)

func main() {
	logger := log.New(os.Stdout, "[bronze-harvest] ", log.LstdFlags|log.Lshortfile)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Printf("could not load .env file: %v", err)
	}

	// Root context cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd(logger).ExecuteContext(ctx); err != nil {
		logger.Fatalf("%v", err)
	}
}

func rootCmd(logger *log.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "bronze-harvest",
		Short:         "Harvest open-data search results into immutable bronze snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Harvest the bike counters and the recent counts once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd.Context(), logger)
		},
	}
	run.Flags().BoolVar(&parallel, "parallel", false, "harvest datasets concurrently")
	run.Flags().IntVar(&recentDays, "days", 0, "recent window for counts in days (default RECENT_DAYS)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Harvest on a schedule and expose /healthz and /metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serveLoop(cmd.Context(), logger)
		},
	}

	ingest := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Copy local files into the bronze directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ingestFiles(cmd.Context(), logger, args)
		},
	}

	root.AddCommand(run, serve, ingest)
	return root
}

func runOnce(ctx context.Context, logger *log.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if recentDays > 0 {
		cfg.RecentDays = recentDays
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	logger.Println("[START] bronze extraction (Paris bike counters)")
	results, err := a.harvester.RunPlan(ctx, plan(cfg), parallel)
	if err != nil {
		return err
	}

	for _, r := range results {
		if r.Truncated() {
			logger.Printf("[WARN] %s stopped at the page limit, the bronze snapshot is incomplete", r.Spec.Name)
		}
	}
	logger.Println("[DONE]")
	return nil
}

func serveLoop(ctx context.Context, logger *log.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	srv := statusServer(cfg.HTTPAddr, logger)

	// Start background workers
	go a.harvester.StartPolling(ctx, cfg.PollInterval, cfg.RunTimeout, cfg.MaxPolls, plan(cfg))

	if a.snapshots != nil && a.publisher != nil {
		relay := event.NewService(a.snapshots, a.publisher, logger)
		go relay.Run(ctx)
	}

	logger.Println("service started")

	// Block until we receive a signal / ctx cancelled
	<-ctx.Done()
	logger.Println("shutdown signal received, shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("HTTP server shutdown error: %v", err)
	}

	logger.Println("shutdown complete")
	return nil
}

func ingestFiles(ctx context.Context, logger *log.Logger, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	dir := cfg.InputDir
	if len(args) == 1 {
		dir = args[0]
	}

	w := snapshot.NewFSWriter(cfg.BronzeDir, snapshot.WithFSLogger(logger))
	refs, err := w.IngestDir(ctx, dir)
	if err != nil {
		return err
	}
	logger.Printf("[DONE] %d files ingested into %s", len(refs), w.Dir())
	return nil
}

// plan is the default harvest: every counter, then the recent counts.
func plan(cfg config.Config) []harvest.Job {
	return []harvest.Job{
		{
			Spec: harvest.DatasetSpec{
				Name:      "Paris bike counters (metadata)",
				Dataset:   "comptage-velo-compteurs",
				Prefix:    "paris_bike_counters",
				PageSize:  cfg.PageSize,
				PageLimit: cfg.CountersMaxPages,
			},
		},
		{
			Spec: harvest.DatasetSpec{
				Name:      "Paris bike counts (measurements)",
				Dataset:   "comptage-velo-donnees-compteurs",
				Prefix:    "paris_bike_counts",
				PageSize:  cfg.PageSize,
				PageLimit: cfg.CountsMaxPages,
			},
			RecentDays: cfg.RecentDays,
		},
	}
}

func statusRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return r
}

func statusServer(addr string, logger *log.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           statusRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Printf("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("HTTP server error: %v", err)
		}
	}()

	return srv
}
