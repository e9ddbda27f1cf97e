package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/polisai/archextract/pkg/config"
	"github.com/polisai/archextract/pkg/pipeline"
	"github.com/polisai/archextract/pkg/source"
	"github.com/polisai/archextract/pkg/storage"
	"github.com/polisai/archextract/pkg/telemetry"
)

func newWatchCmd(g *globalOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "watch [flags] <trace file or directory>...",
		Short: "Re-extract whenever inputs or configuration change",
		Long: `Runs an extraction, then re-runs it whenever a trace file or the
configuration file changes. Serves Prometheus metrics on /metrics and the
stored runs on /runs and /runs/latest.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, g, listen, args)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Metrics listen address (defaults to telemetry.metrics_address)")
	return cmd
}

// session is the state of a running watch.
type session struct {
	paths   []string
	store   storage.ModelStore
	metrics *telemetry.ModelMetrics
	logger  *slog.Logger

	mu  sync.Mutex
	cfg *config.Config
}

func runWatch(cmd *cobra.Command, g *globalOptions, listen string, paths []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, shutdown, err := setup(ctx, cmd, g)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(shutdown, logger)

	store := storage.NewMemoryModelStore(cfg.Storage.Retention)
	defer func() { _ = store.Close() }()

	s := &session{
		paths:   paths,
		store:   store,
		metrics: telemetry.NewModelMetrics(),
		logger:  logger,
		cfg:     cfg,
	}

	var updates <-chan *config.Config
	if g.ConfigPath != "" {
		provider, err := config.NewProvider(g.ConfigPath, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := provider.Close(); err != nil {
				logger.Error("failed to close config provider", "error", err)
			}
		}()
		updates = provider.Subscribe()
	}

	inputs, err := source.Expand(paths)
	if err != nil {
		return err
	}
	watcher, err := config.NewWatcher(inputs, config.DefaultDebounce, logger)
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if listen == "" {
		listen = cfg.Telemetry.MetricsAddress
	}
	server, err := startServer(listen, s, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	s.run(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("watch stopped")
			return nil
		case changed, ok := <-watcher.Changes():
			if !ok {
				return nil
			}
			logger.Info("trace inputs changed", "files", changed)
			s.run(ctx)
		case next, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if err := applyOverrides(next, g); err != nil {
				s.metrics.RecordConfigReload("rejected")
				logger.Error("reloaded configuration rejected", "error", err)
				continue
			}
			s.mu.Lock()
			s.cfg = next
			s.mu.Unlock()
			s.metrics.RecordConfigReload("applied")
			s.run(ctx)
		}
	}
}

// run performs one extraction and publishes its outcome.
func (s *session) run(ctx context.Context) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	start := time.Now()
	res, err := extract(ctx, cfg, s.paths, s.logger, func(o *pipeline.Options) {
		o.Store = s.store
	})
	if err != nil {
		s.metrics.RecordRun(telemetry.OutcomeFailed, time.Since(start))
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("extraction failed", "error", err)
		}
		return
	}
	s.metrics.RecordRun(res.Outcome(), res.Duration)

	run, err := s.store.Get(ctx, res.RunID)
	if err != nil {
		s.logger.Error("stored run missing", "run_id", res.RunID, "error", err)
		return
	}
	s.metrics.ObserveRun(run)
}

type runSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Services     int       `json:"services"`
	Operations   int       `json:"operations"`
	Dependencies int       `json:"dependencies"`
	Spans        int       `json:"spans"`
	Findings     int       `json:"findings"`
	Hazards      int       `json:"hazards"`
}

func startServer(addr string, s *session, logger *slog.Logger) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/runs", otelhttp.NewHandler(http.HandlerFunc(s.listRuns), "archextract.runs"))
	mux.Handle("/runs/latest", otelhttp.NewHandler(http.HandlerFunc(s.latestRun), "archextract.runs.latest"))

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	logger.Info("metrics server listening", "addr", listener.Addr().String())

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return server, nil
}

func (s *session) listRuns(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]runSummary, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, runSummary{
			ID:           sum.ID,
			CreatedAt:    sum.CreatedAt,
			Services:     sum.Stats.Services,
			Operations:   sum.Stats.Operations,
			Dependencies: sum.Stats.Dependencies,
			Spans:        sum.Stats.Spans,
			Findings:     sum.Findings,
			Hazards:      sum.Hazards,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (s *session) latestRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.Latest(r.Context())
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "no runs yet", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(run.Export)
}
