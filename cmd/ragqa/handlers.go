package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-ragqa/infrastructure/ingest"
	"github.com/ahrav/go-ragqa/internal/application"
	"github.com/ahrav/go-ragqa/internal/logging"
	"github.com/ahrav/go-ragqa/internal/telemetry"
)

// =============================================================================
// Shared runtime
// =============================================================================

// runtimeEnv is everything a command needs after configuration is loaded.
type runtimeEnv struct {
	cfg        *application.Config
	logger     *slog.Logger
	components *application.Components
	closers    []func(context.Context) error
}

// setupRuntime loads configuration, applies flag overrides and adjust, and
// builds logging, tracing, the metrics endpoint and the components.
func setupRuntime(cmd *cobra.Command, opts *globalOptions, adjust func(*application.Config)) (*runtimeEnv, error) {
	cfg, err := application.LoadConfig(opts.configPath, opts.envFiles...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if adjust != nil {
		adjust(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	env := &runtimeEnv{cfg: cfg, logger: logger}

	ctx := cmd.Context()
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing.TelemetryConfig(version))
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	env.closers = append(env.closers, shutdownTracing)

	components, err := application.NewComponents(ctx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		env.close()
		return nil, err
	}
	env.components = components
	env.closers = append(env.closers, func(context.Context) error { return components.Close() })

	if cfg.Metrics.Addr != "" {
		env.closers = append(env.closers, serveMetrics(cfg.Metrics.Addr, logger))
	}
	return env, nil
}

// close runs the closers in reverse order with a bounded timeout.
func (e *runtimeEnv) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](ctx); err != nil {
			e.logger.Warn("shutdown step failed", "error", err)
		}
	}
}

// serveMetrics exposes the default Prometheus registry on addr.
func serveMetrics(addr string, logger *slog.Logger) func(context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv.Shutdown
}

// =============================================================================
// Index and ask
// =============================================================================

func runIndex(cmd *cobra.Command, opts *globalOptions, watch bool) error {
	env, err := setupRuntime(cmd, opts, nil)
	if err != nil {
		return err
	}
	defer env.close()

	loader, err := env.components.NewLoader()
	if err != nil {
		return err
	}
	ix, err := env.components.NewIndexer(loader)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	stats, err := ix.Index(cmd.Context())
	switch {
	case err == nil:
		fmt.Fprintf(out, "Indexed %d chunks from %d files (%d pages) in %s\n",
			stats.Chunks, stats.Files, stats.Pages, stats.Duration.Round(time.Millisecond))
	case errors.Is(err, ingest.ErrNoDocuments) && watch:
		fmt.Fprintf(out, "No documents in %s yet\n", env.cfg.Ingest.DocsDir)
	default:
		return err
	}

	if !watch {
		return nil
	}
	fmt.Fprintf(out, "Watching %s for changes (Ctrl+C to stop)\n", env.cfg.Ingest.DocsDir)
	return env.components.NewWatcher(loader, ix).Run(cmd.Context())
}

func runAsk(cmd *cobra.Command, opts *globalOptions, args []string, topK int) error {
	env, err := setupRuntime(cmd, opts, nil)
	if err != nil {
		return err
	}
	defer env.close()

	bot, err := env.components.NewChatbot()
	if err != nil {
		return err
	}
	resp, err := bot.Ask(cmd.Context(), strings.Join(args, " "), topK)
	if err != nil {
		return err
	}
	printResponse(cmd.OutOrStdout(), resp)
	return nil
}
