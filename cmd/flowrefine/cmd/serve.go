package cmd

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flowcanvas/flowrefine/internal/api"
	"github.com/flowcanvas/flowrefine/internal/metrics"
	"github.com/flowcanvas/flowrefine/internal/service/refine"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the refinement API over HTTP",
	Long: `Start an HTTP server exposing workflow and nested flow refinement,
conversation history, cancellation and Prometheus metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	recorder := metrics.NewRecorder(metrics.WithRuntimeCollectors())
	p, err := newPipeline(cfg, logger, refine.WithObserver(recorder))
	if err != nil {
		return err
	}
	defer p.Close()

	store, closeStore, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := p.runner.CheckAvailability(cmd.Context()); err != nil {
		logger.Warn("completion tool not available; refinements will fail until it is installed",
			"path", cfg.Tool.Path, "error", err)
	}

	server := api.NewServer(p.refiner, store,
		api.WithLogger(logger),
		api.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		api.WithRateLimiter(api.NewRateLimiter(cfg.Server.RefineRate, cfg.Server.RefineBurst)),
		api.WithDefaultUseSkills(cfg.Refine.UseSkills),
		api.WithMetricsHandler(recorder.Handler()),
	)

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = server.ListenAndServe(ctx, addr, cfg.Server.ShutdownTimeoutDuration())
	if errors.Is(err, http.ErrServerClosed) {
		logger.Info("API server stopped")
		return nil
	}
	return err
}
