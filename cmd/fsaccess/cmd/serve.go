package cmd

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fruitsalade/fsaccess/internal/accessor"
	"github.com/fruitsalade/fsaccess/internal/api"
	"github.com/fruitsalade/fsaccess/internal/auth"
	"github.com/fruitsalade/fsaccess/internal/logging"
	"github.com/fruitsalade/fsaccess/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the configured storage backend over HTTP",
	Long: `Serve the backend chosen by STORAGE_BACKEND on LISTEN_ADDR, with Prometheus
metrics on METRICS_ADDR. JWT_SECRET is required.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireServer(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logging.Info("fsaccess server starting...",
			zap.String("listen", cfg.ListenAddr),
			zap.String("metrics", cfg.MetricsAddr),
			zap.String("backend", cfg.StorageBackend))

		acc, err := accessor.FromEnv(ctx, cfg)
		if err != nil {
			return err
		}
		logging.Info("storage backend ready", zap.String("accessor", acc.Name()))

		srv := api.NewServer(acc, auth.New(cfg.JWTSecret, cfg.LocatorTTL), cfg.PublicURL)

		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("metrics server error", zap.Error(err))
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			logging.Info("shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logging.Error("server shutdown error", zap.Error(err))
			}
			metricsServer.Close()
		}()

		logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
