package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/research-token/internal/monitoring"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		level := monitoring.ParseLevel(cfg.Log.Level)
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
		logger := monitoring.NewLoggerWithWriter(os.Stdout, level)

		if level > slog.LevelDebug {
			gin.SetMode(gin.ReleaseMode)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.startJobs(ctx); err != nil {
			return err
		}

		srv := &http.Server{
			Addr:         cfg.Addr(),
			Handler:      newRouter(a),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			slog.Info("Starting server", "addr", srv.Addr, "cluster", cfg.Ledger.Cluster, "storage", cfg.Storage)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
		case <-ctx.Done():
		}
		slog.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
			return err
		}

		slog.Info("Server exited")
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (overrides server.port)")
	serveCmd.Flags().String("storage", "", "storage backend: sqlite or memory")

	_ = settings.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = settings.BindPFlag("storage", serveCmd.Flags().Lookup("storage"))

	rootCmd.AddCommand(serveCmd)
}
