package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nl2sql/internal/api"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.Env == "production" {
			gin.SetMode(gin.ReleaseMode)
		}

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		s := &api.Server{
			Pipeline: a.pipeline,
			Schema:   a.schema,
			Audit:    a.audit,
			RPS:      cfg.RateLimitRPS,
			Burst:    cfg.RateLimitBurst,
			Logger:   logger.Named("api"),
		}
		if cfg.DBAUser != "" {
			s.Accounts = gin.Accounts{cfg.DBAUser: cfg.DBAPassword}
		}
		if cfg.DBAEnabled() {
			s.Approvals = a.approvals
		}
		if a.store != nil {
			s.Documents = a.ingester
		}

		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           s.SetupRouter(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", zap.Error(err))
		}
		if err := s.Wait(shutdownCtx); err != nil {
			logger.Warn("document jobs still running at shutdown", zap.Error(err))
		}
		return nil
	},
}
