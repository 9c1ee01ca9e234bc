package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/orrn/labelspool/internal/api"
	"github.com/orrn/labelspool/internal/api/handlers"
	"github.com/orrn/labelspool/internal/api/middleware"
	"github.com/orrn/labelspool/internal/db"
	"github.com/orrn/labelspool/internal/retention"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
}

func serve(ctx context.Context, opts *rootOptions) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	auth, err := middleware.NewAuthMiddleware(a.cfg.Auth.Enabled, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize auth: %w", err)
	}

	deps := api.Deps{
		Config:    a.cfg,
		Session:   a.session,
		Collector: a.collector,
		Auth:      auth,
		Webhooks:  a.webhooks,
		Logger:    a.logger,
	}
	if reporter, ok := a.bridge.(handlers.StatusReporter); ok {
		deps.Status = reporter
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	// The session reconnects on demand, so a failure here only warns.
	if err := a.session.Connect(ctx); err != nil {
		a.logger.Warn("print bridge not reachable at startup", zap.Error(err))
	}

	pruner := retention.NewPruner(db.Jobs, a.cfg.Database.RetentionDays, a.logger)
	pruner.Start()
	defer pruner.Stop()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("bridge", a.cfg.Bridge.Kind))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
