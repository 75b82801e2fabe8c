package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpDelivery "github.com/catalogsync/backend/internal/delivery/http"
	"github.com/catalogsync/backend/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin HTTP server",
	Long: `Run the admin HTTP server. POST /admin/sync starts a background run,
GET /admin/sync reports synced categories and the last run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		// background runs stop with the signal context
		runner := usecase.NewRunner(ctx, a.service, logger)
		handler := httpDelivery.NewHandler(runner, a.service, a.categories, cfg.Source.Name, logger)
		router := httpDelivery.SetupRouter(cfg, handler, logger)

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
			Handler: router,
		}

		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		logger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Server.Environment),
			zap.String("source", cfg.Source.BaseURL),
		)

		select {
		case err := <-errCh:
			return fmt.Errorf("http server failed: %w", err)
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		runner.Wait()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
