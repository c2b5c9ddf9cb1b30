package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"farecraft/api"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func serveCmd(a *app) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scrape API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := a.cfg, a.logger
			if port == "" {
				port = cfg.Server.Port
			}
			if cfg.App.Env != "development" {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := openStores(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.close()

			manager := newRunManager(cfg, st, logger)
			if err := recoverRuns(ctx, cfg, st, manager); err != nil {
				return err
			}
			srv := &http.Server{
				Addr:         ":" + port,
				Handler:      api.NewRouter(api.NewHandler(manager), logger),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  cfg.Server.IdleTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Listening on %s (storage: %s)", srv.Addr, cfg.Storage.Driver)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
			case <-ctx.Done():
			}

			logger.Info("Shutting down, cancelling running scrapes")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server forced to shutdown: %v", err)
			}
			manager.Shutdown()
			return nil
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (defaults to server.port)")
	return cmd
}
