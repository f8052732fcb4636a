package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bibkeys/internal/api"
	"bibkeys/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func (a *app) newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Server.Port = port
			}

			logger := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Pretty)
			projects, bib, closeDB, err := a.openServices(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			gin.SetMode(gin.ReleaseMode)
			router := api.NewRouter(cfg.Server, logger, projects, bib)
			srv := &http.Server{
				Addr:              ":" + cfg.Server.Port,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("port", cfg.Server.Port).Str("driver", cfg.Database.Driver).Msg("Server starting")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			logger.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides server.port)")
	return cmd
}
