package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/koustreak/dbparser/internal/app"
	"github.com/koustreak/dbparser/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the table model over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		return withApp(ctx, func(a *app.App) error {
			srv := &http.Server{
				Addr:              addr,
				Handler:           server.New(a.Parser, log),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go a.RunPurger(ctx, cfg.Cache.PurgeInterval)

			errCh := make(chan error, 1)
			go func() {
				log.With().Str("addr", addr).Logger().Info("http server listening")
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

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
