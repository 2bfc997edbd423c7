package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/pterokeys/internal/config"
	dserrors "github.com/systmms/pterokeys/internal/errors"
	"github.com/systmms/pterokeys/internal/secure"
	"github.com/systmms/pterokeys/internal/server"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(cfg *config.Config) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the key regeneration HTTP API",
		Long: `Run an HTTP server exposing key regeneration to the panel frontend.

Routes:
  POST /api/users/{id}/api-key   regenerate (bearer token, X-Operator-Id and X-Operator-Email headers)
  GET  /health                   liveness
  GET  /metrics                  Prometheus metrics (path set by server.metrics_path)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}

			serverCfg := cfg.Definition.Server
			if listen != "" {
				serverCfg.Listen = listen
			}
			if serverCfg.Token == "" {
				return dserrors.ConfigError{
					Field:      "server.token",
					Message:    "a bearer token is required to serve the API",
					Suggestion: "Set server.token to an env: or keyring: reference",
				}
			}
			rawToken, err := config.ResolveSecret("server.token", serverCfg.Token)
			if err != nil {
				return err
			}
			token, err := secure.NewToken(rawToken)
			if err != nil {
				return err
			}
			defer token.Destroy()

			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := server.New(server.Config{
				Listen:      serverCfg.Listen,
				Token:       token,
				MetricsPath: serverCfg.MetricsPath,
				Metrics:     a.metrics.Handler(),
			}, a.accounts, a.rotator, cfg.Logger)
			if err != nil {
				return err
			}

			if err := srv.Start(); err != nil {
				return err
			}
			cfg.Logger.Info("Listening on %s", srv.Addr())

			<-ctx.Done()
			cfg.Logger.Info("Shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Override server.listen")

	return cmd
}
