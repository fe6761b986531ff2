package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/josephpugh/weather-mcp/auth"
	"github.com/josephpugh/weather-mcp/internal/config"
	"github.com/josephpugh/weather-mcp/internal/mcpserver"
	"github.com/josephpugh/weather-mcp/internal/server"
	"github.com/josephpugh/weather-mcp/observe"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST and MCP HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(opts.envFiles...)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, a.close(ctx))
			}()

			authn := auth.New(cfg.AuthSettings())
			if authn != nil {
				a.log.Info(ctx, "authentication enabled", observe.Field{Key: "method", Value: authn.Name()})
			}

			var gatherer prometheus.Gatherer
			if cfg.Otel.MetricsExporter == "prometheus" {
				gatherer = a.registry
			}

			mcp := mcpserver.New(a.svc, a.mw, version)
			srv := server.New(server.Config{
				Address:         cfg.ServerAddress,
				ShutdownTimeout: cfg.ShutdownTimeout,
				ServiceName:     cfg.Otel.ServiceName,
				TracerProvider:  a.obs.TracerProvider(),
				Gatherer:        gatherer,
				Authenticator:   authn,
				MCPPath:         mcpserver.EndpointPath,
				MCP:             mcp.Handler(),
			}, a.svc, a.health, a.log)

			go a.purgeLoop(ctx)
			return srv.Run(ctx)
		},
	}
}
