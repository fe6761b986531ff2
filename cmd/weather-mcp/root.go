package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFiles []string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "weather-mcp",
		Short: "Current weather over REST and the Model Context Protocol",
		Long: `weather-mcp looks up current conditions from weatherapi.com.

It exposes the lookup as POST /get_weather, as the get_weather MCP tool,
and as the weather://forecast/{city} MCP resource. Configuration comes from
the environment (WEATHER_*, OTEL_*, AUTH_*, SERVER_ADDRESS, LOG_LEVEL) after
any --env-file values are loaded.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")

	cmd.AddCommand(
		newServeCommand(opts),
		newLookupCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "weather-mcp %s\n", version)
			return err
		},
	}
}
