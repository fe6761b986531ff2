package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/josephpugh/weather-mcp/internal/config"
)

func newLookupCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <city> [city...]",
		Short: "Print the current weather for one or more cities as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			cfg, err := config.Load(opts.envFiles...)
			if err != nil {
				return err
			}
			// Telemetry goes to stderr so stdout stays machine readable.
			a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, a.close(ctx))
			}()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if len(args) == 1 {
				report, err := a.svc.Lookup(ctx, args[0])
				if err != nil {
					return err
				}
				return enc.Encode(report)
			}
			results, err := a.svc.LookupMany(ctx, args)
			if err != nil {
				return err
			}
			return enc.Encode(results)
		},
	}
}
