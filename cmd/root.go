package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// ServeFunc runs the detection service until it is told to stop
type ServeFunc func(ctx context.Context, configFile string) error

// NewRootCmd creates the argus command. Without a subcommand it runs the
// service through serve; `argus rules ...` reviews and validates rules.
func NewRootCmd(serve ServeFunc) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "argus",
		Short: "Event correlation and anomaly scoring engine",
		Long: `Argus turns log lines and bus events into security events, matches them against
detection rules, scores them for behavioral anomalies and routes alerts to
containment, orchestration and rule learning.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configFile)
		},
	}

	rootCmd.Flags().StringVar(&configFile, "config", "", "Config file path (default: ./config.yaml or ./config/config.yaml)")
	rootCmd.AddCommand(NewRulesCmd())

	return rootCmd
}
