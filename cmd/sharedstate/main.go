package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sharedstate",
		Short:         "Replay writes against a shared-state store",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return rootCmd
}

func newReplayCmd() *cobra.Command {
	var (
		configPath string
		trace      bool
	)

	cmd := &cobra.Command{
		Use:   "replay <script.yaml>",
		Short: "Seed a store from config and replay a write script",
		Long: `The replay command seeds string keys from the config's defaults section,
installs the middleware declared in the script, binds a printing subscriber to
every scripted key and then performs the scripted writes in order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := loadScript(args[0])
			if err != nil {
				return err
			}
			return runReplay(cmd.Context(), replayOptions{
				configPath: configPath,
				trace:      trace,
				out:        cmd.OutOrStdout(),
				errOut:     cmd.ErrOrStderr(),
			}, script)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default $SHAREDSTATE_CONFIG)")
	cmd.Flags().BoolVar(&trace, "trace", false, "print OpenTelemetry spans for each write to stderr")
	return cmd
}
