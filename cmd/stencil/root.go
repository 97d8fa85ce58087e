package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/stencil/pkg/logging"
)

var (
	verbosity      int
	cfgFile        string
	sourceDir      string
	nonInteractive bool

	rootCmd = &cobra.Command{
		Use:   "stencil",
		Short: "A template-driven configuration file deployer",
		Long: `stencil renders configuration file templates and deploys the result to
one or more target paths. Re-runs are safe: a target is only overwritten
when its content still matches what stencil wrote last time, and anything
else asks first.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/stencil/config.toml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(deployCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("stencil version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}
