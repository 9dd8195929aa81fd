package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	// Embedded zone database for hosts without /usr/share/zoneinfo.
	_ "time/tzdata"
)

var (
	cfgPath  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "kairos",
	Short:         "kairos - time frame scheduler",
	Long:          "kairos runs a timeline of named time frames and announces when each begins, ticks and ends.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./kairos.yaml", "path to config file (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "diagnostics level for resolve, validate and duration (debug shows unresolved references)")
	rootCmd.AddCommand(runCmd, resolveCmd, validateCmd, durationCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
