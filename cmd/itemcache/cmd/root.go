package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var RootCmd = &cobra.Command{
	Use:   "itemcache",
	Short: "item cache inspection tool",
	Long: fmt.Sprintf(`itemcache (v%s)

An in-memory range-coverage item cache backed by a pebble manifest,
with inspection commands for interactive use and a serve command that
runs the background shrinker loop and exposes telemetry over HTTP.`, Version),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the version number of itemcache",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("itemcache v%s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(getCmd)
	RootCmd.AddCommand(putCmd)
	RootCmd.AddCommand(statCmd)

	key := "data-dir"
	RootCmd.PersistentFlags().String(key, "data", wrapHelp("Directory the pebble manifest stores its data in"))

	key = "log-level"
	RootCmd.PersistentFlags().String(key, "info", wrapHelp("Log level name (debug, info, warn, error); no command reads this value, so it does not change what is logged"))
}

// Execute runs RootCmd; its child commands are registered in init. Called by main.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
