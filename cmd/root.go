// Package cmd wires wakegate's cobra command tree, following the
// teacher's root/serve command construction and logging setup.
package cmd

import (
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
	jsonLogs   bool
	eventsAddr string
)

// Version is set at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "wakegate",
	Short: "A protocol-aware proxy that wakes Minecraft backends on demand",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
	},
}

func initLogging() {
	if jsonLogs {
		log.SetHandler(json.Default)
	} else {
		log.SetHandler(cli.Default)
	}
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/wakegate/config.yml", "path to the proxy configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "emit structured JSON logs instead of colorized cli output")
	rootCmd.PersistentFlags().StringVar(&eventsAddr, "events-addr", "", "address to serve the live websocket event feed on, e.g. :9100 (disabled if empty)")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newVersionCommand())
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
