// Ippower keeps a local view of an IP power strip's four outlets in sync
// with the device and switches them on request.
//
// It can run as a service exposing an HTTP API, a websocket event stream,
// Prometheus metrics and an optional MQTT bridge, or be used for one-shot
// commands from the shell.
//
// Usage:
//
//	ippower [command] [flags]
//
// See 'ippower --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/ippower/internal/logging"
	"github.com/muurk/ippower/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath   string
	deviceAddr   string
	username     string
	password     string
	dialect      string
	pollInterval int
	logLevel     string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "ippower",
	Short: "IP power strip controller",
	Long: `Control and monitor a four-outlet IP power strip.

The device is polled on a fixed interval and the last known state of every
outlet is kept locally. Commands are confirmed by polling the device again.

Settings come from the configuration file, a .env file, IPPOWER_*
environment variables and the flags below, in increasing priority.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The dashboard owns the terminal; keep logs quiet unless asked for
		return logging.Initialize(logLevel)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (default is $XDG_CONFIG_HOME/ippower/config.yaml)")
	pf.StringVar(&deviceAddr, "device", "", "Device address, host or host:port")
	pf.StringVar(&username, "user", "", "Device username")
	pf.StringVar(&password, "password", "", "Device password (prompted when omitted on a terminal)")
	pf.StringVar(&dialect, "dialect", "", "Device protocol dialect (legacy, json)")
	pf.IntVar(&pollInterval, "interval", 0, "Poll interval in milliseconds (0 keeps the configured value)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when unset")
	pf.StringVar(&outputFormat, "format", "detailed", "Output format (detailed, compact, json)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		if outputFormat == "json" {
			return printJSON(info)
		}
		fmt.Println(info)
		return nil
	},
}
