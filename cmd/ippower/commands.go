package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/ippower/internal/config"
	"github.com/muurk/ippower/internal/device"
	"github.com/muurk/ippower/internal/discovery"
	"github.com/muurk/ippower/internal/engine"
	"github.com/muurk/ippower/internal/ui"
)

// commandTimeout bounds one-shot commands including the confirming poll
const commandTimeout = 15 * time.Second

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(namesCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(discoverCmd)
}

// startEngine loads the configuration and starts an engine with one poll.
// With polling false the timer stays disabled, which is what one-shot
// commands want.
func startEngine(cmd *cobra.Command, polling bool) (*engine.Engine, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := promptPassword(cfg); err != nil {
		return nil, nil, err
	}
	if !polling {
		cfg.Device.PollIntervalMs = 0
	}

	eng := engine.New(cfg.Device)
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		return nil, nil, err
	}
	return eng, cfg, nil
}

func sockets(eng *engine.Engine) []device.SocketRecord {
	all := eng.Sockets()
	return all[:]
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of every socket",
	Example: `  ippower status --device 192.168.1.50 --user admin
  ippower status --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cfg, err := startEngine(cmd, false)
		if err != nil {
			return err
		}
		defer eng.Shutdown()

		status, statusErr := eng.Status()
		if err := printSockets(cfg.Device.Address, status, statusErr, sockets(eng)); err != nil {
			return err
		}
		if statusErr != nil && outputFormat == "detailed" {
			ui.NewPrinter(nil).PrintError("Device "+status.String(), statusErr)
		}
		return statusErr
	},
}

var setCmd = &cobra.Command{
	Use:   "set <socket> <on|off>",
	Short: "Switch a socket on or off",
	Long: `Switch a socket on or off and wait until a poll of the device confirms
the new state.`,
	Example: `  ippower set 2 on
  ippower set 4 off --format compact`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := device.ParseSocketID(args[0])
		if err != nil {
			return err
		}
		desired, err := device.ParsePowerState(args[1])
		if err != nil {
			return err
		}

		eng, _, err := startEngine(cmd, false)
		if err != nil {
			return err
		}
		defer eng.Shutdown()

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()
		err = eng.SetSocketPower(ctx, id, desired)

		rec, _ := eng.Socket(id)
		return printResult(fmt.Sprintf("Socket %d %s", int(id), desired), rec, err)
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <socket>",
	Short: "Toggle a socket",
	Long: `Switch a socket to the opposite of its current state. The state is read
from the device first, so a socket that cannot be read cannot be toggled.`,
	Example: `  ippower toggle 3`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := device.ParseSocketID(args[0])
		if err != nil {
			return err
		}

		eng, _, err := startEngine(cmd, false)
		if err != nil {
			return err
		}
		defer eng.Shutdown()

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()
		err = eng.ToggleSocketPower(ctx, id)

		rec, _ := eng.Socket(id)
		return printResult(fmt.Sprintf("Socket %d toggled", int(id)), rec, err)
	},
}

var namesCmd = &cobra.Command{
	Use:   "names",
	Short: "Print the socket names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, err := startEngine(cmd, false)
		if err != nil {
			return err
		}
		defer eng.Shutdown()

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()
		if err := eng.RefreshSocketNames(ctx); err != nil {
			return err
		}

		if outputFormat == "json" {
			names := make(map[string]string, device.NumSockets)
			for _, rec := range sockets(eng) {
				names[fmt.Sprintf("%d", int(rec.ID))] = rec.Name
			}
			return printJSON(names)
		}
		for _, rec := range sockets(eng) {
			fmt.Printf("%d\t%s\n", int(rec.ID), rec.Name)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard of the sockets",
	Long: `Show a live view of every socket, refreshed on each poll.

Keys: 1-4 toggle a socket, arrows and enter toggle the selected socket,
r polls immediately, q quits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cfg, err := startEngine(cmd, true)
		if err != nil {
			return err
		}
		defer eng.Shutdown()

		return ui.RunDashboard(eng, cfg.Device.Address)
	},
}

var (
	scanTimeout int
	scanAll     bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find power strips on the local network",
	Long: `Browse mDNS for HTTP services that look like power strips.

Many devices do not advertise themselves; use --all to list every HTTP
service on the network, or configure the device by address.`,
	Example: `  ippower discover
  ippower discover --timeout 3 --all`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scanner := discovery.NewScanner()
		scanner.Timeout = time.Duration(scanTimeout) * time.Second
		if scanAll {
			scanner.Pattern = nil
		}

		if outputFormat != "json" {
			fmt.Printf("Scanning for power strips (timeout: %ds)...\n\n", scanTimeout)
		}

		devices, err := scanner.Scan(cmd.Context())
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		if outputFormat == "json" {
			return printJSON(devices)
		}

		if len(devices) == 0 {
			fmt.Println("No devices found.")
			fmt.Println("\nTroubleshooting:")
			fmt.Println("  - Ensure the power strip is on the same network segment")
			fmt.Println("  - Try --all, the device may use an unrecognized name")
			fmt.Println("  - Try increasing --timeout for slower networks")
			fmt.Println("  - Use --device to give the address directly")
			return nil
		}

		fmt.Printf("Found %d device(s):\n\n", len(devices))
		for i, d := range devices {
			fmt.Printf("%d. %s\n", i+1, d.Instance)
			fmt.Printf("   Host:    %s\n", d.Hostname)
			fmt.Printf("   Address: %s\n", d.Address())
			if len(d.Metadata) > 0 {
				fmt.Printf("   Metadata: %v\n", d.Metadata)
			}
			fmt.Println()
		}
		fmt.Println("Use 'ippower config init --device <address> --user <name>' to save one")
		return nil
	},
}

func init() {
	discoverCmd.Flags().IntVar(&scanTimeout, "timeout", 10, "Scan timeout in seconds")
	discoverCmd.Flags().BoolVar(&scanAll, "all", false, "List every HTTP service, not only known power strips")
}
