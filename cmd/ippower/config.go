package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/muurk/ippower/internal/config"
	"github.com/muurk/ippower/internal/logging"
)

// loadConfig reads .env, the config file and the environment, then applies
// the persistent flags that were set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg)

	if logLevel == "" && cfg.LogLevel != "" {
		if err := logging.Initialize(cfg.LogLevel); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// applyFlags overrides cfg with every persistent flag the user set
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("device") {
		cfg.Device.Address = deviceAddr
	}
	if flags.Changed("user") {
		cfg.Device.Username = username
	}
	if flags.Changed("password") {
		cfg.Device.Password = password
	}
	if flags.Changed("dialect") {
		cfg.Device.Dialect = dialect
	}
	if flags.Changed("interval") {
		cfg.Device.PollIntervalMs = pollInterval
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
}

// promptPassword asks for the device password when one is needed and stdin
// is a terminal.
func promptPassword(cfg *config.Config) error {
	if cfg.Device.Password != "" || cfg.Device.Username == "" {
		return nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}

	fmt.Fprintf(os.Stderr, "Password for %s@%s: ", cfg.Device.Username, cfg.Device.Address)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	cfg.Device.Password = strings.TrimSpace(string(pw))
	return nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var forceInit bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file",
	Long: `Write a configuration file with defaults and the values given by the
persistent flags. The password is only stored when --password is given;
prefer IPPOWER_DEVICE_PASSWORD in the environment or a .env file.`,
	Example: `  # Create the default config file for a JSON firmware device
  ippower config init --device 192.168.1.50 --user admin

  # Legacy firmware, polled every 2 seconds
  ippower config init --device 192.168.1.50 --user admin --dialect legacy --interval 2000`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after the file, .env, environment and flags
have been merged. Passwords are masked.`,
	RunE: runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		p, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}

	cfg := config.Default()
	applyFlags(cmd, cfg)

	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)

	if err := cfg.Device.Validate(); err != nil {
		fmt.Printf("Note: %v\n", err)
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	masked := *cfg
	masked.Device.Password = mask(masked.Device.Password)
	masked.MQTT.Password = mask(masked.MQTT.Password)

	if outputFormat == "json" {
		return printJSON(masked)
	}

	data, err := yaml.Marshal(masked)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Print(string(data))
	return nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
