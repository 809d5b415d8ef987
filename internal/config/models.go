package config

import (
	"strings"
	"time"

	"github.com/muurk/ippower/internal/device"
)

const (
	// CurrentVersion is the config file schema version
	CurrentVersion = 1

	// DefaultPollIntervalMs matches the device's web UI refresh period
	DefaultPollIntervalMs = 5000

	// DefaultCallTimeoutMs bounds set commands and JSON queries
	DefaultCallTimeoutMs = 1000

	DefaultListen      = ":8080"
	DefaultTopicPrefix = "ippower"
	DefaultClientID    = "ippower"
)

// Config represents the entire configuration file.
type Config struct {
	Version  int    `yaml:"version" ignored:"true"`
	Device   Device `yaml:"device"`
	Server   Server `yaml:"server"`
	MQTT     MQTT   `yaml:"mqtt"`
	LogLevel string `yaml:"log_level,omitempty" split_words:"true"`
}

// Device describes the power strip. It is the engine's session config:
// replacing it restarts the engine with an empty cache.
type Device struct {
	Address        string `yaml:"address"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password,omitempty"`                  // Prefer IPPOWER_DEVICE_PASSWORD over storing it here
	Dialect        string `yaml:"dialect"`                             // "legacy" or "json"
	PollIntervalMs int    `yaml:"poll_interval_ms" split_words:"true"` // 0 disables polling
	CallTimeoutMs  int    `yaml:"call_timeout_ms" split_words:"true"`
}

// Server configures the HTTP API.
type Server struct {
	Listen  string `yaml:"listen"`
	Metrics bool   `yaml:"metrics"` // Expose /metrics
}

// MQTT configures the optional broker bridge.
type MQTT struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // e.g. tcp://localhost:1883
	ClientID    string `yaml:"client_id" split_words:"true"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix" split_words:"true"`
}

// Default returns a configuration with every default filled in and no device.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Device: Device{
			Dialect:        device.DialectJSON.String(),
			PollIntervalMs: DefaultPollIntervalMs,
			CallTimeoutMs:  DefaultCallTimeoutMs,
		},
		Server: Server{
			Listen:  DefaultListen,
			Metrics: true,
		},
		MQTT: MQTT{
			ClientID:    DefaultClientID,
			TopicPrefix: DefaultTopicPrefix,
		},
	}
}

// PollInterval returns the poll period. Zero or less means polling is disabled.
func (d Device) PollInterval() time.Duration {
	return time.Duration(d.PollIntervalMs) * time.Millisecond
}

// CallTimeout returns the timeout for non-poll calls, defaulting to 1s.
func (d Device) CallTimeout() time.Duration {
	if d.CallTimeoutMs <= 0 {
		return DefaultCallTimeoutMs * time.Millisecond
	}
	return time.Duration(d.CallTimeoutMs) * time.Millisecond
}

// Validate checks that the device can be contacted. It never touches the network.
func (d Device) Validate() error {
	var missing []string
	if d.Address == "" {
		missing = append(missing, "address")
	}
	if d.Username == "" {
		missing = append(missing, "username")
	}
	if d.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return device.NewConfigIncompleteError("missing device " + strings.Join(missing, ", "))
	}
	if _, err := device.ParseDialect(d.Dialect); err != nil {
		return err
	}
	return nil
}

// ClientOptions converts the section into device client options.
func (d Device) ClientOptions() (device.Options, error) {
	if err := d.Validate(); err != nil {
		return device.Options{}, err
	}
	dialect, _ := device.ParseDialect(d.Dialect)
	return device.Options{
		Address:      d.Address,
		Username:     d.Username,
		Password:     d.Password,
		Dialect:      dialect,
		PollInterval: d.PollInterval(),
		CallTimeout:  d.CallTimeout(),
	}, nil
}
