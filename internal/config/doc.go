// Package config loads the ippower configuration.
//
// Configuration comes from three layers, later ones winning:
//   - built-in defaults (Default)
//   - a YAML file, by default in the platform config directory
//   - IPPOWER_* environment variables, optionally seeded from a .env file
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/ippower/config.yaml or $HOME/.config/ippower/config.yaml
//   - macOS: $HOME/.config/ippower/config.yaml
//   - Windows: %LOCALAPPDATA%\ippower\config.yaml
//
// # Environment
//
// Nested keys are joined with underscores:
//
//	IPPOWER_DEVICE_ADDRESS=10.0.0.5
//	IPPOWER_DEVICE_USERNAME=admin
//	IPPOWER_DEVICE_PASSWORD=secret
//	IPPOWER_DEVICE_DIALECT=legacy
//	IPPOWER_DEVICE_POLL_INTERVAL_MS=5000
//	IPPOWER_SERVER_LISTEN=:8080
//	IPPOWER_MQTT_ENABLED=true
//	IPPOWER_MQTT_BROKER=tcp://broker:1883
//	IPPOWER_LOG_LEVEL=debug
//
// # Usage Example
//
//	if err := config.LoadDotEnv(); err != nil {
//	    log.Fatal(err)
//	}
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Device.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// Save is protected by a mutex and writes atomically through a temporary file.
package config
