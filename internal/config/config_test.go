package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/muurk/ippower/internal/device"
)

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS == "linux" {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	}

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if !strings.Contains(configDir, "ippower") {
		t.Errorf("GetConfigDir() = %v, should contain 'ippower'", configDir)
	}

	if runtime.GOOS == "linux" && configDir != filepath.Join("/tmp/xdg", "ippower") {
		t.Errorf("GetConfigDir() = %v, want XDG_CONFIG_HOME/ippower", configDir)
	}
}

func TestGetConfigPath(t *testing.T) {
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}

	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Version != CurrentVersion {
		t.Errorf("Version = %d, want %d", cfg.Version, CurrentVersion)
	}
	if cfg.Device.PollInterval() != 5*time.Second {
		t.Errorf("PollInterval() = %v, want 5s", cfg.Device.PollInterval())
	}
	if cfg.Device.CallTimeout() != time.Second {
		t.Errorf("CallTimeout() = %v, want 1s", cfg.Device.CallTimeout())
	}
	if cfg.Device.Dialect != "json" {
		t.Errorf("Dialect = %q, want json", cfg.Device.Dialect)
	}
	if cfg.Server.Listen != DefaultListen {
		t.Errorf("Listen = %q, want %q", cfg.Server.Listen, DefaultListen)
	}
	if cfg.MQTT.Enabled {
		t.Error("MQTT should be disabled by default")
	}
	if !device.IsConfigIncomplete(cfg.Device.Validate()) {
		t.Error("default device section should be incomplete")
	}
}

func TestDeviceValidate(t *testing.T) {
	complete := Device{Address: "10.0.0.5", Username: "a", Password: "b", Dialect: "json"}

	tests := []struct {
		name    string
		modify   func(d *Device)
		wantErr  string
		wantKind device.Kind
	}{
		{"complete", func(d *Device) {}, "", 0},
		{"legacy dialect", func(d *Device) { d.Dialect = "legacy" }, "", 0},
		{"empty dialect", func(d *Device) { d.Dialect = "" }, "", 0},
		{"missing address", func(d *Device) { d.Address = "" }, "address", device.KindConfigIncomplete},
		{"missing credentials", func(d *Device) { d.Username, d.Password = "", "" }, "username, password", device.KindConfigIncomplete},
		{"unknown dialect", func(d *Device) { d.Dialect = "soap" }, "unknown dialect", device.KindInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := complete
			tt.modify(&d)
			err := d.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if kind, _ := device.KindOf(err); kind != tt.wantKind {
				t.Fatalf("Validate() error = %v, kind = %v, want %v", err, kind, tt.wantKind)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestClientOptions(t *testing.T) {
	d := Device{Address: "10.0.0.5", Username: "a", Password: "b", Dialect: "legacy", PollIntervalMs: 2500}

	opts, err := d.ClientOptions()
	if err != nil {
		t.Fatalf("ClientOptions() error = %v", err)
	}
	if opts.Dialect != device.DialectLegacy {
		t.Errorf("Dialect = %v, want legacy", opts.Dialect)
	}
	if opts.PollInterval != 2500*time.Millisecond {
		t.Errorf("PollInterval = %v, want 2.5s", opts.PollInterval)
	}
	if opts.CallTimeout != time.Second {
		t.Errorf("CallTimeout = %v, want 1s", opts.CallTimeout)
	}

	if _, err := (Device{}).ClientOptions(); !device.IsConfigIncomplete(err) {
		t.Errorf("ClientOptions() on empty device error = %v, want config incomplete", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Device.PollIntervalMs != DefaultPollIntervalMs {
		t.Errorf("PollIntervalMs = %d, want default", cfg.Device.PollIntervalMs)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `version: 1
device:
  address: 10.0.0.5
  username: a
  password: b
  dialect: legacy
  poll_interval_ms: 0
mqtt:
  enabled: true
  broker: tcp://broker:1883
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.Address != "10.0.0.5" || cfg.Device.Dialect != "legacy" {
		t.Errorf("Device = %+v, want file values", cfg.Device)
	}
	if cfg.Device.PollIntervalMs != 0 {
		t.Errorf("PollIntervalMs = %d, want 0 from file", cfg.Device.PollIntervalMs)
	}
	if cfg.Device.CallTimeoutMs != DefaultCallTimeoutMs {
		t.Errorf("CallTimeoutMs = %d, absent keys should keep defaults", cfg.Device.CallTimeoutMs)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.TopicPrefix != DefaultTopicPrefix {
		t.Errorf("MQTT = %+v, want enabled with default prefix", cfg.MQTT)
	}
}

func TestLoad_BadVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("version: 7\n"), 0600)

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported config version") {
		t.Errorf("Load() error = %v, want unsupported version", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("version: 1\ndevice:\n  address: 10.0.0.5\n  username: a\n"), 0600)

	t.Setenv("IPPOWER_DEVICE_ADDRESS", "10.0.0.9")
	t.Setenv("IPPOWER_DEVICE_PASSWORD", "secret")
	t.Setenv("IPPOWER_DEVICE_POLL_INTERVAL_MS", "1500")
	t.Setenv("IPPOWER_MQTT_TOPIC_PREFIX", "lab/pdu")
	t.Setenv("IPPOWER_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.Address != "10.0.0.9" {
		t.Errorf("Address = %q, want env override", cfg.Device.Address)
	}
	if cfg.Device.Username != "a" {
		t.Errorf("Username = %q, want file value", cfg.Device.Username)
	}
	if cfg.Device.Password != "secret" {
		t.Errorf("Password = %q, want env value", cfg.Device.Password)
	}
	if cfg.Device.PollIntervalMs != 1500 {
		t.Errorf("PollIntervalMs = %d, want 1500", cfg.Device.PollIntervalMs)
	}
	if cfg.MQTT.TopicPrefix != "lab/pdu" {
		t.Errorf("TopicPrefix = %q, want lab/pdu", cfg.MQTT.TopicPrefix)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	os.WriteFile(envFile, []byte("IPPOWER_TEST_DOTENV=from-file\n"), 0600)

	t.Setenv("IPPOWER_TEST_DOTENV", "")
	os.Unsetenv("IPPOWER_TEST_DOTENV")

	if err := LoadDotEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("IPPOWER_TEST_DOTENV"); got != "from-file" {
		t.Errorf("IPPOWER_TEST_DOTENV = %q, want from-file", got)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Device = Device{Address: "pdu.local", Username: "admin", Password: "pw", Dialect: "legacy", PollIntervalMs: 10000}
	cfg.MQTT.Enabled = true

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0600 {
		t.Errorf("file mode = %v, want 0600", info.Mode().Perm())
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should not remain after Save")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Device != cfg.Device {
		t.Errorf("Device = %+v, want %+v", loaded.Device, cfg.Device)
	}
	if !loaded.MQTT.Enabled {
		t.Error("MQTT.Enabled should survive a round trip")
	}
}
