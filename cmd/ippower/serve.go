package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/ippower/internal/engine"
	"github.com/muurk/ippower/internal/logging"
	"github.com/muurk/ippower/internal/metrics"
	"github.com/muurk/ippower/internal/mqtt"
	"github.com/muurk/ippower/internal/server"
)

var (
	listenAddr string
	mqttBroker string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with the HTTP API",
	Long: `Poll the power strip continuously and serve its state.

The HTTP API, websocket event stream and Prometheus metrics share one
listener. When MQTT is enabled, socket state is also published to the broker
and set commands are accepted there.

SIGHUP reloads the configuration; a changed device section restarts the
engine with an empty state.`,
	Example: `  # Serve with the config file
  ippower serve

  # Override the listen address and log to the console
  ippower serve --listen :9090 --log-level info

  # Bridge to a local broker
  ippower serve --mqtt tcp://localhost:1883`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address (default from config, :8080)")
	serveCmd.Flags().StringVar(&mqttBroker, "mqtt", "", "MQTT broker URL; enables the MQTT bridge")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.Listen = listenAddr
	}
	if mqttBroker != "" {
		cfg.MQTT.Enabled = true
		cfg.MQTT.Broker = mqttBroker
	}
	if err := promptPassword(cfg); err != nil {
		return err
	}
	if err := cfg.Device.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.NewPrometheusCollector(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	eng := engine.New(cfg.Device, engine.WithCollector(collector))
	if err := eng.Start(ctx); err != nil {
		return err
	}
	defer eng.Shutdown()

	if cfg.MQTT.Enabled {
		bridge := mqtt.NewBridge(eng, cfg.MQTT.TopicPrefix)
		client, err := mqtt.Connect(cfg.MQTT, bridge.Resync)
		if err != nil {
			return err
		}
		if err := bridge.Start(client); err != nil {
			mqtt.Disconnect(client)
			return err
		}
		defer func() {
			bridge.Stop()
			mqtt.Disconnect(client)
		}()
	}

	go reloadOnHangup(ctx, cmd, eng)

	srv := server.New(server.Config{
		Listen:   cfg.Server.Listen,
		Metrics:  cfg.Server.Metrics,
		Gatherer: reg,
	}, eng)

	logging.Info("ippower serving",
		zap.String("device", cfg.Device.Address),
		zap.String("listen", cfg.Server.Listen),
		zap.Bool("mqtt", cfg.MQTT.Enabled),
	)
	return srv.Serve(ctx)
}
