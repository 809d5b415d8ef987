// Package mqtt bridges the engine to an MQTT broker.
//
// Socket state and device status are published as retained messages and
// commands arrive on per-socket set topics:
//
//	{prefix}/status               connecting | ok | unreachable | error | bad_config | offline
//	{prefix}/socket/{n}/power     ON | OFF | UNKNOWN
//	{prefix}/socket/{n}/name      display name
//	{prefix}/socket/{n}/set       ON | OFF | TOGGLE (subscribed)
package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/muurk/ippower/internal/config"
	"github.com/muurk/ippower/internal/logging"
	"go.uber.org/zap"
)

const (
	// defaultConnectTimeout is the maximum time to wait for the initial connection
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds waiting for a publish acknowledgment
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time in milliseconds to wait for pending work on disconnect
	defaultDisconnectQuiesce = 250

	defaultKeepAlive = 60 * time.Second
)

// Connect dials the broker described by cfg. The broker's last will marks
// the bridge offline if the process dies. onConnect runs after the initial
// connection and after every reconnect.
func Connect(cfg config.MQTT, onConnect func()) (paho.Client, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: no broker configured")
	}

	opts := paho.NewClientOptions().AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetOrderMatters(false)
	opts.SetWill(Topics{Prefix: cfg.TopicPrefix}.Status(), StatusOffline, 1, true)

	opts.SetOnConnectHandler(func(_ paho.Client) {
		logging.Info("MQTT connected", zap.String("broker", cfg.Broker))
		if onConnect != nil {
			onConnect()
		}
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logging.Warn("MQTT connection lost", zap.String("broker", cfg.Broker), zap.Error(err))
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out after %v", cfg.Broker, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", cfg.Broker, err)
	}

	return client, nil
}

// Disconnect closes the broker connection, giving in-flight publishes a
// moment to finish.
func Disconnect(client paho.Client) {
	client.Disconnect(defaultDisconnectQuiesce)
	logging.Info("MQTT disconnected")
}
