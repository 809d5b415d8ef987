package mqtt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/muurk/ippower/internal/device"
	"github.com/muurk/ippower/internal/engine"
	"github.com/muurk/ippower/internal/logging"
	"github.com/muurk/ippower/internal/state"
	"go.uber.org/zap"
)

// defaultCommandTimeout bounds a set command plus its confirming poll
const defaultCommandTimeout = 10 * time.Second

// Client is the subset of paho.Client used by the bridge.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

// Engine is the engine surface the bridge reads and commands.
type Engine interface {
	Sockets() [device.NumSockets]device.SocketRecord
	Status() (engine.Status, error)
	Subscribe(fn state.Observer) (cancel func())
	SubscribeStatus(fn engine.StatusObserver) (cancel func())
	SetSocketPower(ctx context.Context, id device.SocketID, desired device.PowerState) error
	ToggleSocketPower(ctx context.Context, id device.SocketID) error
}

// Bridge publishes engine state and executes commands received over MQTT.
type Bridge struct {
	engine  Engine
	topics  Topics
	timeout time.Duration

	mu      sync.Mutex
	client  Client
	cancels []func()
}

// NewBridge creates a bridge publishing under prefix.
func NewBridge(eng Engine, prefix string) *Bridge {
	return &Bridge{
		engine:  eng,
		topics:  Topics{Prefix: strings.TrimSuffix(prefix, "/")},
		timeout: defaultCommandTimeout,
	}
}

// Topics returns the bridge's topic names.
func (b *Bridge) Topics() Topics {
	return b.topics
}

// Start subscribes to the command topics, publishes the current state and
// then follows engine changes.
func (b *Bridge) Start(client Client) error {
	b.mu.Lock()
	b.client = client
	b.mu.Unlock()

	if err := b.subscribe(); err != nil {
		return err
	}

	cancelState := b.engine.Subscribe(func(ch state.Change) {
		if ch.PowerChanged() {
			b.publish(b.topics.Power(ch.ID), PowerPayload(ch.New.Power))
		}
		if ch.NameChanged() {
			b.publish(b.topics.Name(ch.ID), ch.New.Name)
		}
	})
	cancelStatus := b.engine.SubscribeStatus(func(status engine.Status, _ error) {
		b.publish(b.topics.Status(), status.String())
	})

	b.mu.Lock()
	b.cancels = append(b.cancels, cancelState, cancelStatus)
	b.mu.Unlock()

	b.publishAll()
	return nil
}

// Resync re-subscribes and republishes everything. It is meant to run after
// a reconnect and does nothing before Start.
func (b *Bridge) Resync() {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	if client == nil {
		return
	}

	if err := b.subscribe(); err != nil {
		logging.Warn("MQTT resubscribe failed", zap.Error(err))
	}
	b.publishAll()
}

// Stop detaches from the engine, unsubscribes and marks the bridge offline.
func (b *Bridge) Stop() {
	b.mu.Lock()
	client := b.client
	cancels := b.cancels
	b.client = nil
	b.cancels = nil
	b.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if client == nil {
		return
	}

	client.Unsubscribe(b.topics.SetFilter()).WaitTimeout(defaultPublishTimeout)
	client.Publish(b.topics.Status(), 1, true, StatusOffline).WaitTimeout(defaultPublishTimeout)
}

func (b *Bridge) subscribe() error {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()

	token := client.Subscribe(b.topics.SetFilter(), 1, b.handleSet)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("mqtt: subscribe to %s timed out", b.topics.SetFilter())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: subscribe to %s: %w", b.topics.SetFilter(), err)
	}
	return nil
}

func (b *Bridge) publishAll() {
	status, _ := b.engine.Status()
	b.publish(b.topics.Status(), status.String())
	for _, rec := range b.engine.Sockets() {
		b.publish(b.topics.Power(rec.ID), PowerPayload(rec.Power))
		b.publish(b.topics.Name(rec.ID), rec.Name)
	}
}

// publish sends a retained message without blocking the caller
func (b *Bridge) publish(topic, payload string) {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	if client == nil {
		return
	}

	token := client.Publish(topic, 1, true, payload)
	go func() {
		if token.WaitTimeout(defaultPublishTimeout) && token.Error() != nil {
			logging.Warn("MQTT publish failed", zap.String("topic", topic), zap.Error(token.Error()))
		}
	}()
}

func (b *Bridge) handleSet(_ paho.Client, msg paho.Message) {
	if err := b.execute(msg.Topic(), msg.Payload()); err != nil {
		logging.Warn("MQTT command failed",
			zap.String("topic", msg.Topic()),
			zap.ByteString("payload", msg.Payload()),
			zap.Error(err),
		)
	}
}

// execute runs the command carried by one set message
func (b *Bridge) execute(topic string, payload []byte) error {
	id, err := b.topics.ParseSet(topic)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	value := strings.TrimSpace(string(payload))
	if strings.EqualFold(value, PayloadToggle) {
		return b.engine.ToggleSocketPower(ctx, id)
	}

	desired, err := device.ParsePowerState(value)
	if err != nil {
		return err
	}
	return b.engine.SetSocketPower(ctx, id, desired)
}
