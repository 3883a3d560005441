package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/KevinKickass/OpenFieldSim/internal/config"
	"github.com/KevinKickass/OpenFieldSim/internal/control"
	"github.com/KevinKickass/OpenFieldSim/internal/devices"
	"github.com/KevinKickass/OpenFieldSim/internal/snapshot"
	"github.com/KevinKickass/OpenFieldSim/internal/storage"
	"github.com/KevinKickass/OpenFieldSim/internal/types"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"
	publishWait   = 2 * time.Second
)

var ErrBadTopic = errors.New("malformed command topic")

// Submitter accepts operator commands.
type Submitter interface {
	SubmitCommand(ctx context.Context, req devices.CommandRequest) (control.Command, error)
}

// Bridge mirrors snapshot entries to retained MQTT topics and accepts
// commands on <prefix>/<kind>/<id>/command.
type Bridge struct {
	prefix    string
	qos       byte
	timeout   time.Duration
	client    mqtt.Client
	exporter  *snapshot.Exporter
	submitter Submitter
	validator *control.Validator
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
	updates chan snapshot.Entry
	wg      sync.WaitGroup
}

func NewBridge(cfg config.MQTTConfig, exporter *snapshot.Exporter, submitter Submitter, validator *control.Validator, logger *zap.Logger) *Bridge {
	b := newBridge(cfg, nil, exporter, submitter, validator, logger)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.ConnectTimeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetWill(b.StatusTopic(), statusOffline, b.qos, true)
	opts.OnConnect = b.onConnect
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	}

	b.client = mqtt.NewClient(opts)
	return b
}

func newBridge(cfg config.MQTTConfig, client mqtt.Client, exporter *snapshot.Exporter, submitter Submitter, validator *control.Validator, logger *zap.Logger) *Bridge {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Bridge{
		prefix:    strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:       byte(cfg.QoS),
		timeout:   timeout,
		client:    client,
		exporter:  exporter,
		submitter: submitter,
		validator: validator,
		logger:    logger,
	}
}

func (b *Bridge) StatusTopic() string { return b.prefix + "/status" }

func (b *Bridge) StateTopic(key types.DeviceKey) string {
	return fmt.Sprintf("%s/%s/%d/state", b.prefix, key.Kind, key.ID)
}

func (b *Bridge) CommandTopic(key types.DeviceKey) string {
	return fmt.Sprintf("%s/%s/%d/command", b.prefix, key.Kind, key.ID)
}

func (b *Bridge) commandFilter() string { return b.prefix + "/+/+/command" }

// Start connects to the broker and begins mirroring snapshots.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil
	}

	token := b.client.Connect()
	if !token.WaitTimeout(b.timeout) {
		return fmt.Errorf("mqtt connect timed out after %s", b.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	b.updates = b.exporter.Subscribe()
	b.running = true

	// retained state for late subscribers
	for _, e := range b.exporter.List() {
		b.publishEntry(e)
	}

	b.wg.Add(1)
	go b.forward(b.updates)

	b.logger.Info("MQTT bridge started", zap.String("prefix", b.prefix))
	return nil
}

// onConnect runs on every (re)connect, so the subscription survives broker
// restarts.
func (b *Bridge) onConnect(client mqtt.Client) {
	client.Publish(b.StatusTopic(), b.qos, true, statusOnline)

	token := client.Subscribe(b.commandFilter(), b.qos, func(_ mqtt.Client, msg mqtt.Message) {
		b.HandleMessage(msg)
	})
	if token.WaitTimeout(b.timeout) && token.Error() != nil {
		b.logger.Error("MQTT subscribe failed", zap.String("topic", b.commandFilter()), zap.Error(token.Error()))
	}
}

func (b *Bridge) forward(updates <-chan snapshot.Entry) {
	defer b.wg.Done()
	for e := range updates {
		b.publishEntry(e)
	}
}

func (b *Bridge) publishEntry(e snapshot.Entry) {
	payload, err := json.Marshal(e)
	if err != nil {
		b.logger.Error("Failed to encode snapshot", zap.String("device", e.Key.String()), zap.Error(err))
		return
	}

	token := b.client.Publish(b.StateTopic(e.Key), b.qos, true, payload)
	if token.WaitTimeout(publishWait) && token.Error() != nil {
		b.logger.Warn("MQTT publish failed", zap.String("device", e.Key.String()), zap.Error(token.Error()))
	}
}

// HandleMessage processes one command message. Errors are logged and
// returned for tests.
func (b *Bridge) HandleMessage(msg mqtt.Message) error {
	err := b.handleCommand(msg.Topic(), msg.Payload())
	if err != nil {
		b.logger.Warn("MQTT command rejected", zap.String("topic", msg.Topic()), zap.Error(err))
	}
	return err
}

func (b *Bridge) handleCommand(topic string, payload []byte) error {
	key, err := b.parseCommandTopic(topic)
	if err != nil {
		return err
	}

	action, value, err := b.validator.DecodeCommand(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	cmd, err := b.submitter.SubmitCommand(ctx, devices.CommandRequest{
		Device: key,
		Action: action,
		Value:  value,
		Source: storage.SourceMQTT,
	})
	if err != nil {
		return err
	}

	b.logger.Info("MQTT command accepted",
		zap.String("device", key.String()),
		zap.String("action", string(action)),
		zap.String("command_id", cmd.ID.String()))
	return nil
}

func (b *Bridge) parseCommandTopic(topic string) (types.DeviceKey, error) {
	rest, ok := strings.CutPrefix(topic, b.prefix+"/")
	if !ok {
		return types.DeviceKey{}, fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] != "command" {
		return types.DeviceKey{}, fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}

	kind, err := types.ParseDeviceKind(parts[0])
	if err != nil {
		return types.DeviceKey{}, fmt.Errorf("%w: %v", ErrBadTopic, err)
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil || id <= 0 {
		return types.DeviceKey{}, fmt.Errorf("%w: invalid id %q", ErrBadTopic, parts[1])
	}

	return types.DeviceKey{Kind: kind, ID: id}, nil
}

// Stop publishes the offline status and disconnects.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	updates := b.updates
	b.mu.Unlock()

	b.exporter.Unsubscribe(updates)
	b.wg.Wait()

	b.client.Publish(b.StatusTopic(), b.qos, true, statusOffline).WaitTimeout(publishWait)
	b.client.Disconnect(250)
	b.logger.Info("MQTT bridge stopped")
}
