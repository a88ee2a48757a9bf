// Package mqtt announces alarm state over an MQTT broker and accepts
// snooze/dismiss commands back. The announcer is strictly optional: a broker
// outage never affects the alarm itself.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	domain "rouse/internal/domain/alarm"
	"rouse/internal/logger"
)

const (
	// statusQoS delivers status messages at least once.
	statusQoS = 1
	// connectTimeout bounds each broker connection attempt.
	connectTimeout = 10 * time.Second
	// disconnectGraceMS is the paho disconnect quiesce in milliseconds.
	disconnectGraceMS = 250
)

// errNoBroker is returned when the announcer is built without a broker URL.
var errNoBroker = errors.New("no MQTT broker configured")

// Commander is the engine surface driven by remote commands.
type Commander interface {
	Snooze(ctx context.Context) error
	Dismiss(ctx context.Context) error
	Subscribe() <-chan *domain.Status
}

// Config holds the announcer's broker settings.
type Config struct {
	// Broker is the broker URL, e.g. "tcp://broker:1883".
	Broker string
	// Username authenticates against the broker.
	Username string
	// Password authenticates against the broker.
	Password string
	// DeviceID scopes the topics to this device.
	DeviceID string
}

// StatusMessage is the JSON payload published on every state change.
type StatusMessage struct {
	// DeviceID identifies the announcing device.
	DeviceID string `json:"device_id"`
	// State is the current alarm state.
	State domain.EngineState `json:"state"`
	// ActiveScheduleID is the firing schedule, zero when none.
	ActiveScheduleID uint64 `json:"active_schedule_id,omitempty"`
	// Present reports whether someone is near the sensor.
	Present bool `json:"present"`
	// Revision is the local revision counter.
	Revision uint64 `json:"revision"`
	// At is the publish timestamp.
	At time.Time `json:"at"`
}

// StatusTopic returns the retained status topic for a device.
func StatusTopic(deviceID string) string {
	return fmt.Sprintf("rouse/%s/status", deviceID)
}

// CommandTopic returns the command topic for a device.
func CommandTopic(deviceID string) string {
	return fmt.Sprintf("rouse/%s/command", deviceID)
}

// EncodeStatus builds the retained status payload for a snapshot.
func EncodeStatus(deviceID string, status *domain.Status, at time.Time) ([]byte, error) {
	message := StatusMessage{
		DeviceID:         deviceID,
		State:            status.State,
		ActiveScheduleID: status.ActiveScheduleID,
		Present:          status.Present,
		Revision:         status.Revision,
		At:               at,
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("encode status message: %w", err)
	}

	return payload, nil
}

// Announcer mirrors engine snapshots to the broker and relays commands back.
type Announcer struct {
	// cfg is the broker configuration.
	cfg Config
	// client is the paho connection.
	client paho.Client
	// engine receives relayed commands.
	engine Commander
}

// NewAnnouncer builds the broker connection and starts connecting in the
// background. A broker that is down at boot is ridden out exactly like a
// later outage: paho keeps retrying, and the command subscription is renewed
// on every (re)connect.
func NewAnnouncer(ctx context.Context, cfg Config, engine Commander) (*Announcer, error) {
	if cfg.Broker == "" {
		return nil, errNoBroker
	}

	ctx = logger.WithName(ctx, "mqtt")

	a := &Announcer{
		cfg:    cfg,
		engine: engine,
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("rouse-" + cfg.DeviceID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(func(paho.Client) {
			logger.InfoKV(ctx, "Connected to MQTT broker", "broker", cfg.Broker)
			a.subscribeCommands(ctx)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.WarnKV(ctx, "MQTT connection lost", "error", err)
		})

	a.client = paho.NewClient(opts)

	// With connect-retry on, the token resolves only on the first success;
	// nobody waits on it.
	a.client.Connect()

	return a, nil
}

// Run publishes a retained status message per engine snapshot until the
// context is canceled.
func (a *Announcer) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "mqtt")

	snapshots := a.engine.Subscribe()

	for {
		select {
		case <-ctx.Done():
			a.client.Disconnect(disconnectGraceMS)

			return ctx.Err()
		case snapshot := <-snapshots:
			a.announce(ctx, snapshot)
		}
	}
}

// announce publishes one retained status message. Publish errors are logged
// and dropped; the next snapshot supersedes the lost one anyway.
func (a *Announcer) announce(ctx context.Context, status *domain.Status) {
	payload, err := EncodeStatus(a.cfg.DeviceID, status, time.Now().UTC())
	if err != nil {
		logger.ErrorKV(ctx, "Failed to encode status message", "error", err)

		return
	}

	token := a.client.Publish(StatusTopic(a.cfg.DeviceID), statusQoS, true, payload)

	go func() {
		token.Wait()

		if err := token.Error(); err != nil {
			logger.WarnKV(ctx, "Failed to publish status", "error", err)
		}
	}()
}

// subscribeCommands relays "snooze" and "dismiss" payloads to the engine.
// Called from the connect handler, so failures are logged and retried on
// the next connect rather than returned.
func (a *Announcer) subscribeCommands(ctx context.Context) {
	topic := CommandTopic(a.cfg.DeviceID)

	token := a.client.Subscribe(topic, statusQoS, func(_ paho.Client, message paho.Message) {
		a.handleCommand(ctx, string(message.Payload()))
	})

	go func() {
		token.Wait()

		if err := token.Error(); err != nil {
			logger.WarnKV(ctx, "Failed to subscribe to command topic", "topic", topic, "error", err)

			return
		}

		logger.InfoKV(ctx, "Subscribed to command topic", "topic", topic)
	}()
}

// handleCommand dispatches one remote command payload.
func (a *Announcer) handleCommand(ctx context.Context, command string) {
	var err error

	switch command {
	case "snooze":
		err = a.engine.Snooze(ctx)
	case "dismiss":
		err = a.engine.Dismiss(ctx)
	default:
		logger.WarnKV(ctx, "Ignoring unknown MQTT command", "command", command)

		return
	}

	if err != nil {
		logger.WarnKV(ctx, "MQTT command rejected", "command", command, "error", err)

		return
	}

	logger.InfoKV(ctx, "Applied MQTT command", "command", command)
}
