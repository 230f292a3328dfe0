package nats

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/smazurov/camlink/internal/camera"
	"github.com/smazurov/camlink/internal/events"
	"github.com/smazurov/camlink/internal/session"
)

const controlTimeout = 5 * time.Second

// Bridge connects the camera fleet to NATS: connection state and lag
// events go out as status messages, control commands come back in and
// are dispatched to the matching session. The bridge degrades
// gracefully, publishing becomes a no-op while NATS is unreachable.
type Bridge struct {
	url     string
	reactor *session.Reactor
	bus     *events.Bus
	logger  *slog.Logger

	mu        sync.Mutex
	conn      *nats.Conn
	subs      []*nats.Subscription
	unsubs    []func()
	connected bool
}

// NewBridge creates a bridge between the reactor and a NATS server.
func NewBridge(url string, reactor *session.Reactor, bus *events.Bus, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		url:     url,
		reactor: reactor,
		bus:     bus,
		logger:  logger.With("component", "nats-bridge"),
	}
}

// Start connects to NATS, wires the event bus to status subjects and
// subscribes to control subjects. A connection failure is returned so
// the caller can decide to run without NATS.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := nats.Connect(b.url,
		nats.Name("camlink-bridge"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			b.mu.Lock()
			b.connected = false
			b.mu.Unlock()
			if err != nil {
				b.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			b.mu.Lock()
			b.connected = true
			b.mu.Unlock()
			b.logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		b.logger.Warn("Failed to connect to NATS, running in offline mode", "error", err)
		return err
	}
	b.conn = conn
	b.connected = true
	b.logger.Info("NATS bridge connected", "url", b.url)

	sub, err := conn.Subscribe(SubjectControlPrefix+".*", b.handleControl)
	if err != nil {
		conn.Close()
		b.conn = nil
		b.connected = false
		return err
	}
	b.subs = append(b.subs, sub)

	b.unsubs = append(b.unsubs,
		b.bus.Subscribe(func(ev events.ConnectionStateEvent) {
			b.publish(SubjectCameraStatus(ev.Camera), StatusMessage{
				Camera:     ev.Camera,
				State:      ev.State,
				Reason:     ev.Reason,
				Generation: ev.Generation,
				Timestamp:  ev.Timestamp.Format(time.RFC3339),
			})
		}),
		b.bus.Subscribe(func(ev events.SessionClosedEvent) {
			b.publish(SubjectCameraStatus(ev.Camera), StatusMessage{
				Camera:    ev.Camera,
				State:     "closed",
				Timestamp: ev.Timestamp.Format(time.RFC3339),
			})
		}),
		b.bus.Subscribe(func(ev events.SubscriberLagEvent) {
			b.publish(SubjectCameraLag(ev.Camera), LagMessage{
				Camera:    ev.Camera,
				Track:     ev.Track,
				Missed:    ev.Missed,
				Timestamp: ev.Timestamp.Format(time.RFC3339),
			})
		}),
	)
	return nil
}

type marshaler interface {
	Marshal() ([]byte, error)
}

// publish sends one message, silently dropping it while offline.
func (b *Bridge) publish(subject string, msg marshaler) {
	b.mu.Lock()
	conn := b.conn
	connected := b.connected
	b.mu.Unlock()
	if conn == nil || !connected {
		return
	}

	data, err := msg.Marshal()
	if err != nil {
		b.logger.Warn("Failed to marshal message", "subject", subject, "error", err)
		return
	}
	if err := conn.Publish(subject, data); err != nil {
		b.logger.Warn("Failed to publish message", "subject", subject, "error", err)
	}
}

// handleControl dispatches one control command to its camera session.
func (b *Bridge) handleControl(msg *nats.Msg) {
	name := strings.TrimPrefix(msg.Subject, SubjectControlPrefix+".")
	ctrl, err := UnmarshalControl(msg.Data)
	if err != nil {
		b.logger.Warn("Failed to unmarshal control message", "subject", msg.Subject, "error", err)
		return
	}
	b.logger.Info("Received control command", "camera", name, "action", ctrl.Action, "value", ctrl.Value)

	handle, err := b.reactor.Get(name)
	if err != nil {
		b.logger.Warn("Control command for unknown camera", "camera", name)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()

	switch ctrl.Action {
	case "led":
		err = handle.SetStatusLED(ctx, ctrl.Value == "on")
	case "ir":
		var mode camera.IRMode
		if mode, err = camera.ParseIRMode(ctrl.Value); err == nil {
			err = handle.SetIRLights(ctx, mode)
		}
	case "reboot":
		err = handle.Reboot(ctx)
	default:
		b.logger.Warn("Unknown control action", "camera", name, "action", ctrl.Action)
		return
	}
	if err != nil {
		b.logger.Warn("Control command failed", "camera", name, "action", ctrl.Action, "error", err)
	}
}

// IsConnected reports whether the bridge currently has a NATS connection.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.connected
}

// Stop removes the bus subscriptions and closes the NATS connection.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, unsub := range b.unsubs {
		unsub()
	}
	b.unsubs = nil
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	b.connected = false
	b.logger.Debug("NATS bridge stopped")
}
