package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/smazurov/camlink/internal/camera"
	"github.com/smazurov/camlink/internal/config"
	"github.com/smazurov/camlink/internal/events"
	"github.com/smazurov/camlink/internal/metrics"
	"github.com/smazurov/camlink/internal/watch"
)

// lifecycle owns the physical connection. It dials, publishes the live
// connection reference, watches for failure or configuration changes,
// and redials with capped exponential backoff. At most one connection is
// live at any time; the reference is always retracted before a new dial
// begins.
type lifecycle struct {
	name     string
	dial     camera.Dialer
	configRx *watch.Receiver[config.Camera]
	cameraTx *watch.Value[camera.Ref]
	bus      *events.Bus
	logger   *slog.Logger

	generation uint64
}

// run drives the connection until ctx is cancelled. The first outcome of
// the initial phase is reported on ready exactly once: nil after the
// first successful connection, or ErrConnect when a positive attempt
// budget is exhausted.
func (w *lifecycle) run(ctx context.Context, ready chan<- error) {
	// live is whichever connection is currently published. The deferred
	// teardown covers every exit path, including the config channel closing
	// at cancellation before ctx.Done is observed.
	var live camera.Conn
	defer func() {
		w.cameraTx.Set(camera.Ref{})
		if live != nil {
			live.Close()
		}
	}()

	cfg := w.configRx.Load()
	cfgCh := w.configRx.Changes(ctx)
	bo := newBackoff(cfg.Connection.RetryMinDuration(), cfg.Connection.RetryMaxDuration())

	attempts := 0
	reported := false
	report := func(err error) {
		if !reported {
			reported = true
			ready <- err
		}
	}

	for ctx.Err() == nil {
		w.setState(events.StateConnecting, "", 0)
		metrics.ConnectAttempts.WithLabelValues(w.name).Inc()
		conn, err := w.dial(ctx, cfg)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempts++
			w.logger.Warn("Connection attempt failed", "error", err, "attempt", attempts)
			w.setState(events.StateDisconnected, err.Error(), 0)
			if budget := cfg.Connection.MaxInitialAttempts; !reported && budget > 0 && attempts >= budget {
				report(fmt.Errorf("%w after %d attempts: %v", ErrConnect, attempts, err))
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(bo.Next()):
			case next, ok := <-cfgCh:
				if ok {
					cfg = next
					bo.Reset()
					w.logger.Info("Configuration changed during retry")
				}
			}
			continue
		}

		w.generation++
		if w.generation > 1 {
			metrics.Reconnects.WithLabelValues(w.name).Inc()
		}
		bo.Reset()
		attempts = 0
		live = conn
		w.cameraTx.Set(camera.Ref{Conn: conn, Generation: w.generation})
		report(nil)
		w.setState(events.StateConnected, "", w.generation)
		w.logger.Info("Camera connected", "generation", w.generation)

		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			// Retract before redialing so nobody observes two live
			// connections.
			w.cameraTx.Set(camera.Ref{})
			cause := conn.Err()
			conn.Close()
			live = nil
			reason := "connection lost"
			if cause != nil {
				reason = cause.Error()
			}
			w.setState(events.StateDisconnected, reason, 0)
			w.logger.Warn("Camera connection lost", "error", cause)
			select {
			case <-ctx.Done():
				return
			case <-time.After(bo.Next()):
			case next, ok := <-cfgCh:
				if ok {
					cfg = next
					bo.Reset()
				}
			}
		case next, ok := <-cfgCh:
			if !ok {
				// The channel closes only at cancellation.
				return
			}
			w.cameraTx.Set(camera.Ref{})
			conn.Close()
			live = nil
			cfg = next
			bo.Reset()
			w.setState(events.StateDisconnected, "configuration changed", 0)
			w.logger.Info("Configuration changed, reconnecting")
		}
	}
}

func (w *lifecycle) setState(state, reason string, generation uint64) {
	metrics.ConnectionState.WithLabelValues(w.name).Set(stateGauge(state))
	if w.bus == nil {
		return
	}
	w.bus.Publish(events.ConnectionStateEvent{
		Camera:     w.name,
		State:      state,
		Reason:     reason,
		Generation: generation,
		Timestamp:  time.Now(),
	})
}

func stateGauge(state string) float64 {
	switch state {
	case events.StateConnecting:
		return 1
	case events.StateConnected:
		return 2
	default:
		return 0
	}
}
