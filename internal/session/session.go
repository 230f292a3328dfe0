// Package session supervises a single camera connection. One supervisor
// owns the physical connection, fans media frames out to any number of
// subscribers, and keeps reconnecting until it is shut down. Consumers
// never touch the connection directly; they hold a Handle and go through
// the supervisor's command queue.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/camlink/internal/camera"
	"github.com/smazurov/camlink/internal/config"
	"github.com/smazurov/camlink/internal/events"
	"github.com/smazurov/camlink/internal/logging"
	"github.com/smazurov/camlink/internal/metrics"
	"github.com/smazurov/camlink/internal/watch"
)

// Session is the supervisor for one camera. Create it with New, interact
// through handles, and call Shutdown exactly when the camera should go
// away. All methods are safe for concurrent use.
type Session struct {
	name   string
	ctx    context.Context
	cancel context.CancelFunc

	commands   chan command
	streamReqs chan streamRequest

	configTx *watch.Value[config.Camera]
	cameraTx *watch.Value[camera.Ref]

	loopDone  chan struct{}
	workers   sync.WaitGroup
	closeOnce sync.Once

	dial   camera.Dialer
	bus    *events.Bus
	logger *slog.Logger
}

// Option customizes session construction.
type Option func(*Session)

// WithDialer overrides the connection factory. Tests use this to inject
// fake cameras.
func WithDialer(d camera.Dialer) Option {
	return func(s *Session) { s.dial = d }
}

// WithBus attaches an event bus for connection state notifications.
func WithBus(b *events.Bus) Option {
	return func(s *Session) { s.bus = b }
}

// WithLogger overrides the default module logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// New starts a supervisor for the given camera and returns once a handle
// could be minted. When cfg.Connection.MaxInitialAttempts is positive,
// New also waits for the first connection outcome and returns ErrConnect
// if the attempt budget runs out; with a zero budget the connection is
// established in the background and New returns immediately.
func New(cfg config.Camera, opts ...Option) (*Session, Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, Handle{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		name:       cfg.Name,
		ctx:        ctx,
		cancel:     cancel,
		commands:   make(chan command, cfg.Connection.QueueSize()),
		streamReqs: make(chan streamRequest, cfg.Connection.QueueSize()),
		configTx:   watch.NewValue(cfg),
		cameraTx:   watch.NewValue(camera.Ref{}),
		loopDone:   make(chan struct{}),
		dial:       camera.Dial,
		logger:     logging.GetLogger("session").With("camera", cfg.Name),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.controlLoop()

	ready := make(chan error, 1)
	lw := &lifecycle{
		name:     s.name,
		dial:     s.dial,
		configRx: s.configTx.Subscribe(),
		cameraTx: s.cameraTx,
		bus:      s.bus,
		logger:   s.logger,
	}
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		lw.run(s.ctx, ready)
	}()

	fw := &fanout{
		name:     s.name,
		buffer:   cfg.Connection.BufferSize(),
		requests: s.streamReqs,
		cameraRx: s.cameraTx.Subscribe(),
		bus:      s.bus,
		logger:   s.logger,
	}
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		fw.run(s.ctx)
	}()

	if cfg.Connection.MaxInitialAttempts > 0 {
		select {
		case err := <-ready:
			if err != nil {
				s.Shutdown()
				return nil, Handle{}, err
			}
		case <-ctx.Done():
			s.Shutdown()
			return nil, Handle{}, ErrSessionClosed
		}
	}

	return s, s.newHandle(), nil
}

// controlLoop is the supervisor actor. It owns the command queue and runs
// until a hangUp command or context cancellation. Commands queued behind
// a hangUp are dropped.
func (s *Session) controlLoop() {
	defer close(s.loopDone)
	defer s.cancel()
	s.logger.Debug("Supervisor started")
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug("Supervisor stopped", "reason", "context cancelled")
			return
		case cmd := <-s.commands:
			switch c := cmd.(type) {
			case hangUp:
				s.logger.Info("Session hang up")
				return
			case handleRequest:
				c.reply <- s.newHandle()
			case streamRequest:
				// Forwarded to the fanout worker so slow track setup
				// never stalls control commands.
				select {
				case s.streamReqs <- c:
				case <-s.ctx.Done():
					close(c.reply)
				}
			}
		}
	}
}

// Subscribe mints an additional handle. It fails only once the session
// is shutting down.
func (s *Session) Subscribe() (Handle, error) {
	req := handleRequest{reply: make(chan Handle, 1)}
	select {
	case s.commands <- req:
	case <-s.ctx.Done():
		return Handle{}, ErrSessionClosed
	}
	select {
	case h := <-req.reply:
		return h, nil
	case <-s.ctx.Done():
		return Handle{}, ErrSessionClosed
	}
}

// UpdateConfig replaces the camera configuration. The lifecycle worker
// tears down the current connection and redials with the new settings;
// existing handles stay valid throughout.
func (s *Session) UpdateConfig(cfg config.Camera) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	select {
	case <-s.ctx.Done():
		return ErrSessionClosed
	default:
	}
	s.configTx.Set(cfg)
	metrics.ConfigReloads.WithLabelValues(s.name).Inc()
	if s.bus != nil {
		s.bus.Publish(events.ConfigAppliedEvent{
			Camera:    s.name,
			Timestamp: time.Now(),
		})
	}
	s.logger.Info("Configuration updated")
	return nil
}

// Name returns the camera name this session supervises.
func (s *Session) Name() string {
	return s.name
}

// Done is closed when the session has terminated.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Shutdown terminates the session and blocks until the supervisor and
// its workers have exited. Safe to call more than once.
func (s *Session) Shutdown() {
	select {
	case s.commands <- hangUp{}:
	case <-s.ctx.Done():
	}
	<-s.loopDone
	s.workers.Wait()
	s.closeOnce.Do(func() {
		if s.bus != nil {
			s.bus.Publish(events.SessionClosedEvent{
				Camera:    s.name,
				Timestamp: time.Now(),
			})
		}
	})
}
