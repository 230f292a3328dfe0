package session

import (
	"context"
	"fmt"

	"github.com/smazurov/camlink/internal/camera"
	"github.com/smazurov/camlink/internal/config"
	"github.com/smazurov/camlink/internal/watch"
)

// Handle is a consumer's capability on a session. Handles are cheap
// values, copy them freely; every handle stays valid until the session
// shuts down, at which point all operations return ErrSessionClosed.
type Handle struct {
	name     string
	ctx      context.Context
	commands chan<- command
	cameraTx *watch.Value[camera.Ref]
	configTx *watch.Value[config.Camera]
}

func (s *Session) newHandle() Handle {
	return Handle{
		name:     s.name,
		ctx:      s.ctx,
		commands: s.commands,
		cameraTx: s.cameraTx,
		configTx: s.configTx,
	}
}

// Name returns the camera name.
func (h Handle) Name() string {
	return h.name
}

// Done is closed when the session has terminated.
func (h Handle) Done() <-chan struct{} {
	return h.ctx.Done()
}

// Config returns the configuration currently in effect.
func (h Handle) Config() config.Camera {
	return h.configTx.Load()
}

// WatchConfig observes configuration updates, latest value wins.
func (h Handle) WatchConfig() *watch.Receiver[config.Camera] {
	return h.configTx.Subscribe()
}

// Connection returns the live connection, or ErrNotConnected while the
// lifecycle worker is between connections.
func (h Handle) Connection() (camera.Conn, error) {
	if h.ctx.Err() != nil {
		return nil, ErrSessionClosed
	}
	ref := h.cameraTx.Load()
	if !ref.Live() {
		return nil, ErrNotConnected
	}
	return ref.Conn, nil
}

// WatchConnection observes connection reference changes: a live Ref on
// connect, a zero Ref on retraction. Late observers see only the latest.
func (h Handle) WatchConnection() *watch.Receiver[camera.Ref] {
	return h.cameraTx.Subscribe()
}

// WaitConnected blocks until a connection is live, then returns it.
func (h Handle) WaitConnected(ctx context.Context) (camera.Conn, error) {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-h.ctx.Done():
			cancel()
		case <-waitCtx.Done():
		}
	}()
	ref, err := h.cameraTx.Subscribe().Wait(waitCtx, camera.Ref.Live)
	if err != nil {
		if h.ctx.Err() != nil {
			return nil, ErrSessionClosed
		}
		return nil, err
	}
	return ref.Conn, nil
}

// Subscribe mints another handle through the supervisor.
func (h Handle) Subscribe() (Handle, error) {
	req := handleRequest{reply: make(chan Handle, 1)}
	select {
	case h.commands <- req:
	case <-h.ctx.Done():
		return Handle{}, ErrSessionClosed
	}
	select {
	case nh := <-req.reply:
		return nh, nil
	case <-h.ctx.Done():
		return Handle{}, ErrSessionClosed
	}
}

// Stream opens a media subscription on track using the camera's
// configured lag policy.
func (h Handle) Stream(ctx context.Context, track camera.Track) (*Subscription, error) {
	return h.stream(ctx, track, h.configTx.Load().Strict)
}

// StreamStrict opens a strict media subscription on track: falling
// behind is reported once via broadcast.ErrLagged before the stream
// resumes from the oldest retained frame.
func (h Handle) StreamStrict(ctx context.Context, track camera.Track) (*Subscription, error) {
	return h.stream(ctx, track, true)
}

// StreamLossy opens a lossy media subscription on track: overruns skip
// ahead silently.
func (h Handle) StreamLossy(ctx context.Context, track camera.Track) (*Subscription, error) {
	return h.stream(ctx, track, false)
}

func (h Handle) stream(ctx context.Context, track camera.Track, strict bool) (*Subscription, error) {
	req := streamRequest{track: track, strict: strict, reply: make(chan *Subscription, 1)}
	select {
	case h.commands <- req:
	case <-h.ctx.Done():
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case sub, ok := <-req.reply:
		if !ok {
			return nil, fmt.Errorf("%w: track %s", ErrSubscriptionUnavailable, track)
		}
		return sub, nil
	case <-h.ctx.Done():
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetStatusLED toggles the camera's status LED.
func (h Handle) SetStatusLED(ctx context.Context, on bool) error {
	conn, err := h.Connection()
	if err != nil {
		return err
	}
	return conn.SetStatusLED(ctx, on)
}

// SetIRLights switches the infrared lights between on, off and auto.
func (h Handle) SetIRLights(ctx context.Context, mode camera.IRMode) error {
	conn, err := h.Connection()
	if err != nil {
		return err
	}
	return conn.SetIRLights(ctx, mode)
}

// Reboot asks the camera to restart. The session treats the resulting
// connection loss like any other failure and reconnects.
func (h Handle) Reboot(ctx context.Context) error {
	conn, err := h.Connection()
	if err != nil {
		return err
	}
	return conn.Reboot(ctx)
}
