package session

import (
	"context"
	"log/slog"

	"github.com/smazurov/camlink/internal/broadcast"
	"github.com/smazurov/camlink/internal/camera"
	"github.com/smazurov/camlink/internal/events"
	"github.com/smazurov/camlink/internal/metrics"
	"github.com/smazurov/camlink/internal/watch"
)

// trackHub is one track's broadcast ring plus the pump currently feeding
// it. The ring outlives individual connections; only the pump is tied to
// a connection generation.
type trackHub struct {
	ring   *broadcast.Ring[camera.Frame]
	gen    uint64
	cancel context.CancelFunc
}

// fanout serves stream requests and keeps every track hub fed from the
// current connection. Requests arriving while disconnected are parked
// and fulfilled after the next successful connect; hubs are re-attached
// to every new connection so existing subscriptions survive reconnects.
type fanout struct {
	name     string
	buffer   int
	requests <-chan streamRequest
	cameraRx *watch.Receiver[camera.Ref]
	bus      *events.Bus
	logger   *slog.Logger

	hubs    map[camera.Track]*trackHub
	pending []streamRequest
}

func (f *fanout) run(ctx context.Context) {
	f.hubs = make(map[camera.Track]*trackHub)
	defer f.closeAll()

	ref := f.cameraRx.Load()
	camCh := f.cameraRx.Changes(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-camCh:
			if !ok {
				return
			}
			ref = next
			f.rewire(ctx, ref)
		case req := <-f.requests:
			f.serve(ctx, ref, req)
		}
	}
}

// serve answers one stream request. An existing hub is shared; otherwise
// a hub is created on the live connection, or the request is parked when
// there is none or the last one has already died.
func (f *fanout) serve(ctx context.Context, ref camera.Ref, req streamRequest) {
	if hub, ok := f.hubs[req.track]; ok {
		req.reply <- f.subscription(hub, req)
		return
	}
	if !ref.Live() {
		f.pending = append(f.pending, req)
		return
	}
	hub, err := f.attach(ctx, ref, req.track)
	if err != nil {
		select {
		case <-ref.Conn.Done():
			// The connection died and its retraction has not been observed
			// here yet. Park the request like one made while disconnected.
			f.pending = append(f.pending, req)
		default:
			f.logger.Warn("Track subscription failed", "track", req.track, "error", err)
			close(req.reply)
		}
		return
	}
	f.hubs[req.track] = hub
	req.reply <- f.subscription(hub, req)
}

// attach subscribes one track on conn and starts a pump feeding a fresh
// hub.
func (f *fanout) attach(ctx context.Context, ref camera.Ref, track camera.Track) (*trackHub, error) {
	frames, err := ref.Conn.Subscribe(ctx, track)
	if err != nil {
		return nil, err
	}
	hub := &trackHub{ring: broadcast.New[camera.Frame](f.buffer)}
	f.feed(ctx, hub, ref, frames, track)
	return hub, nil
}

// feed points hub at a new frame source, replacing any previous pump.
func (f *fanout) feed(ctx context.Context, hub *trackHub, ref camera.Ref, frames <-chan camera.Frame, track camera.Track) {
	if hub.cancel != nil {
		hub.cancel()
	}
	pumpCtx, cancel := context.WithCancel(ctx)
	hub.cancel = cancel
	hub.gen = ref.Generation
	go f.pump(pumpCtx, hub.ring, frames, track)
}

func (f *fanout) pump(ctx context.Context, ring *broadcast.Ring[camera.Frame], frames <-chan camera.Frame, track camera.Track) {
	for {
		select {
		case <-ctx.Done():
			return
		case fr, ok := <-frames:
			if !ok {
				return
			}
			if ring.Publish(fr) != nil {
				return
			}
			metrics.FramesTotal.WithLabelValues(f.name, track.String()).Inc()
		}
	}
}

// rewire reacts to a connection change. On a new live connection, every
// hub is re-attached and parked requests are served; a hub whose track
// the new connection refuses is closed so its subscribers see ErrClosed
// instead of waiting forever.
func (f *fanout) rewire(ctx context.Context, ref camera.Ref) {
	if !ref.Live() {
		// Pumps die with the old connection's channels; hubs stay so
		// subscriptions resume after reconnect.
		return
	}
	for track, hub := range f.hubs {
		if hub.gen == ref.Generation {
			continue
		}
		frames, err := ref.Conn.Subscribe(ctx, track)
		if err != nil {
			f.logger.Warn("Track lost after reconnect", "track", track, "error", err)
			hub.cancel()
			hub.ring.Close()
			delete(f.hubs, track)
			continue
		}
		f.feed(ctx, hub, ref, frames, track)
	}

	parked := f.pending
	f.pending = nil
	for _, req := range parked {
		f.serve(ctx, ref, req)
	}
}

func (f *fanout) subscription(hub *trackHub, req streamRequest) *Subscription {
	return &Subscription{
		camera: f.name,
		track:  req.track,
		rx:     hub.ring.Subscribe(req.strict),
		bus:    f.bus,
	}
}

// closeAll tears everything down on shutdown. Parked requests observe a
// closed reply, live subscriptions drain and then get ErrClosed.
func (f *fanout) closeAll() {
	for track, hub := range f.hubs {
		if hub.cancel != nil {
			hub.cancel()
		}
		hub.ring.Close()
		delete(f.hubs, track)
	}
	for _, req := range f.pending {
		close(req.reply)
	}
	f.pending = nil
}
