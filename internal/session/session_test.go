package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/camlink/internal/broadcast"
	"github.com/smazurov/camlink/internal/camera"
	"github.com/smazurov/camlink/internal/config"
)

// fakeConn is an in-memory camera connection tests can feed and kill.
type fakeConn struct {
	mu      sync.Mutex
	subs    map[camera.Track]chan camera.Frame
	refuse  map[camera.Track]bool
	done    chan struct{}
	once    sync.Once
	err     error
	led     []bool
	ir      []camera.IRMode
	reboots int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		subs:   make(map[camera.Track]chan camera.Frame),
		refuse: make(map[camera.Track]bool),
		done:   make(chan struct{}),
	}
}

func (c *fakeConn) Subscribe(_ context.Context, track camera.Track) (<-chan camera.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return nil, errors.New("connection is closed")
	default:
	}
	if c.refuse[track] {
		return nil, fmt.Errorf("track %s not available", track)
	}
	ch := make(chan camera.Frame, 16)
	c.subs[track] = ch
	return ch, nil
}

// push delivers one frame to the track's subscriber, if any.
func (c *fakeConn) push(track camera.Track, data []byte) {
	c.mu.Lock()
	ch := c.subs[track]
	c.mu.Unlock()
	if ch != nil {
		ch <- camera.Frame{Track: track, Data: data, Received: time.Now()}
	}
}

// kill simulates connection loss.
func (c *fakeConn) kill(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		for _, ch := range c.subs {
			close(ch)
		}
		c.subs = make(map[camera.Track]chan camera.Frame)
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *fakeConn) SetStatusLED(_ context.Context, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.led = append(c.led, on)
	return nil
}

func (c *fakeConn) SetIRLights(_ context.Context, mode camera.IRMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ir = append(c.ir, mode)
	return nil
}

func (c *fakeConn) Reboot(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reboots++
	return nil
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeConn) Close() error {
	c.kill(nil)
	return nil
}

// fakeDialer hands out fakeConns and records every dial.
type fakeDialer struct {
	mu    sync.Mutex
	fails int // fail this many dials before succeeding
	conns []*fakeConn
	addrs []string
	setup func(*fakeConn) // applied to each new connection
}

func (d *fakeDialer) dial(_ context.Context, cfg config.Camera) (camera.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addrs = append(d.addrs, cfg.Address)
	if d.fails > 0 {
		d.fails--
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	if d.setup != nil {
		d.setup(conn)
	}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.addrs)
}

func testCamera(attempts int) config.Camera {
	return config.Camera{
		Name:    "porch",
		Address: "tcp://127.0.0.1:9000",
		Connection: config.Connection{
			MaxInitialAttempts: attempts,
			RetryMin:           "2ms",
			RetryMax:           "10ms",
		},
	}
}

func TestNewConnectsWithinBudget(t *testing.T) {
	d := &fakeDialer{fails: 2}
	sess, handle, err := New(testCamera(3), WithDialer(d.dial))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer sess.Shutdown()

	if _, err := handle.Connection(); err != nil {
		t.Fatalf("Connection() error = %v, want connected after New", err)
	}
	if got := d.dials(); got != 3 {
		t.Errorf("dial attempts = %d, want 3", got)
	}
}

func TestNewFailsWhenBudgetExhausted(t *testing.T) {
	d := &fakeDialer{fails: 100}
	_, _, err := New(testCamera(2), WithDialer(d.dial))
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("New() error = %v, want ErrConnect", err)
	}
	if got := d.dials(); got != 2 {
		t.Errorf("dial attempts = %d, want 2", got)
	}
}

func TestNewBackgroundConnect(t *testing.T) {
	d := &fakeDialer{fails: 2}
	start := time.Now()
	sess, handle, err := New(testCamera(0), WithDialer(d.dial))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer sess.Shutdown()
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("New() blocked %v with zero attempt budget", elapsed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := handle.WaitConnected(ctx); err != nil {
		t.Fatalf("WaitConnected() error = %v", err)
	}
}

func TestHandlesObserveReconnect(t *testing.T) {
	d := &fakeDialer{}
	sess, handle, err := New(testCamera(1), WithDialer(d.dial))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer sess.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rx := handle.WatchConnection()
	ref := rx.Load()
	if !ref.Live() || ref.Generation != 1 {
		t.Fatalf("initial ref = %+v, want live generation 1", ref)
	}

	d.conn(0).kill(errors.New("cable pulled"))

	ref, err = rx.Wait(ctx, func(r camera.Ref) bool {
		return r.Live() && r.Generation == 2
	})
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if ref.Conn == d.conn(0) {
		t.Error("new generation still carries the dead connection")
	}
}

func TestStreamFanOut(t *testing.T) {
	d := &fakeDialer{}
	sess, handle, err := New(testCamera(1), WithDialer(d.dial))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer sess.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := handle.Stream(ctx, camera.TrackMain)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	second, err := handle.Stream(ctx, camera.TrackMain)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	d.conn(0).push(camera.TrackMain, []byte("keyframe"))
	for i, sub := range []*Subscription{first, second} {
		fr, err := sub.Recv(ctx)
		if err != nil {
			t.Fatalf("subscriber %d Recv() error = %v", i, err)
		}
		if string(fr.Data) != "keyframe" {
			t.Errorf("subscriber %d got %q, want %q", i, fr.Data, "keyframe")
		}
	}
}

func TestStreamParksUntilConnected(t *testing.T) {
	d := &fakeDialer{fails: 3}
	sess, handle, err := New(testCamera(0), WithDialer(d.dial))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer sess.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := handle.Stream(ctx, camera.TrackSub)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	if _, err := handle.WaitConnected(ctx); err != nil {
		t.Fatalf("WaitConnected() error = %v", err)
	}
	// The fanout worker may still be attaching the track.
	deadline := time.Now().Add(2 * time.Second)
	for {
		d.conn(0).push(camera.TrackSub, []byte("late"))
		recvCtx, recvCancel := context.WithTimeout(ctx, 50*time.Millisecond)
		fr, err := sub.Recv(recvCtx)
		recvCancel()
		if err == nil {
			if string(fr.Data) != "late" {
				t.Fatalf("Recv() = %q, want %q", fr.Data, "late")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("parked subscription never delivered: %v", err)
		}
	}
}

func TestStreamParksAcrossConnectionLoss(t *testing.T) {
	d := &fakeDialer{}
	sess, handle, err := New(testCamera(1), WithDialer(d.dial))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer sess.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Request a fresh track right after the connection dies. However the
	// request races the loss, it must be held until the reconnect rather
	// than failing against the dead connection.
	d.conn(0).kill(errors.New("cable pulled"))
	sub, err := handle.Stream(ctx, camera.TrackSub)
	if err != nil {
		t.Fatalf("Stream() error = %v, want the request held until reconnect", err)
	}

	d.conn(1).push(camera.TrackSub, []byte("after"))
	fr, err := sub.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if string(fr.Data) != "after" {
		t.Fatalf("Recv() = %q, want %q", fr.Data, "after")
	}
}

func TestStreamUnsupportedTrack(t *testing.T) {
	d := &fakeDialer{setup: func(c *fakeConn) {
		c.refuse[camera.TrackAudio] = true
	}}
	sess, handle, err := New(testCamera(1), WithDialer(d.dial))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer sess.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := handle.Stream(ctx, camera.TrackAudio); !errors.Is(err, ErrSubscriptionUnavailable) {
		t.Fatalf("Stream() error = %v, want ErrSubscriptionUnavailable", err)
	}
}

func TestSubscriptionSurvivesReconnect(t *testing.T) {
	d := &fakeDialer{}
	sess, handle, err := New(testCamera(1), WithDialer(d.dial))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer sess.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := handle.Stream(ctx, camera.TrackMain)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	d.conn(0).push(camera.TrackMain, []byte("before"))
	if fr, err := sub.Recv(ctx); err != nil || string(fr.Data) != "before" {
		t.Fatalf("Recv() = %q, %v, want %q", fr.Data, err, "before")
	}

	d.conn(0).kill(errors.New("reset by peer"))
	rx := handle.WatchConnection()
	if _, err := rx.Wait(ctx, func(r camera.Ref) bool {
		return r.Live() && r.Generation == 2
	}); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	// Same subscription, new connection. Retry until the fanout worker
	// has re-attached the track.
	deadline := time.Now().Add(2 * time.Second)
	for {
		d.conn(1).push(camera.TrackMain, []byte("after"))
		recvCtx, recvCancel := context.WithTimeout(ctx, 50*time.Millisecond)
		fr, err := sub.Recv(recvCtx)
		recvCancel()
		if err == nil {
			if string(fr.Data) != "after" {
				t.Fatalf("Recv() = %q, want %q", fr.Data, "after")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("subscription never resumed after reconnect: %v", err)
		}
	}
}

func TestStrictSubscriptionReportsLag(t *testing.T) {
	d := &fakeDialer{}
	cfg := testCamera(1)
	cfg.Strict = true
	cfg.Connection.StreamBuffer = 2
	sess, handle, err := New(cfg, WithDialer(d.dial))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer sess.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := handle.Stream(ctx, camera.TrackMain)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	payloads := []string{"0", "1", "2", "3", "4"}
	for _, p := range payloads {
		d.conn(0).push(camera.TrackMain, []byte(p))
	}

	// Wait for the fanout pump to overrun the two-frame window.
	deadline := time.Now().Add(2 * time.Second)
	for sub.Pending() < len(payloads) {
		if time.Now().After(deadline) {
			t.Fatalf("pump delivered %d of %d frames", sub.Pending(), len(payloads))
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := sub.Recv(ctx); !errors.Is(err, broadcast.ErrLagged) {
		t.Fatalf("Recv() error = %v, want ErrLagged", err)
	}
	// After the lag report the subscription resumes from the oldest
	// retained frame.
	for _, want := range []string{"3", "4"} {
		fr, err := sub.Recv(ctx)
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		if string(fr.Data) != want {
			t.Errorf("Recv() = %q, want %q", fr.Data, want)
		}
	}
}

func TestTrackLostAfterReconnect(t *testing.T) {
	d := &fakeDialer{}
	sess, handle, err := New(testCamera(1), WithDialer(d.dial))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer sess.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := handle.Stream(ctx, camera.TrackExtern)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	d.mu.Lock()
	d.setup = func(c *fakeConn) { c.refuse[camera.TrackExtern] = true }
	d.mu.Unlock()
	d.conn(0).kill(errors.New("reset by peer"))

	if _, err := sub.Recv(ctx); !errors.Is(err, broadcast.ErrClosed) {
		t.Fatalf("Recv() error = %v, want broadcast.ErrClosed", err)
	}
}

func TestUpdateConfigReconnects(t *testing.T) {
	d := &fakeDialer{}
	cfg := testCamera(1)
	sess, handle, err := New(cfg, WithDialer(d.dial))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer sess.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg.Address = "tcp://10.0.0.8:9000"
	if err := sess.UpdateConfig(cfg); err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}

	rx := handle.WatchConnection()
	if _, err := rx.Wait(ctx, func(r camera.Ref) bool {
		return r.Live() && r.Generation == 2
	}); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	select {
	case <-d.conn(0).Done():
	default:
		t.Error("old connection still live after reconfigure")
	}
	d.mu.Lock()
	last := d.addrs[len(d.addrs)-1]
	d.mu.Unlock()
	if last != "tcp://10.0.0.8:9000" {
		t.Errorf("redial used address %q, want the updated one", last)
	}
	if got := handle.Config().Address; got != "tcp://10.0.0.8:9000" {
		t.Errorf("Config().Address = %q, want updated address", got)
	}
}

func TestControlCommandsReachConnection(t *testing.T) {
	d := &fakeDialer{}
	sess, handle, err := New(testCamera(1), WithDialer(d.dial))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer sess.Shutdown()

	ctx := context.Background()
	if err := handle.SetStatusLED(ctx, true); err != nil {
		t.Fatalf("SetStatusLED() error = %v", err)
	}
	if err := handle.SetIRLights(ctx, camera.IRAuto); err != nil {
		t.Fatalf("SetIRLights() error = %v", err)
	}
	if err := handle.Reboot(ctx); err != nil {
		t.Fatalf("Reboot() error = %v", err)
	}

	conn := d.conn(0)
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.led) != 1 || !conn.led[0] {
		t.Errorf("led commands = %v, want [true]", conn.led)
	}
	if len(conn.ir) != 1 || conn.ir[0] != camera.IRAuto {
		t.Errorf("ir commands = %v, want [auto]", conn.ir)
	}
	if conn.reboots != 1 {
		t.Errorf("reboots = %d, want 1", conn.reboots)
	}
}

func TestControlWhileDisconnected(t *testing.T) {
	d := &fakeDialer{fails: 1000}
	sess, handle, err := New(testCamera(0), WithDialer(d.dial))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer sess.Shutdown()

	if err := handle.SetStatusLED(context.Background(), true); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SetStatusLED() error = %v, want ErrNotConnected", err)
	}
}

func TestShutdownCascades(t *testing.T) {
	d := &fakeDialer{}
	sess, handle, err := New(testCamera(1), WithDialer(d.dial))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := handle.Stream(ctx, camera.TrackMain)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	sess.Shutdown()
	sess.Shutdown() // must not hang or panic

	select {
	case <-handle.Done():
	default:
		t.Error("handle Done() not closed after shutdown")
	}
	select {
	case <-d.conn(0).Done():
	default:
		t.Error("connection not closed on shutdown")
	}
	if _, err := handle.Subscribe(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Subscribe() error = %v, want ErrSessionClosed", err)
	}
	if _, err := handle.Stream(ctx, camera.TrackSub); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Stream() error = %v, want ErrSessionClosed", err)
	}
	if err := sess.UpdateConfig(testCamera(1)); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("UpdateConfig() error = %v, want ErrSessionClosed", err)
	}
	if _, err := sub.Recv(ctx); !errors.Is(err, broadcast.ErrClosed) {
		t.Errorf("Recv() error = %v, want broadcast.ErrClosed", err)
	}
}

func TestShutdownClosesConnectionEveryTime(t *testing.T) {
	// Cancellation both fires ctx.Done and closes the config change
	// channel, and the connection watcher may observe either first. The
	// connection must be torn down no matter which branch wins the select.
	for i := 0; i < 50; i++ {
		d := &fakeDialer{}
		sess, _, err := New(testCamera(1), WithDialer(d.dial))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		sess.Shutdown()
		select {
		case <-d.conn(0).Done():
		default:
			t.Fatalf("iteration %d: connection left open after shutdown", i)
		}
	}
}

func TestSubscribeMintsIndependentHandles(t *testing.T) {
	d := &fakeDialer{}
	sess, handle, err := New(testCamera(1), WithDialer(d.dial))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer sess.Shutdown()

	other, err := handle.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if other.Name() != handle.Name() {
		t.Errorf("handle names differ: %q vs %q", other.Name(), handle.Name())
	}
	c1, err1 := handle.Connection()
	c2, err2 := other.Connection()
	if err1 != nil || err2 != nil {
		t.Fatalf("Connection() errors = %v, %v", err1, err2)
	}
	if c1 != c2 {
		t.Error("handles disagree about the live connection")
	}
}
