// Package tcpcam is the built-in reference wire codec: length-prefixed
// frames over a plain TCP connection.
//
// It exists so the daemon runs end to end without a proprietary camera
// protocol. The framing is deliberately trivial: text commands from the
// client, binary frames from the camera:
//
//	client → camera:  "AUTH <user> <pass>\n", "SUBSCRIBE <track>\n",
//	                  "LED on|off\n", "IR on|off|auto\n", "REBOOT\n"
//	camera → client:  [1 byte track id][4 byte big-endian length][payload]
//
// Importing this package registers it for the "tcp" address scheme.
package tcpcam

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/smazurov/camlink/internal/camera"
	"github.com/smazurov/camlink/internal/config"
	"github.com/smazurov/camlink/internal/logging"
)

// MaxFrameSize bounds a single frame payload; larger headers indicate a
// corrupt stream and kill the connection.
const MaxFrameSize = 8 << 20

const subscriberBuffer = 32

func init() {
	camera.Register("tcp", Dial)
}

// Dial connects to a tcpcam endpoint and performs the optional auth step.
func Dial(ctx context.Context, cfg config.Camera) (camera.Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", cfg.Host())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Host(), err)
	}

	c := &conn{
		nc:     nc,
		subs:   make(map[camera.Track]chan camera.Frame),
		done:   make(chan struct{}),
		logger: logging.GetLogger("camera").With("camera", cfg.Name),
	}

	if cfg.Username != "" {
		if err := c.writeLine(ctx, fmt.Sprintf("AUTH %s %s", cfg.Username, cfg.Password)); err != nil {
			nc.Close()
			return nil, fmt.Errorf("auth: %w", err)
		}
	}

	go c.readLoop()
	return c, nil
}

type conn struct {
	nc     net.Conn
	logger interface {
		Debug(msg string, args ...any)
		Warn(msg string, args ...any)
	}

	writeMu sync.Mutex

	mu     sync.Mutex
	subs   map[camera.Track]chan camera.Frame
	failed bool
	err    error

	done     chan struct{}
	doneOnce sync.Once
}

func (c *conn) readLoop() {
	r := bufio.NewReader(c.nc)
	header := make([]byte, 5)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			c.fail(err)
			return
		}
		track := camera.Track(header[0])
		size := binary.BigEndian.Uint32(header[1:])
		if size > MaxFrameSize {
			c.fail(fmt.Errorf("frame of %d bytes exceeds limit", size))
			return
		}

		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			c.fail(err)
			return
		}

		frame := camera.Frame{Track: track, Data: data, Received: time.Now()}

		c.mu.Lock()
		ch := c.subs[track]
		c.mu.Unlock()
		if ch == nil {
			continue
		}

		// Never let a stalled consumer block the protocol reader.
		select {
		case ch <- frame:
		default:
			c.logger.Debug("Dropped frame, subscriber stalled", "track", track.String())
		}
	}
}

// fail records the first error, closes Done and all subscriber channels.
func (c *conn) fail(err error) {
	c.mu.Lock()
	if !c.failed {
		c.failed = true
		c.err = err
		for track, ch := range c.subs {
			close(ch)
			delete(c.subs, track)
		}
	}
	c.mu.Unlock()

	c.nc.Close()
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *conn) writeLine(ctx context.Context, line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.nc.SetWriteDeadline(deadline)
		defer c.nc.SetWriteDeadline(time.Time{})
	}
	_, err := c.nc.Write([]byte(line + "\n"))
	return err
}

// Subscribe implements camera.Conn.
func (c *conn) Subscribe(ctx context.Context, track camera.Track) (<-chan camera.Frame, error) {
	c.mu.Lock()
	if c.failed {
		c.mu.Unlock()
		return nil, fmt.Errorf("connection closed: %w", c.err)
	}
	if _, exists := c.subs[track]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("track %s already subscribed", track)
	}
	ch := make(chan camera.Frame, subscriberBuffer)
	c.subs[track] = ch
	c.mu.Unlock()

	if err := c.writeLine(ctx, "SUBSCRIBE "+track.String()); err != nil {
		c.mu.Lock()
		if c.subs[track] == ch {
			delete(c.subs, track)
			close(ch)
		}
		c.mu.Unlock()
		return nil, err
	}
	return ch, nil
}

// SetStatusLED implements camera.Conn.
func (c *conn) SetStatusLED(ctx context.Context, on bool) error {
	state := "off"
	if on {
		state = "on"
	}
	return c.writeLine(ctx, "LED "+state)
}

// SetIRLights implements camera.Conn.
func (c *conn) SetIRLights(ctx context.Context, mode camera.IRMode) error {
	return c.writeLine(ctx, "IR "+mode.String())
}

// Reboot implements camera.Conn.
func (c *conn) Reboot(ctx context.Context) error {
	return c.writeLine(ctx, "REBOOT")
}

// Done implements camera.Conn.
func (c *conn) Done() <-chan struct{} { return c.done }

// Err implements camera.Conn.
func (c *conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close implements camera.Conn.
func (c *conn) Close() error {
	c.fail(net.ErrClosed)
	return nil
}
