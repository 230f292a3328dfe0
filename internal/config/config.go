package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Default connection tuning. Chosen conservatively: quick first retry,
// capped exponential backoff, retry forever until cancelled.
const (
	DefaultRetryMin     = 500 * time.Millisecond
	DefaultRetryMax     = 30 * time.Second
	DefaultCommandQueue = 100
	DefaultStreamBuffer = 64
)

// Config is the top-level camera configuration file.
type Config struct {
	Cameras []Camera `toml:"cameras" json:"cameras"`
}

// Camera describes how to reach and treat one camera. A Camera value is
// immutable once handed to a session: configuration changes replace the
// whole record rather than patching fields.
type Camera struct {
	Name     string `toml:"name" json:"name"`
	Address  string `toml:"address" json:"address" doc:"Camera address, scheme selects the wire codec (e.g. tcp://10.0.0.5:9000)"`
	Username string `toml:"username,omitempty" json:"username,omitempty"`
	Password string `toml:"password,omitempty" json:"password,omitempty"`

	// Strict selects the lag policy for media subscriptions made through
	// this camera's handles: true surfaces lag as an error to the lagging
	// subscriber, false drops frames silently.
	Strict bool `toml:"strict" json:"strict" required:"false"`

	// Tracks holds per-track encoding hints keyed by track name
	// (main, sub, extern, audio).
	Tracks map[string]TrackHint `toml:"tracks,omitempty" json:"tracks,omitempty"`

	Connection Connection `toml:"connection,omitempty" json:"connection,omitempty"`
}

// TrackHint carries encoding hints for one media track.
type TrackHint struct {
	Codec       string `toml:"codec,omitempty" json:"codec,omitempty" doc:"Expected codec (h264, h265, aac)"`
	BitrateKbps int    `toml:"bitrate_kbps,omitempty" json:"bitrate_kbps,omitempty"`
}

// Connection tunes the connection lifecycle for one camera.
type Connection struct {
	// MaxInitialAttempts bounds the initial handshake phase at session
	// creation: creation fails once this many attempts have failed.
	// Zero means connect in the background and retry forever.
	MaxInitialAttempts int `toml:"max_initial_attempts,omitempty" json:"max_initial_attempts,omitempty"`

	// RetryMin and RetryMax bound the reconnect backoff, as Go duration
	// strings ("500ms", "30s").
	RetryMin string `toml:"retry_min,omitempty" json:"retry_min,omitempty"`
	RetryMax string `toml:"retry_max,omitempty" json:"retry_max,omitempty"`

	// CommandQueue is the supervisor command queue capacity.
	CommandQueue int `toml:"command_queue,omitempty" json:"command_queue,omitempty"`

	// StreamBuffer is the per-track broadcast history window, in frames.
	StreamBuffer int `toml:"stream_buffer,omitempty" json:"stream_buffer,omitempty"`
}

// RetryMinDuration returns the parsed minimum backoff, falling back to the
// default on empty or invalid values.
func (c Connection) RetryMinDuration() time.Duration {
	if d, err := time.ParseDuration(c.RetryMin); err == nil && d > 0 {
		return d
	}
	return DefaultRetryMin
}

// RetryMaxDuration returns the parsed backoff cap, falling back to the
// default on empty or invalid values.
func (c Connection) RetryMaxDuration() time.Duration {
	if d, err := time.ParseDuration(c.RetryMax); err == nil && d > 0 {
		return d
	}
	return DefaultRetryMax
}

// QueueSize returns the command queue capacity, defaulted.
func (c Connection) QueueSize() int {
	if c.CommandQueue > 0 {
		return c.CommandQueue
	}
	return DefaultCommandQueue
}

// BufferSize returns the stream history window, defaulted.
func (c Connection) BufferSize() int {
	if c.StreamBuffer > 0 {
		return c.StreamBuffer
	}
	return DefaultStreamBuffer
}

// Load reads and validates a TOML configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the whole file for structural problems.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Cameras))
	for i, cam := range c.Cameras {
		if err := cam.Validate(); err != nil {
			return fmt.Errorf("camera %d: %w", i, err)
		}
		if seen[cam.Name] {
			return fmt.Errorf("camera %d: duplicate name %q", i, cam.Name)
		}
		seen[cam.Name] = true
	}
	return nil
}

// Validate checks a single camera record.
func (c Camera) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	if !strings.Contains(c.Address, "://") {
		return fmt.Errorf("address %q has no scheme", c.Address)
	}
	if c.Connection.RetryMin != "" {
		if _, err := time.ParseDuration(c.Connection.RetryMin); err != nil {
			return fmt.Errorf("connection.retry_min: %w", err)
		}
	}
	if c.Connection.RetryMax != "" {
		if _, err := time.ParseDuration(c.Connection.RetryMax); err != nil {
			return fmt.Errorf("connection.retry_max: %w", err)
		}
	}
	return nil
}

// Scheme returns the wire-codec scheme of the camera address, or "".
func (c Camera) Scheme() string {
	scheme, _, ok := strings.Cut(c.Address, "://")
	if !ok {
		return ""
	}
	return scheme
}

// Host returns the address with the scheme stripped.
func (c Camera) Host() string {
	_, host, ok := strings.Cut(c.Address, "://")
	if !ok {
		return c.Address
	}
	return host
}

// Equal reports whether two camera records are equivalent for the purpose
// of deciding whether a running session needs a reconnect.
func (c Camera) Equal(o Camera) bool {
	if c.Name != o.Name ||
		c.Address != o.Address ||
		c.Username != o.Username ||
		c.Password != o.Password ||
		c.Strict != o.Strict ||
		c.Connection != o.Connection {
		return false
	}
	if len(c.Tracks) != len(o.Tracks) {
		return false
	}
	for name, hint := range c.Tracks {
		if o.Tracks[name] != hint {
			return false
		}
	}
	return true
}

// Find returns the named camera record from the file.
func (c Config) Find(name string) (Camera, bool) {
	for _, cam := range c.Cameras {
		if cam.Name == name {
			return cam, true
		}
	}
	return Camera{}, false
}
