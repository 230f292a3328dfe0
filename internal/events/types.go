package events

import "time"

// Event type constants for kelindar/event.
const (
	TypeConnectionState uint32 = iota + 1
	TypeConfigApplied
	TypeSubscriberLag
	TypeSessionClosed
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// Connection states as reported by ConnectionStateEvent.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
)

// ConnectionStateEvent reports a connection lifecycle transition.
type ConnectionStateEvent struct {
	Camera     string `json:"camera" example:"driveway" doc:"Camera name"`
	State      string `json:"state" example:"connected" doc:"New connection state"`
	Reason     string `json:"reason,omitempty" example:"i/o timeout" doc:"Why the transition happened, if known"`
	Generation uint64    `json:"generation" doc:"Connection generation, increases on every reconnect"`
	Timestamp  time.Time `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConnectionStateEvent.
func (e ConnectionStateEvent) Type() uint32 { return TypeConnectionState }

// ConfigAppliedEvent reports that a session accepted a new configuration.
type ConfigAppliedEvent struct {
	Camera    string    `json:"camera" example:"driveway" doc:"Camera name"`
	Timestamp time.Time `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConfigAppliedEvent.
func (e ConfigAppliedEvent) Type() uint32 { return TypeConfigApplied }

// SubscriberLagEvent reports a strict media subscriber that was overrun.
type SubscriberLagEvent struct {
	Camera    string    `json:"camera" example:"driveway" doc:"Camera name"`
	Track     string    `json:"track" example:"main" doc:"Media track"`
	Missed    uint64    `json:"missed" doc:"Frames the subscriber missed"`
	Timestamp time.Time `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for SubscriberLagEvent.
func (e SubscriberLagEvent) Type() uint32 { return TypeSubscriberLag }

// SessionClosedEvent reports that a session has shut down for good.
type SessionClosedEvent struct {
	Camera    string    `json:"camera" example:"driveway" doc:"Camera name"`
	Timestamp time.Time `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionClosedEvent.
func (e SessionClosedEvent) Type() uint32 { return TypeSessionClosed }
