package session

import "github.com/smazurov/camlink/internal/camera"

// command is anything the supervisor loop processes. Commands carrying a
// reply channel use a buffered channel of size one; the supervisor never
// blocks on a reply, and a closed reply means the command failed.
type command interface {
	isCommand()
}

// hangUp terminates the session. Queued commands behind it are dropped,
// never drained.
type hangUp struct{}

func (hangUp) isCommand() {}

// handleRequest mints a new handle for an additional consumer.
type handleRequest struct {
	reply chan Handle
}

func (handleRequest) isCommand() {}

// streamRequest asks for a media subscription on one track. The reply is
// closed without a value when the request cannot be satisfied.
type streamRequest struct {
	track  camera.Track
	strict bool
	reply  chan *Subscription
}

func (streamRequest) isCommand() {}
