package session

import "errors"

var (
	// ErrConnect means the initial handshake failed after the configured
	// attempt budget. Fatal to session creation, never to a running
	// session.
	ErrConnect = errors.New("initial connection failed")

	// ErrSessionClosed means the operation was attempted on a session that
	// has been shut down.
	ErrSessionClosed = errors.New("session closed")

	// ErrNotConnected means no connection exists right now. Transient:
	// the lifecycle worker is reconnecting, retry or wait.
	ErrNotConnected = errors.New("camera not connected")

	// ErrSubscriptionUnavailable means the requested track could not be
	// obtained from the current connection. Reported once per request,
	// not retried automatically.
	ErrSubscriptionUnavailable = errors.New("subscription unavailable")
)
