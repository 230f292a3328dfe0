// Package nats bridges the camera fleet to a NATS message bus.
//
// # Subjects
//
// Outbound, published by the bridge:
//
//	camlink.cameras.<name>.status   connection state changes and session close
//	camlink.cameras.<name>.lag      subscriber overrun reports
//
// Inbound, consumed by the bridge:
//
//	camlink.control.<name>          control commands (led, ir, reboot)
//
// All payloads are JSON; see the message types in this package.
//
// # Graceful degradation
//
// The bridge is optional. When the NATS server is unreachable the daemon
// keeps running, outbound messages are dropped and the client reconnects
// in the background indefinitely.
//
// # Embedded server
//
// Server wraps an embedded NATS server for single-binary deployments and
// tests. Point the bridge at Server.ClientURL after Start.
package nats
