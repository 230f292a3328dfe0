package nats

import (
	"encoding/json"
	"fmt"
)

// Subject prefixes for NATS topics.
const (
	SubjectCamerasPrefix = "camlink.cameras"
	SubjectControlPrefix = "camlink.control"
)

// SubjectCameraStatus returns the NATS subject carrying connection state
// changes for one camera.
func SubjectCameraStatus(camera string) string {
	return fmt.Sprintf("%s.%s.status", SubjectCamerasPrefix, camera)
}

// SubjectCameraLag returns the NATS subject carrying subscriber lag
// reports for one camera.
func SubjectCameraLag(camera string) string {
	return fmt.Sprintf("%s.%s.lag", SubjectCamerasPrefix, camera)
}

// SubjectCameraControl returns the NATS subject a camera listens on for
// control commands.
func SubjectCameraControl(camera string) string {
	return fmt.Sprintf("%s.%s", SubjectControlPrefix, camera)
}

// StatusMessage reports a camera connection state change.
type StatusMessage struct {
	Camera     string `json:"camera"`
	State      string `json:"state"` // disconnected, connecting, connected, closed
	Reason     string `json:"reason,omitempty"`
	Generation uint64 `json:"generation,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// Marshal serializes the message to JSON.
func (m StatusMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// LagMessage reports frames missed by a lagging subscriber.
type LagMessage struct {
	Camera    string `json:"camera"`
	Track     string `json:"track"`
	Missed    uint64 `json:"missed"`
	Timestamp string `json:"timestamp"`
}

// Marshal serializes the message to JSON.
func (m LagMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// ControlMessage is a command for one camera.
type ControlMessage struct {
	Action    string `json:"action"`          // led, ir, reboot
	Value     string `json:"value,omitempty"` // led: on/off, ir: on/off/auto
	Timestamp string `json:"timestamp"`
}

// Marshal serializes the message to JSON.
func (m ControlMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalStatus deserializes a StatusMessage from JSON.
func UnmarshalStatus(data []byte) (StatusMessage, error) {
	var m StatusMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalLag deserializes a LagMessage from JSON.
func UnmarshalLag(data []byte) (LagMessage, error) {
	var m LagMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalControl deserializes a ControlMessage from JSON.
func UnmarshalControl(data []byte) (ControlMessage, error) {
	var m ControlMessage
	err := json.Unmarshal(data, &m)
	return m, err
}
