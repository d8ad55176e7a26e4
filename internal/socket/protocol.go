package socket

import "encoding/json"

// Inbound event names.
const (
	EventPerformUpdate       = "performUpdate"
	EventPerformLogs         = "performLogs"
	EventPerformServerUpdate = "performServerUpdate"
	EventStopPerformLogs     = "stopPerformLogs"
	EventStartLocalTerminal  = "startLocalTerminal"
	EventStartRemoteTerminal = "startRemoteTerminal"
	EventTerminalInput       = "terminalInput"
	EventTerminalResize      = "terminalResize"
	EventStopTerminal        = "stopTerminal"
	EventDisconnect          = "disconnect"
)

// MaxMessageSize bounds one inbound websocket frame.
const MaxMessageSize = 64 * 1024

// inbound is a frame sent by the dashboard.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// outbound is a frame sent to the dashboard. Data is a string chunk or an
// integer status code.
type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type tokenPayload struct {
	Token string `json:"token"`
}

type inputPayload struct {
	Token string `json:"token"`
	Input string `json:"input"`
}

type resizePayload struct {
	Token string `json:"token"`
	Cols  int    `json:"cols"`
	Rows  int    `json:"rows"`
}

// decode fills v from data. Missing or malformed payloads leave v zero,
// which then fails token validation.
func decode(data json.RawMessage, v any) {
	if len(data) == 0 {
		return
	}
	_ = json.Unmarshal(data, v)
}
