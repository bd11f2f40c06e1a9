package realtime

// Server to client frame types.
const (
	FrameNotification = "notification"
	FrameResync       = "resync"
	FramePing         = "ping"
)

// Client to server frame types.
const (
	FrameHeartbeat = "heartbeat"
	FrameAck       = "ack"
)

// ServerFrame is the wire format pushed down the socket. Replayed marks
// frames delivered from the replay log during a reconnect catch-up.
type ServerFrame struct {
	Type     string `json:"type"`
	Seq      uint64 `json:"seq,omitempty"`
	Payload  string `json:"payload,omitempty"`
	Replayed bool   `json:"replayed,omitempty"`
}

// ClientFrame is the wire format read from the socket. An ack carries the
// highest sequence number the client has applied and doubles as a heartbeat.
type ClientFrame struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq,omitempty"`
}
