package realtime

// Well-known events of the channel protocol.
const (
	EventJoin      = "phx_join"
	EventLeave     = "phx_leave"
	EventReply     = "phx_reply"
	EventClose     = "phx_close"
	EventError     = "phx_error"
	EventHeartbeat = "heartbeat"
)

// TopicPhoenix is the reserved system topic. Only heartbeats are sent on it.
const TopicPhoenix = "phoenix"

// Reply statuses carried in the payload of a phx_reply.
const (
	ReplyStatusOK    = "ok"
	ReplyStatusError = "error"
)

// Standard error messages
const (
	// Protocol errors
	ErrInvalidMessageFormat = "invalid message format"
	ErrMissingTopic         = "envelope topic is empty"
	ErrMissingEvent         = "envelope event is empty"

	// Connection errors
	ErrMsgNotConnected     = "a websocket connection has not been established"
	ErrMsgConnectionClosed = "connection is closed"
	ErrMsgAlreadyConnected = "connection already established"
	ErrMsgConnectionFailed = "connection failed"
	ErrFailedToEncode      = "failed to encode message"
	ErrJoinRejected        = "join rejected"
)

// HeartbeatPayload returns the fixed payload sent with every heartbeat.
func HeartbeatPayload() Payload {
	return Payload{"msg": "ping"}
}
