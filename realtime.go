package realtime

import "context"

// Payload is the structured body carried by an Envelope.
type Payload = map[string]any

// Callback receives the payload of every inbound envelope whose event matches
// the registration it was added with.
type Callback func(payload Payload)

// Envelope is the wire-level message unit exchanged with the server.
//
// On the wire it is a JSON object:
//
//	{"topic": "room:1", "event": "new_msg", "payload": {"body": "hi"}, "ref": null}
//
// Ref is the correlation id. It is nil for frames that do not expect a reply.
type Envelope struct {
	Topic   string  `json:"topic"`
	Event   string  `json:"event"`
	Payload Payload `json:"payload"`
	Ref     *string `json:"ref"`
}

// Status is the lifecycle state of a Connection.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnected
	StatusClosing
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnected:
		return "connected"
	case StatusClosing:
		return "closing"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection owns a single websocket to a realtime server and multiplexes it
// into topic subscriptions.
//
// Example usage:
//
//	import "github.com/luciancaetano/realtime/ws"
//
//	conn := ws.New(ws.DefaultConfig("ws://localhost:4000/socket/websocket"))
//	if err := conn.Connect(ctx); err != nil {
//	    return err
//	}
//
//	ch, _ := conn.SetChannel("room:1")
//	ch.On("new_msg", func(payload realtime.Payload) {
//	    log.Printf("new message: %v", payload["body"])
//	})
//	ch.Join(ctx)
//
//	conn.Run(ctx)
type Connection interface {
	// ID returns the unique identifier of this connection.
	ID() string

	// Connect dials the server. It must be called once before any other
	// operation that needs an open socket.
	//
	// Returns a *ConnectionFailedError when the websocket could not be opened.
	Connect(ctx context.Context) error

	// SetChannel creates a Channel for topic and registers it. One topic may
	// have any number of channels; all of them receive the topic's events.
	//
	// Returns a *NotConnectedError if Connect has not succeeded.
	SetChannel(topic string) (Channel, error)

	// Listen reads inbound frames and dispatches them to channel listeners
	// until the connection closes (returns nil) or ctx is done (returns
	// ctx.Err()). Reply frames are consumed internally and never reach
	// listeners.
	//
	// With inline dispatch, callbacks run on the Listen goroutine: a slow
	// callback delays every later frame.
	Listen(ctx context.Context) error

	// KeepAlive sends a heartbeat on the phoenix topic every heartbeat
	// interval until the connection closes or ctx is done.
	KeepAlive(ctx context.Context) error

	// Run runs Listen and KeepAlive concurrently and returns when both stop.
	Run(ctx context.Context) error

	// Send writes a single envelope to the socket.
	Send(ctx context.Context, env Envelope) error

	// Summary returns a snapshot of the topic to channels registry.
	Summary() map[string][]Channel

	// Status returns the current lifecycle state.
	Status() Status

	// Done is closed once the connection reaches StatusClosed.
	Done() <-chan struct{}

	// Err returns the cause of termination, or nil for a clean close or a
	// connection that is still open.
	Err() error

	// Close sends a normal-closure frame and closes the socket. It is safe to
	// call more than once.
	Close(ctx context.Context) error
}

// Channel is a subscription to one topic over a shared Connection.
type Channel interface {
	// Topic returns the topic this channel subscribes to.
	Topic() string

	// Params returns the configuration the channel was created with.
	Params() map[string]any

	// Join asks the server to subscribe this channel to its topic. It returns
	// once the join frame is written and does not wait for the server; use
	// WaitJoined for that.
	Join(ctx context.Context) error

	// WaitJoined blocks until the server acknowledges the last Join. Listen
	// must be running for the acknowledgement to be observed.
	WaitJoined(ctx context.Context) error

	// Joined reports whether the server acknowledged the last Join.
	Joined() bool

	// Leave asks the server to unsubscribe this channel.
	Leave(ctx context.Context) error

	// Push sends an event with payload on this channel's topic.
	Push(ctx context.Context, event string, payload Payload) error

	// On registers callback for event and returns the channel for chaining.
	// Several callbacks may be registered for the same event; all of them fire
	// in registration order.
	On(event string, callback Callback) Channel

	// Off removes every callback registered for event.
	Off(event string)

	// Listeners returns the event of every registration, in order.
	Listeners() []string
}
