package websocket

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/luciancaetano/realtime"
	"github.com/luciancaetano/realtime/internal/protocol"
)

type listener struct {
	event    string
	callback realtime.Callback
}

// Channel implements the realtime.Channel interface
type Channel struct {
	conn   *Connection
	topic  string
	params map[string]any

	mu        sync.RWMutex
	listeners []listener

	joined   bool
	joinRef  string
	joinWait chan struct{} // closed when the pending join is answered
	answered bool
	joinErr  error
}

func newChannel(conn *Connection, topic string, params map[string]any) *Channel {
	p := make(map[string]any, len(params))
	for k, v := range params {
		p[k] = v
	}
	return &Channel{
		conn:   conn,
		topic:  topic,
		params: p,
	}
}

// Topic returns the channel's topic
func (ch *Channel) Topic() string {
	return ch.topic
}

// Params returns the channel's configuration
func (ch *Channel) Params() map[string]any {
	return ch.params
}

// Join sends a join request for the channel's topic. It does not wait for the
// server's reply.
func (ch *Channel) Join(ctx context.Context) error {
	ref := uuid.New().String()

	ch.mu.Lock()
	ch.joined = false
	ch.joinRef = ref
	ch.joinErr = nil
	if ch.joinWait == nil || ch.answered {
		ch.joinWait = make(chan struct{})
		ch.answered = false
	}
	ch.mu.Unlock()

	env := realtime.Envelope{
		Topic:   ch.topic,
		Event:   realtime.EventJoin,
		Payload: realtime.Payload{},
		Ref:     &ref,
	}
	if err := ch.conn.send(ctx, env); err != nil {
		ch.conn.logger.Error().Err(err).Str("topic", ch.topic).Msg("join failed")
		return &realtime.RealtimeError{Op: "join", Err: err}
	}

	ch.conn.logger.Debug().Str("topic", ch.topic).Str("ref", ref).Msg("join requested")
	return nil
}

// WaitJoined blocks until the last join is answered, the connection closes or
// ctx is done
func (ch *Channel) WaitJoined(ctx context.Context) error {
	ch.mu.RLock()
	wait := ch.joinWait
	ch.mu.RUnlock()

	if wait == nil {
		return &realtime.RealtimeError{Op: "join", Err: realtime.ErrJoinNotRequested}
	}

	select {
	case <-wait:
		ch.mu.RLock()
		defer ch.mu.RUnlock()
		return ch.joinErr
	case <-ch.conn.done:
		return &realtime.RealtimeError{Op: "join", Err: realtime.ErrConnectionClosed}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Joined reports whether the server accepted the last join
func (ch *Channel) Joined() bool {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.joined
}

// Leave sends a leave request for the channel's topic
func (ch *Channel) Leave(ctx context.Context) error {
	ref := uuid.New().String()
	ch.markLeft()

	env := realtime.Envelope{
		Topic:   ch.topic,
		Event:   realtime.EventLeave,
		Payload: realtime.Payload{},
		Ref:     &ref,
	}
	if err := ch.conn.send(ctx, env); err != nil {
		return &realtime.RealtimeError{Op: "leave", Err: err}
	}
	return nil
}

// Push sends event with payload on the channel's topic
func (ch *Channel) Push(ctx context.Context, event string, payload realtime.Payload) error {
	ref := uuid.New().String()
	env := realtime.Envelope{
		Topic:   ch.topic,
		Event:   event,
		Payload: payload,
		Ref:     &ref,
	}
	if err := ch.conn.send(ctx, env); err != nil {
		return &realtime.RealtimeError{Op: "push", Err: err}
	}
	return nil
}

// On registers callback for event
func (ch *Channel) On(event string, callback realtime.Callback) realtime.Channel {
	ch.mu.Lock()
	ch.listeners = append(ch.listeners, listener{event: event, callback: callback})
	ch.mu.Unlock()
	return ch
}

// Off removes every callback registered for event
func (ch *Channel) Off(event string) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	kept := make([]listener, 0, len(ch.listeners))
	for _, l := range ch.listeners {
		if l.event != event {
			kept = append(kept, l)
		}
	}
	ch.listeners = kept
}

// Listeners returns the registered events in registration order
func (ch *Channel) Listeners() []string {
	ch.mu.RLock()
	defer ch.mu.RUnlock()

	events := make([]string, len(ch.listeners))
	for i, l := range ch.listeners {
		events[i] = l.event
	}
	return events
}

// trigger invokes every listener registered for env.Event
func (ch *Channel) trigger(env realtime.Envelope) {
	if env.Event == realtime.EventClose || env.Event == realtime.EventError {
		ch.markLeft()
	}

	ch.mu.RLock()
	var matched []realtime.Callback
	for _, l := range ch.listeners {
		if l.event == env.Event {
			matched = append(matched, l.callback)
		}
	}
	ch.mu.RUnlock()

	for _, cb := range matched {
		ch.conn.invoke(env, cb)
	}
}

// handleReply resolves the pending join when env answers it
func (ch *Channel) handleReply(env realtime.Envelope) {
	if env.Ref == nil {
		return
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.joinWait == nil || ch.answered || *env.Ref != ch.joinRef {
		return
	}

	reply := protocol.DecodeReply(env.Payload)
	if reply.Status == realtime.ReplyStatusOK {
		ch.joined = true
		ch.conn.logger.Debug().Str("topic", ch.topic).Msg("join acknowledged")
	} else {
		ch.joinErr = &realtime.JoinRejectedError{Topic: ch.topic, Response: reply.Response}
		ch.conn.logger.Warn().Str("topic", ch.topic).Str("status", reply.Status).Msg("join rejected")
	}
	ch.answered = true
	close(ch.joinWait)
}

func (ch *Channel) markLeft() {
	ch.mu.Lock()
	ch.joined = false
	ch.mu.Unlock()
}
