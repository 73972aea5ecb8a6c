// Package realtime provides a client for Phoenix-style realtime servers.
//
// A single websocket connection is multiplexed into any number of topic
// subscriptions called channels. Each channel holds event listeners; inbound
// frames are routed by topic, then by event, to the registered callbacks. A
// heartbeat keeps the connection alive.
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/realtime"
//	    "github.com/luciancaetano/realtime/ws"
//	)
//
//	conn := ws.New(ws.DefaultConfig("ws://localhost:4000/socket/websocket"))
//	if err := conn.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	ch, err := conn.SetChannel("room:1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ch.On("new_msg", func(payload realtime.Payload) {
//	    fmt.Println(payload["body"])
//	})
//	if err := ch.Join(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Blocks until the connection closes or ctx is cancelled.
//	conn.Run(ctx)
//
// # Protocol Format
//
// Every frame is a JSON text message:
//
//	{"topic": string, "event": string, "payload": object, "ref": string|null}
//
// phx_join and phx_leave manage subscriptions, phx_reply acknowledges them and
// heartbeat frames travel on the reserved "phoenix" topic. Replies are consumed
// by the client and never delivered to listeners.
//
// # Dispatch
//
// By default callbacks run inline on the Listen goroutine, in registration
// order. A callback that blocks stalls dispatch for every channel. Configure
// ws.AsyncDispatch to run each callback on its own goroutine instead; ordering
// is then not guaranteed. A panicking callback is recovered and logged.
//
// # Errors
//
// Every error returned by the package matches errors.Is(err, realtime.ErrRealtime).
// Use errors.As with *NotConnectedError, *ConnectionFailedError,
// *JoinRejectedError or *RealtimeError for detail.
//
// # Shutdown
//
// Close sends a normal-closure frame and closes the socket. Listen and
// KeepAlive return nil once the connection is closed, Done is closed and Err
// reports the cause when the server or the network ended the connection.
package realtime
