package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrRealtime matches every error produced by this module.
	ErrRealtime = errors.New("realtime")

	ErrNotConnected     = errors.New(ErrMsgNotConnected)
	ErrConnectionClosed = errors.New(ErrMsgConnectionClosed)
	ErrAlreadyConnected = errors.New(ErrMsgAlreadyConnected)
	ErrJoinNotRequested = errors.New("join has not been requested")
)

// RealtimeError wraps a failure of operation Op.
type RealtimeError struct {
	Op  string
	Err error
}

func (e *RealtimeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("realtime: %s failed", e.Op)
	}
	return fmt.Sprintf("realtime: %s: %v", e.Op, e.Err)
}

func (e *RealtimeError) Unwrap() error { return e.Err }

func (e *RealtimeError) Is(target error) bool { return target == ErrRealtime }

// NotConnectedError is returned when Op needs an open connection and Connect
// has not succeeded.
type NotConnectedError struct {
	Op string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("%s. Ensure you call Connection.Connect() before calling Connection.%s()", ErrMsgNotConnected, e.Op)
}

func (e *NotConnectedError) Is(target error) bool {
	return target == ErrRealtime || target == ErrNotConnected
}

// ConnectionFailedError is returned by Connect when the websocket could not be
// opened.
type ConnectionFailedError struct {
	URL string
	Err error
}

func (e *ConnectionFailedError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrMsgConnectionFailed, e.URL, e.Err)
}

func (e *ConnectionFailedError) Unwrap() error { return e.Err }

func (e *ConnectionFailedError) Is(target error) bool { return target == ErrRealtime }

// JoinRejectedError is returned by WaitJoined when the server replied to a
// join with an error status.
type JoinRejectedError struct {
	Topic    string
	Response Payload
}

func (e *JoinRejectedError) Error() string {
	return fmt.Sprintf("%s: topic %q: %v", ErrJoinRejected, e.Topic, e.Response)
}

func (e *JoinRejectedError) Is(target error) bool { return target == ErrRealtime }
