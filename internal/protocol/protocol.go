package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/luciancaetano/realtime"
)

const (
	maxFrameSize = 10 * 1024 * 1024 // 10MB max frame size
)

// Encode serialises env as a JSON text frame. A nil payload is sent as an
// empty object so the server always sees an object.
func Encode(env realtime.Envelope) ([]byte, error) {
	if env.Topic == "" {
		return nil, errors.New(realtime.ErrMissingTopic)
	}
	if env.Event == "" {
		return nil, errors.New(realtime.ErrMissingEvent)
	}
	if env.Payload == nil {
		env.Payload = realtime.Payload{}
	}

	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", realtime.ErrFailedToEncode, err)
	}
	if len(out) > maxFrameSize {
		return nil, fmt.Errorf("frame size %d exceeds maximum %d bytes", len(out), maxFrameSize)
	}
	return out, nil
}

// Decode parses a JSON text frame into an Envelope. Topic and event must be
// present; payload and ref are optional.
func Decode(data []byte) (realtime.Envelope, error) {
	if len(data) > maxFrameSize {
		return realtime.Envelope{}, fmt.Errorf("frame size %d exceeds maximum %d bytes", len(data), maxFrameSize)
	}

	var env realtime.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return realtime.Envelope{}, fmt.Errorf("%s: %w", realtime.ErrInvalidMessageFormat, err)
	}
	if env.Topic == "" {
		return realtime.Envelope{}, errors.New(realtime.ErrMissingTopic)
	}
	if env.Event == "" {
		return realtime.Envelope{}, errors.New(realtime.ErrMissingEvent)
	}
	return env, nil
}

// Reply is the payload shape of a phx_reply.
type Reply struct {
	Status   string
	Response realtime.Payload
}

// DecodeReply extracts the status and response from a phx_reply payload.
// Missing fields are left empty.
func DecodeReply(payload realtime.Payload) Reply {
	var r Reply
	if s, ok := payload["status"].(string); ok {
		r.Status = s
	}
	if resp, ok := payload["response"].(map[string]any); ok {
		r.Response = resp
	}
	return r
}
