package protocol

import (
	"fmt"

	"github.com/goccy/go-json"
)

const (
	Version        = "1.0"
	DefaultVersion = Version
)

type MessageType string

// Client to server.
const (
	TypeInitSession  MessageType = "init_session"
	TypeOrder        MessageType = "order"
	TypeCancel       MessageType = "cancel"
	TypePing         MessageType = "ping"
	TypeCloseSession MessageType = "close_session"
)

// Server to client.
const (
	TypeSessionReady  MessageType = "session_ready"
	TypeTick          MessageType = "tick"
	TypeFill          MessageType = "fill"
	TypeAccountUpdate MessageType = "account_update"
	TypeSessionEnd    MessageType = "session_end"
	TypeError         MessageType = "error"
	TypeOrderAck      MessageType = "order_ack"
	TypePong          MessageType = "pong"
)

var supportedVersions = map[string]struct{}{
	"1.0": {},
}

// IsSupportedVersion reports whether v can be served. An empty version means
// the client did not ask for one and gets DefaultVersion.
func IsSupportedVersion(v string) bool {
	if v == "" {
		return true
	}
	_, ok := supportedVersions[v]
	return ok
}

// Envelope is the {type, data} frame every message travels in.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(msgType MessageType, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("unable to encode %s payload: %w", msgType, err)
	}
	return Envelope{Type: msgType, Data: raw}, nil
}

// Decode unmarshals the payload into v and validates it. Any failure is
// reported as a malformed message.
func (e Envelope) Decode(v any) error {
	data := e.Data
	if len(data) == 0 {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return Errorf(CodeMalformed, "invalid %s payload: %v", e.Type, err)
	}
	if err := Validate(v); err != nil {
		return Errorf(CodeMalformed, "invalid %s payload: %v", e.Type, err)
	}
	return nil
}

func (e Envelope) String() string {
	return fmt.Sprintf("%s %s", e.Type, e.Data)
}

func (t MessageType) Inbound() bool {
	switch t {
	case TypeInitSession, TypeOrder, TypeCancel, TypePing, TypeCloseSession:
		return true
	}
	return false
}
