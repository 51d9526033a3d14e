package protocol

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var ErrEmptyFrame = errors.New("empty frame")

// Codec converts envelopes to and from transport frames.
type Codec interface {
	Name() string
	Marshal(Envelope) ([]byte, error)
	Unmarshal([]byte) (Envelope, error)
}

var (
	JSON  Codec = jsonCodec{}
	Proto Codec = protoCodec{}
)

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func (jsonCodec) Unmarshal(frame []byte) (Envelope, error) {
	if len(frame) == 0 {
		return Envelope{}, Errorf(CodeMalformed, "%v", ErrEmptyFrame)
	}
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, Errorf(CodeMalformed, "invalid envelope: %v", err)
	}
	if env.Type == "" {
		return Envelope{}, Errorf(CodeMalformed, "envelope has no type")
	}
	return env, nil
}

// protoCodec carries the envelope as a google.protobuf.Struct so binary
// clients share the exact JSON field layout.
type protoCodec struct{}

func (protoCodec) Name() string { return "proto" }

func (protoCodec) Marshal(env Envelope) ([]byte, error) {
	var data map[string]any
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("unable to convert %s payload: %w", env.Type, err)
		}
	}
	s, err := structpb.NewStruct(map[string]any{
		"type": string(env.Type),
		"data": data,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to build struct for %s: %w", env.Type, err)
	}
	return proto.Marshal(s)
}

func (protoCodec) Unmarshal(frame []byte) (Envelope, error) {
	if len(frame) == 0 {
		return Envelope{}, Errorf(CodeMalformed, "%v", ErrEmptyFrame)
	}
	var s structpb.Struct
	if err := proto.Unmarshal(frame, &s); err != nil {
		return Envelope{}, Errorf(CodeMalformed, "invalid protobuf envelope: %v", err)
	}
	fields := s.GetFields()
	msgType := fields["type"].GetStringValue()
	if msgType == "" {
		return Envelope{}, Errorf(CodeMalformed, "envelope has no type")
	}
	env := Envelope{Type: MessageType(msgType)}
	if data, ok := fields["data"]; ok {
		raw, err := data.MarshalJSON()
		if err != nil {
			return Envelope{}, Errorf(CodeMalformed, "invalid protobuf payload: %v", err)
		}
		env.Data = raw
	}
	return env, nil
}
