// Package codec encodes bus events for the wire.
//
// Every decoded event is validated, so transports hand consumers only
// envelopes they can understand.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/aescanero/costume-orders/pkg/domain"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	JSON    = "json"
	MsgPack = "msgpack"
)

// Codec converts events to and from bytes.
type Codec interface {
	Name() string
	ContentType() string
	Marshal(event domain.Event) ([]byte, error)
	Unmarshal(data []byte) (domain.Event, error)
}

// New returns the codec registered under name.
func New(name string) (Codec, error) {
	switch name {
	case "", JSON:
		return jsonCodec{}, nil
	case MsgPack:
		return msgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown event codec %q", name)
	}
}

// ForContentType picks the codec that produced a payload.
func ForContentType(contentType string) (Codec, error) {
	switch contentType {
	case "", "application/json":
		return jsonCodec{}, nil
	case "application/msgpack":
		return msgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported content type %q", contentType)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string        { return JSON }
func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Marshal(event domain.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte) (domain.Event, error) {
	var event domain.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return event, event.Validate()
}

// msgpackCodec reuses the json struct tags so both encodings share field names.
type msgpackCodec struct{}

func (msgpackCodec) Name() string        { return MsgPack }
func (msgpackCodec) ContentType() string { return "application/msgpack" }

func (msgpackCodec) Marshal(event domain.Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(event); err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(data []byte) (domain.Event, error) {
	var event domain.Event
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(&event); err != nil {
		return domain.Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return event, event.Validate()
}
