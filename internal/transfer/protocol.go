package transfer

import (
	"encoding/json"
	"fmt"

	serrors "github.com/trueLoving/Stationuli/internal/errors"
)

// Message type tags on the wire.
const (
	TypeStartTransfer = "start_transfer"
	TypeChunk         = "chunk"
	TypeComplete      = "complete"
	TypeError         = "error"
)

// Message is one of StartTransfer, Chunk, Complete or ErrorMessage.
type Message interface {
	messageType() string
}

type StartTransfer struct {
	FileName    string `json:"file_name"`
	FileSize    uint64 `json:"file_size"`
	TotalChunks uint64 `json:"total_chunks"`
}

type Chunk struct {
	ChunkID uint64 `json:"chunk_id"`
	Data    []byte `json:"data"`
}

type Complete struct{}

type ErrorMessage struct {
	Message string `json:"message"`
}

func (StartTransfer) messageType() string { return TypeStartTransfer }
func (Chunk) messageType() string         { return TypeChunk }
func (Complete) messageType() string      { return TypeComplete }
func (ErrorMessage) messageType() string  { return TypeError }

// envelope is the base structure every message shares.
type envelope struct {
	Type string `json:"type"`
}

func Encode(m Message) ([]byte, error) {
	var v any
	switch m := m.(type) {
	case StartTransfer:
		v = struct {
			envelope
			StartTransfer
		}{envelope{TypeStartTransfer}, m}
	case Chunk:
		v = struct {
			envelope
			Chunk
		}{envelope{TypeChunk}, m}
	case Complete:
		v = envelope{TypeComplete}
	case ErrorMessage:
		v = struct {
			envelope
			ErrorMessage
		}{envelope{TypeError}, m}
	default:
		return nil, serrors.Protocol("encode", serrors.ErrUnknownMessage, fmt.Sprintf("%T", m))
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, serrors.Protocol("encode", err, m.messageType())
	}
	return b, nil
}

// ParseMessageType extracts the type tag from raw JSON.
func ParseMessageType(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}

// Decode parses a message. An unrecognized tag yields ErrUnknownMessage so
// callers can skip it.
func Decode(data []byte) (Message, error) {
	typ, err := ParseMessageType(data)
	if err != nil {
		return nil, serrors.Protocol("decode", err, "")
	}

	var m Message
	switch typ {
	case TypeStartTransfer:
		var v StartTransfer
		err = json.Unmarshal(data, &v)
		m = v
	case TypeChunk:
		var v Chunk
		err = json.Unmarshal(data, &v)
		m = v
	case TypeComplete:
		m = Complete{}
	case TypeError:
		var v ErrorMessage
		err = json.Unmarshal(data, &v)
		m = v
	default:
		return nil, serrors.Protocol("decode", serrors.ErrUnknownMessage, fmt.Sprintf("type %q", typ))
	}
	if err != nil {
		return nil, serrors.Protocol("decode", err, typ)
	}

	return m, nil
}
