package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/saviobatista/globe-worker/internal/types"
)

const (
	NameJSON    = "json"
	NameMsgpack = "msgpack"
)

// ErrUnknownCodec is returned by New for an unsupported codec name
var ErrUnknownCodec = errors.New("unknown codec")

// Codec converts message envelopes to and from their wire form
type Codec interface {
	Name() string
	ContentType() string
	EncodeStates(msg *types.StatesMessage) ([]byte, error)
	DecodeStates(data []byte) (*types.StatesMessage, error)
	EncodePoints(msg *types.PointsMessage) ([]byte, error)
	DecodePoints(data []byte) (*types.PointsMessage, error)
}

// New returns the codec registered under name
func New(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameJSON, "":
		return JSON{}, nil
	case NameMsgpack:
		return Msgpack{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// JSON is the default codec
type JSON struct{}

func (JSON) Name() string        { return NameJSON }
func (JSON) ContentType() string { return "application/json" }

func (JSON) EncodeStates(msg *types.StatesMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal states: %w", err)
	}
	return data, nil
}

// DecodeStates accepts either a states envelope or a bare array of vectors
func (JSON) DecodeStates(data []byte) (*types.StatesMessage, error) {
	var msg types.StatesMessage
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &msg.States); err != nil {
			return nil, fmt.Errorf("failed to unmarshal states: %w", err)
		}
		return &msg, nil
	}
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal states: %w", err)
	}
	return &msg, nil
}

func (JSON) EncodePoints(msg *types.PointsMessage) ([]byte, error) {
	data, err := json.Marshal(normalize(msg))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal points: %w", err)
	}
	return data, nil
}

func (JSON) DecodePoints(data []byte) (*types.PointsMessage, error) {
	var msg types.PointsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal points: %w", err)
	}
	return &msg, nil
}

// Msgpack is a compact binary codec for high-volume feeds
type Msgpack struct{}

func (Msgpack) Name() string        { return NameMsgpack }
func (Msgpack) ContentType() string { return "application/msgpack" }

func (Msgpack) EncodeStates(msg *types.StatesMessage) ([]byte, error) {
	data, err := msgpack.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal states: %w", err)
	}
	return data, nil
}

func (Msgpack) DecodeStates(data []byte) (*types.StatesMessage, error) {
	var msg types.StatesMessage
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal states: %w", err)
	}
	return &msg, nil
}

func (Msgpack) EncodePoints(msg *types.PointsMessage) ([]byte, error) {
	data, err := msgpack.Marshal(normalize(msg))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal points: %w", err)
	}
	return data, nil
}

func (Msgpack) DecodePoints(data []byte) (*types.PointsMessage, error) {
	var msg types.PointsMessage
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal points: %w", err)
	}
	return &msg, nil
}

// normalize makes sure an empty batch is encoded as an empty array
func normalize(msg *types.PointsMessage) *types.PointsMessage {
	if msg == nil {
		return &types.PointsMessage{Points: []types.Point{}}
	}
	if msg.Points == nil {
		return &types.PointsMessage{Points: []types.Point{}}
	}
	return msg
}
