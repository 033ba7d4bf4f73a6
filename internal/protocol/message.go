package protocol

import (
	"encoding/json"
	"errors"
)

const (
	TypeState   = "state"
	TypeToasts  = "toasts"
	TypeRefetch = "refetch"
	TypePing    = "ping"
	TypePong    = "pong"
	TypeError   = "error"
)

var ErrNoType = errors.New("message has no type")

// Message is the websocket envelope in both directions.
type Message struct {
	Type     string `json:"type"`
	Resource string `json:"resource,omitempty"`
	Data     any    `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
}

func State(resource string, view any) Message {
	return Message{Type: TypeState, Resource: resource, Data: view}
}

func Toasts(toasts any) Message {
	return Message{Type: TypeToasts, Data: toasts}
}

func Errorf(resource, msg string) Message {
	return Message{Type: TypeError, Resource: resource, Error: msg}
}

func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, err
	}
	if msg.Type == "" {
		return msg, ErrNoType
	}
	return msg, nil
}
