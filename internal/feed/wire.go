package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"despesas/internal/core"
)

// MessageType tags a wire message.
type MessageType string

const (
	MessageSnapshot MessageType = "snapshot"
	MessageError    MessageType = "error"
)

// Message is the JSON frame exchanged over the websocket feed.
type Message struct {
	Type      MessageType    `json:"type"`
	Records   []core.Expense `json:"records,omitempty"`
	FromCache bool           `json:"fromCache,omitempty"`
	Version   uint64         `json:"version,omitempty"`
	Kind      Kind           `json:"kind,omitempty"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// MessageFromEvent encodes an event for the wire.
func MessageFromEvent(ev Event) Message {
	if ev.Err != nil {
		msg := ""
		if ev.Err.Err != nil {
			msg = ev.Err.Err.Error()
		}
		return Message{Type: MessageError, Kind: ev.Err.Kind, Message: msg, Timestamp: time.Now().UTC()}
	}
	s := ev.Snapshot
	return Message{
		Type:      MessageSnapshot,
		Records:   s.Records,
		FromCache: s.FromCache,
		Version:   s.Version,
		Timestamp: s.Taken.UTC(),
	}
}

// Event decodes a wire message.
func (m Message) Event() (Event, error) {
	switch m.Type {
	case MessageSnapshot:
		records := m.Records
		if records == nil {
			records = []core.Expense{}
		}
		return Event{Snapshot: &Snapshot{Records: records, FromCache: m.FromCache, Version: m.Version, Taken: m.Timestamp}}, nil
	case MessageError:
		kind := m.Kind
		if kind != KindPermissionDenied && kind != KindNotFound {
			kind = KindOther
		}
		return Event{Err: NewError(kind, errors.New(m.Message))}, nil
	}
	return Event{}, fmt.Errorf("unknown feed message type %q", m.Type)
}

// ToJSON serializes the message.
func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
