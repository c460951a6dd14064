// Package realtime fans row-level change events out to websocket clients.
// Clients join named channels scoped to one table, an optional event set and
// an optional column filter; the hub delivers every matching change as a
// "change" frame on that channel.
package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType discriminates protocol frames.
type MessageType string

const (
	TypeJoin      MessageType = "join"
	TypeLeave     MessageType = "leave"
	TypeHeartbeat MessageType = "heartbeat"
	TypeAck       MessageType = "ack"
	TypeError     MessageType = "error"
	TypeChange    MessageType = "change"
	// TypeResync tells clients that changes may have been missed and every
	// view should re-fetch its snapshot.
	TypeResync MessageType = "resync"
)

// Event is the kind of row change.
type Event string

const (
	EventInsert Event = "insert"
	EventUpdate Event = "update"
	EventDelete Event = "delete"
)

// ParseEvent accepts insert, update and delete in lower case.
func ParseEvent(s string) (Event, error) {
	switch e := Event(s); e {
	case EventInsert, EventUpdate, EventDelete:
		return e, nil
	}
	return "", fmt.Errorf("unknown event %q", s)
}

// Change is one row-level change as published by the database triggers.
type Change struct {
	Event           Event           `json:"event"`
	Table           string          `json:"table"`
	NewRow          json.RawMessage `json:"new_row"`
	OldRow          json.RawMessage `json:"old_row"`
	CommitTimestamp time.Time       `json:"commit_timestamp"`
	// Truncated marks a change whose rows were cut to their key columns
	// because the full payload did not fit a notification.
	Truncated bool `json:"truncated,omitempty"`
}

// KeysOnly reports whether the row cannot be applied as is and has to be
// re-read. Deletes only need the key.
func (c Change) KeysOnly() bool {
	return c.Truncated && c.Event != EventDelete
}

// Row returns the row the change is about: the new row, or the old one for
// deletes.
func (c Change) Row() json.RawMessage {
	if c.Event == EventDelete {
		return c.OldRow
	}
	return c.NewRow
}

// Message is a protocol frame in either direction.
type Message struct {
	Type    MessageType `json:"type"`
	Ref     string      `json:"ref,omitempty"`
	Channel string      `json:"channel,omitempty"`
	Table   string      `json:"table,omitempty"`
	Filter  string      `json:"filter,omitempty"`
	Events  []Event     `json:"events,omitempty"`
	Error   string      `json:"error,omitempty"`
	Payload *Change     `json:"payload,omitempty"`
}

var ErrMalformedChange = errors.New("malformed change payload")

var jsonNull = []byte("null")

func isEmptyRow(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, jsonNull)
}

// DecodeChange parses a trigger payload and checks that it carries the row
// its event needs.
func DecodeChange(payload []byte) (Change, error) {
	var ch Change
	if err := json.Unmarshal(payload, &ch); err != nil {
		return Change{}, fmt.Errorf("%w: %v", ErrMalformedChange, err)
	}
	if _, err := ParseEvent(string(ch.Event)); err != nil {
		return Change{}, fmt.Errorf("%w: %v", ErrMalformedChange, err)
	}
	if ch.Table == "" {
		return Change{}, fmt.Errorf("%w: missing table", ErrMalformedChange)
	}
	if isEmptyRow(ch.NewRow) {
		ch.NewRow = nil
	}
	if isEmptyRow(ch.OldRow) {
		ch.OldRow = nil
	}
	if ch.Row() == nil {
		return Change{}, fmt.Errorf("%w: %s event without row", ErrMalformedChange, ch.Event)
	}
	return ch, nil
}
