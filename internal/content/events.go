package content

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a kind of content event. The values are persisted.
type EventType string

const (
	EventCreated       EventType = "ContentCreated"
	EventUpdated       EventType = "ContentUpdated"
	EventStatusChanged EventType = "ContentStatusChanged"
	EventDeleted       EventType = "ContentDeleted"
)

// Event is a single change to a content item.
type Event interface {
	Type() EventType
	AggregateID() string
}

// Created starts a new stream.
type Created struct {
	ID          string      `json:"id"`
	ContentType string      `json:"content_type"`
	Data        Data        `json:"data"`
	Status      Status      `json:"status"`
	Sensitivity Sensitivity `json:"sensitivity,omitempty"`
	CreatedBy   string      `json:"created_by"`
}

func (e Created) Type() EventType     { return EventCreated }
func (e Created) AggregateID() string { return e.ID }

// Updated replaces the data map of an item.
type Updated struct {
	ID        string `json:"id"`
	Data      Data   `json:"data"`
	UpdatedBy string `json:"updated_by"`
}

func (e Updated) Type() EventType     { return EventUpdated }
func (e Updated) AggregateID() string { return e.ID }

// StatusChanged moves an item to a new status.
type StatusChanged struct {
	ID        string `json:"id"`
	NewStatus Status `json:"new_status"`
	UpdatedBy string `json:"updated_by"`
}

func (e StatusChanged) Type() EventType     { return EventStatusChanged }
func (e StatusChanged) AggregateID() string { return e.ID }

// Deleted tombstones an item. No event may follow it.
type Deleted struct {
	ID        string `json:"id"`
	DeletedBy string `json:"deleted_by"`
}

func (e Deleted) Type() EventType     { return EventDeleted }
func (e Deleted) AggregateID() string { return e.ID }

// Envelope is an event positioned in its stream.
type Envelope struct {
	ContentID  string    `json:"content_id"`
	Version    int64     `json:"version"`
	Event      Event     `json:"-"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Type returns the type of the wrapped event.
func (e Envelope) Type() EventType {
	if e.Event == nil {
		return ""
	}
	return e.Event.Type()
}

// Actor returns the user recorded on the wrapped event.
func (e Envelope) Actor() string {
	switch ev := e.Event.(type) {
	case Created:
		return ev.CreatedBy
	case Updated:
		return ev.UpdatedBy
	case StatusChanged:
		return ev.UpdatedBy
	case Deleted:
		return ev.DeletedBy
	}
	return ""
}

// MarshalJSON includes the event type and payload alongside the position.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ContentID  string    `json:"content_id"`
		Version    int64     `json:"version"`
		Type       EventType `json:"type"`
		Event      Event     `json:"event"`
		OccurredAt time.Time `json:"occurred_at"`
	}{e.ContentID, e.Version, e.Type(), e.Event, e.OccurredAt})
}

// MarshalEvent serializes an event payload for storage.
func MarshalEvent(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ev.Type(), err)
	}
	return data, nil
}

// UnmarshalEvent decodes a stored payload of the given type.
func UnmarshalEvent(t EventType, payload []byte) (Event, error) {
	var (
		ev  Event
		err error
	)
	switch t {
	case EventCreated:
		var e Created
		err = json.Unmarshal(payload, &e)
		ev = e
	case EventUpdated:
		var e Updated
		err = json.Unmarshal(payload, &e)
		ev = e
	case EventStatusChanged:
		var e StatusChanged
		err = json.Unmarshal(payload, &e)
		ev = e
	case EventDeleted:
		var e Deleted
		err = json.Unmarshal(payload, &e)
		ev = e
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", t, err)
	}
	return ev, nil
}
