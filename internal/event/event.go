// Package event synthesizes the events the generator submits to the
// ingestion endpoint, including deliberately malformed ones.
package event

import (
	"encoding/json"
	"time"
)

// Type is the kind of user activity an event describes.
type Type string

const (
	TypeUserLogin  Type = "user_login"
	TypeUserLogout Type = "user_logout"
	TypePageView   Type = "page_view"
	TypePurchase   Type = "purchase"
	TypeSignup     Type = "signup"
)

// Types is the fixed set event types are drawn from.
var Types = []Type{TypeUserLogin, TypeUserLogout, TypePageView, TypePurchase, TypeSignup}

// Field names a required top-level field of the wire format.
type Field string

const (
	FieldType          Field = "event_type"
	FieldSchemaVersion Field = "schema_version"
	FieldOccurredAt    Field = "occurred_at"
)

// RequiredFields are the fields a malformed event may be missing. The
// identifier and payload are never removed.
var RequiredFields = []Field{FieldType, FieldSchemaVersion, FieldOccurredAt}

// SchemaVersion is the version stamped on every well-formed event.
const SchemaVersion = 1

// Payload is the tenant-defined body of an event.
type Payload struct {
	UserID    string         `json:"user_id"`
	IP        string         `json:"ip"`
	SessionID string         `json:"session_id"`
	Data      map[string]any `json:"data"`
}

// Event is a single generated event. Values are immutable once built by a
// Factory; a malformed event reports which required field it lacks.
type Event struct {
	ID            string
	Type          Type
	SchemaVersion int
	OccurredAt    time.Time
	Payload       Payload

	missing Field
}

// Missing returns the required field removed from the event, or "" for a
// well-formed event.
func (e Event) Missing() Field {
	return e.missing
}

// Malformed reports whether a required field was removed.
func (e Event) Malformed() bool {
	return e.missing != ""
}

// Has reports whether the required field f is present.
func (e Event) Has(f Field) bool {
	return e.missing != f
}

// wireEvent is the JSON shape accepted by POST /events. Pointer fields let
// a removed field disappear from the document entirely.
type wireEvent struct {
	EventID       string  `json:"event_id"`
	EventType     *Type   `json:"event_type,omitempty"`
	SchemaVersion *int    `json:"schema_version,omitempty"`
	OccurredAt    *string `json:"occurred_at,omitempty"`
	Payload       Payload `json:"payload"`
}

// MarshalJSON encodes the event in the ingestion wire format, omitting the
// missing field of a malformed event.
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		EventID: e.ID,
		Payload: e.Payload,
	}
	if e.Has(FieldType) {
		t := e.Type
		w.EventType = &t
	}
	if e.Has(FieldSchemaVersion) {
		v := e.SchemaVersion
		w.SchemaVersion = &v
	}
	if e.Has(FieldOccurredAt) {
		ts := e.OccurredAt.UTC().Format(time.RFC3339Nano)
		w.OccurredAt = &ts
	}
	return json.Marshal(w)
}
