// Package journal records an audit trail of alert deliveries and read-state
// changes. It is write-mostly; the live alert collection never reads it.
package journal

import (
	"context"
	"time"

	"github.com/linnemanlabs/klaxon/internal/alert"
)

// Event is what happened to an alert.
type Event string

const (
	EventDelivered    Event = "delivered"
	EventAcknowledged Event = "acknowledged"
	EventCleared      Event = "cleared"
)

// Entry is one journal line.
type Entry struct {
	AlertID   string         `json:"alert_id,omitempty"`
	Event     Event          `json:"event"`
	Source    alert.Source   `json:"source,omitempty"`
	Kind      string         `json:"kind,omitempty"`
	Location  alert.Location `json:"location"`
	CreatedAt string         `json:"created_at,omitempty"`
	// Origin says who acknowledged or cleared: "local" or "backend".
	Origin string `json:"origin,omitempty"`
	// Effects is true when sound and toast were fired for the delivery.
	Effects bool      `json:"effects"`
	At      time.Time `json:"at"`
}

// Journal persists entries.
type Journal interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// FromRecord builds a delivery entry for rec.
func FromRecord(rec alert.Record, effects bool, at time.Time) Entry {
	return Entry{
		AlertID:   rec.ID,
		Event:     EventDelivered,
		Source:    rec.Source,
		Kind:      rec.Kind,
		Location:  rec.Location,
		CreatedAt: rec.CreatedAt,
		Effects:   effects,
		At:        at,
	}
}
