package push

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/klaxon/internal/alert"
)

// Message is the envelope the push transport posts for each delivery.
type Message struct {
	Data         *Data         `json:"data"`
	Notification *Notification `json:"notification,omitempty"`
}

// Data is the alert portion of a push message. Every field may be absent.
type Data struct {
	AlertID   flexString      `json:"alertId"`
	Type      string          `json:"type"`
	Lat       json.RawMessage `json:"lat"`
	Lng       json.RawMessage `json:"lng"`
	Timestamp string          `json:"timestamp"`
}

// Notification is the display part of a push message. klaxon renders its
// own toast, so this is informational only.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// flexString accepts a JSON string or number. Push transports carry data
// values as strings, but some senders emit numeric ids.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// Converted is the result of converting a push message.
type Converted struct {
	Record alert.Record
	// SynthesizedID is set when the message carried no alertId and the
	// record id was generated locally.
	SynthesizedID bool
}

// Convert turns a push message into an alert record. It never fails:
// missing or malformed fields are replaced with sentinels. now is the
// delivery time.
func Convert(msg Message, now time.Time) Converted {
	var d Data
	if msg.Data != nil {
		d = *msg.Data
	}

	out := Converted{
		Record: alert.Record{
			ID:   strings.TrimSpace(string(d.AlertID)),
			Kind: d.Type,
			Location: alert.Location{
				Lat: alert.ParseCoordinate(d.Lat),
				Lng: alert.ParseCoordinate(d.Lng),
			},
			Status:     alert.StatusPending,
			CreatedAt:  d.Timestamp,
			Source:     alert.SourcePush,
			ReceivedAt: now,
		},
	}
	if out.Record.ID == "" {
		out.Record.ID = ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
		out.SynthesizedID = true
	}
	if out.Record.Kind == "" {
		out.Record.Kind = alert.DefaultKind
	}
	if out.Record.CreatedAt == "" {
		out.Record.CreatedAt = now.UTC().Format(time.RFC3339Nano)
	}
	return out
}
