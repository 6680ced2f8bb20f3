// Package alert defines the emergency alert record shared by every klaxon
// component.
package alert

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultKind is the alert category this deployment handles.
const DefaultKind = "fire"

// Status tracks where an alert is in its read lifecycle.
type Status string

const (
	// StatusPending means the station has not acknowledged the alert yet
	StatusPending Status = "pending"
	// StatusAcknowledged means the alert has been read/acknowledged
	StatusAcknowledged Status = "acknowledged"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusAcknowledged
}

// Source identifies the channel that first delivered an alert.
type Source string

const (
	SourcePush Source = "push"
	SourcePoll Source = "poll"
)

// Location is a coordinate pair. NaN marks a coordinate that was missing or
// could not be parsed.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Unknown returns a Location with both coordinates set to the NaN sentinel.
func Unknown() Location {
	return Location{Lat: math.NaN(), Lng: math.NaN()}
}

// Valid reports whether both coordinates are usable numbers.
func (l Location) Valid() bool {
	return !math.IsNaN(l.Lat) && !math.IsNaN(l.Lng) && !math.IsInf(l.Lat, 0) && !math.IsInf(l.Lng, 0)
}

// MarshalJSON renders NaN coordinates as null, encoding/json rejects NaN.
func (l Location) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}{
		Lat: finite(l.Lat),
		Lng: finite(l.Lng),
	})
}

// UnmarshalJSON accepts numbers or null; null and absent become NaN.
func (l *Location) UnmarshalJSON(data []byte) error {
	var aux struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*l = Unknown()
	if aux.Lat != nil {
		l.Lat = *aux.Lat
	}
	if aux.Lng != nil {
		l.Lng = *aux.Lng
	}
	return nil
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Record is one emergency alert as held by the alert store.
type Record struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Location   Location  `json:"location"`
	Status     Status    `json:"status"`
	CreatedAt  string    `json:"created_at"`
	Source     Source    `json:"source"`
	ReceivedAt time.Time `json:"received_at"`
}

// Pending reports whether the record still counts as unread.
func (r Record) Pending() bool {
	return r.Status == StatusPending
}

var coordPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ParseCoordinate reads a coordinate from a JSON number or string. Strings
// are parsed by their leading numeric prefix, so "6.9271N" yields 6.9271.
// Missing, null, empty and non-numeric values yield NaN.
func ParseCoordinate(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return math.NaN()
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return math.NaN()
	}
	switch x := v.(type) {
	case float64:
		return x
	case string:
		return parseCoordinateString(x)
	default:
		return math.NaN()
	}
}

func parseCoordinateString(s string) float64 {
	m := coordPrefix.FindString(strings.TrimSpace(s))
	if m == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}
