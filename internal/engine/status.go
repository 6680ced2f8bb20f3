package engine

import (
	"encoding/json"
	"time"
)

// Status is a point-in-time view of the poll loop and store.
type Status struct {
	Running             bool
	PollInterval        time.Duration
	LastPoll            time.Time
	LastSuccess         time.Time
	ConsecutiveFailures int
	LastError           string
	// Unauthorized is set when the most recent poll was rejected with 401.
	// Stored alerts are kept; polling continues.
	Unauthorized bool
	Alerts       int
	Unread       int
}

type statusJSON struct {
	Running             bool       `json:"running"`
	PollIntervalMS      int64      `json:"poll_interval_ms"`
	LastPoll            *time.Time `json:"last_poll,omitempty"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
	Unauthorized        bool       `json:"unauthorized"`
	Alerts              int        `json:"alerts"`
	Unread              int        `json:"unread"`
}

// MarshalJSON renders durations in milliseconds and omits zero times.
func (s Status) MarshalJSON() ([]byte, error) {
	out := statusJSON{
		Running:             s.Running,
		PollIntervalMS:      s.PollInterval.Milliseconds(),
		ConsecutiveFailures: s.ConsecutiveFailures,
		LastError:           s.LastError,
		Unauthorized:        s.Unauthorized,
		Alerts:              s.Alerts,
		Unread:              s.Unread,
	}
	if !s.LastPoll.IsZero() {
		t := s.LastPoll.UTC()
		out.LastPoll = &t
	}
	if !s.LastSuccess.IsZero() {
		t := s.LastSuccess.UTC()
		out.LastSuccess = &t
	}
	return json.Marshal(out)
}
