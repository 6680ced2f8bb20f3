// Package notify defines the visual toast surface and fans toasts out to
// the configured sinks.
package notify

import (
	"context"
	"errors"
	"time"
)

// Style is the salience of a toast.
type Style string

const (
	StyleEmergency Style = "emergency"
	StyleInfo      Style = "info"
)

// Color returns the display color for the style.
func (s Style) Color() string {
	switch s {
	case StyleEmergency:
		return "#dc2626"
	default:
		return "#2563eb"
	}
}

// Toast is one transient visual notification.
type Toast struct {
	Message  string        `json:"message"`
	Style    Style         `json:"style"`
	Duration time.Duration `json:"-"`
	AlertID  string        `json:"alert_id,omitempty"`
	Kind     string        `json:"kind,omitempty"`
	// Location is free text, for example "6.9271, 79.8612".
	Location string `json:"location,omitempty"`
}

// Toaster shows a toast. Implementations must not block for long; callers
// treat errors as log-only.
type Toaster interface {
	Show(ctx context.Context, t Toast) error
}

// Func adapts a function to Toaster.
type Func func(ctx context.Context, t Toast) error

func (f Func) Show(ctx context.Context, t Toast) error { return f(ctx, t) }

// Nop discards every toast.
type Nop struct{}

func (Nop) Show(context.Context, Toast) error { return nil }

// Multi shows a toast on every sink and joins their errors.
type Multi []Toaster

func (m Multi) Show(ctx context.Context, t Toast) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Show(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
