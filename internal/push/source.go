// Package push receives alerts from the push delivery channel and hands
// them to registered handlers.
package push

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/klaxon/internal/alert"
)

// Handler receives each converted push alert.
type Handler func(ctx context.Context, rec alert.Record)

// Source fans push deliveries out to the registered handlers.
type Source struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   log.Logger
	now      func() time.Time
}

// New creates a Source with no handlers.
func New(logger log.Logger) *Source {
	if logger == nil {
		logger = log.Nop()
	}
	return &Source{
		logger: logger,
		now:    time.Now,
	}
}

// OnAlert registers h to be called for every delivery, in registration order.
func (s *Source) OnAlert(h Handler) {
	if h == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Deliver converts msg once and invokes every handler with the result.
// Handlers run synchronously on the caller's goroutine.
func (s *Source) Deliver(ctx context.Context, msg Message) alert.Record {
	conv := Convert(msg, s.now())
	rec := conv.Record

	if conv.SynthesizedID {
		// The backend assigns its own id, so a later poll will report this
		// event under a different key.
		s.logger.Warn(ctx, "push message has no alertId, synthesized one", "alert_id", rec.ID)
	}
	if !rec.Location.Valid() {
		s.logger.Warn(ctx, "push message has unusable coordinates", "alert_id", rec.ID)
	}

	s.mu.RLock()
	hs := make([]Handler, len(s.handlers))
	copy(hs, s.handlers)
	s.mu.RUnlock()

	for _, h := range hs {
		h(ctx, rec)
	}
	return rec
}
