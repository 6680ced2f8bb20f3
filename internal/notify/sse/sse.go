// Package sse streams toasts to dashboard clients as server-sent events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/klaxon/internal/notify"
)

const (
	clientBuffer      = 16
	defaultHeartbeat  = 25 * time.Second
	eventToast        = "toast"
	retryMilliseconds = 3000
)

type event struct {
	name string
	data []byte
}

// Hub broadcasts events to every connected client. A client that cannot
// keep up loses events rather than slowing the others.
type Hub struct {
	mu        sync.Mutex
	clients   map[chan event]struct{}
	closed    bool
	done      chan struct{}
	heartbeat time.Duration
	logger    log.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger log.Logger) *Hub {
	if logger == nil {
		logger = log.Nop()
	}
	return &Hub{
		clients:   make(map[chan event]struct{}),
		done:      make(chan struct{}),
		heartbeat: defaultHeartbeat,
		logger:    logger,
	}
}

type toastPayload struct {
	notify.Toast
	DurationMS int64 `json:"duration_ms"`
}

// Show broadcasts t as a "toast" event.
func (h *Hub) Show(_ context.Context, t notify.Toast) error {
	data, err := json.Marshal(toastPayload{Toast: t, DurationMS: t.Duration.Milliseconds()})
	if err != nil {
		return fmt.Errorf("sse: marshal toast: %w", err)
	}
	h.broadcast(event{name: eventToast, data: data})
	return nil
}

func (h *Hub) broadcast(ev event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	for ch := range h.clients {
		select {
		case ch <- ev:
		default:
			h.logger.Warn(context.Background(), "sse client too slow, dropping event", "event", ev.name)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client. Later connections get 503.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
}

func (h *Hub) subscribe() (chan event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan event, clientBuffer)
	h.clients[ch] = struct{}{}
	return ch, true
}

func (h *Hub) unsubscribe(ch chan event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, ch)
}

// ServeHTTP streams events until the client goes away or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	ch, ok := h.subscribe()
	if !ok {
		http.Error(w, `{"error":"shutting down"}`, http.StatusServiceUnavailable)
		return
	}
	defer h.unsubscribe(ch)

	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprintf(w, "retry: %d\n\n", retryMilliseconds); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		h.logger.Warn(r.Context(), "sse flush unsupported", "err", err.Error())
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
		case ev := <-ch:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
