// Package alertapi serves the station's HTTP API: the alert list, read-state
// changes, poll status, the toast event stream and the delivery journal.
package alertapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/klaxon/internal/alert"
	"github.com/linnemanlabs/klaxon/internal/alertstore"
	"github.com/linnemanlabs/klaxon/internal/authmw"
	"github.com/linnemanlabs/klaxon/internal/engine"
	"github.com/linnemanlabs/klaxon/internal/journal"
)

// Engine defines the engine operations alertapi needs.
type Engine interface {
	View() alertstore.View
	Lookup(ctx context.Context, id string) (alert.Record, bool, error)
	MarkAsRead(ctx context.Context, id string) bool
	Acknowledge(ctx context.Context, id string) (bool, error)
	Clear(ctx context.Context)
	Refresh()
	TestSound(ctx context.Context)
	Status() engine.Status
}

// Options holds optional API dependencies.
type Options struct {
	// Token, when set, is required as a Bearer token on every route.
	Token string
	// Journal backs GET /api/v1/journal. Nil disables the route.
	Journal journal.Journal
	// Events serves the toast event stream. Nil disables the route.
	Events http.Handler
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger  log.Logger
	eng     Engine
	token   string
	journal journal.Journal
	events  http.Handler
}

// New creates a new API handler.
func New(logger log.Logger, eng Engine, opts Options) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if eng == nil {
		panic(xerrors.New("engine is required"))
	}
	return &API{
		logger:  logger,
		eng:     eng,
		token:   opts.Token,
		journal: opts.Journal,
		events:  opts.Events,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authmw.Optional(a.token != "", authmw.BearerToken(a.token)))

		r.Get("/alerts", a.handleListAlerts)
		r.Delete("/alerts", a.handleClearAlerts)
		r.Post("/alerts/refresh", a.handleRefresh)
		r.Get("/alerts/{id}", a.handleGetAlert)
		r.Post("/alerts/{id}/read", a.handleMarkRead)
		r.Post("/alerts/{id}/acknowledge", a.handleAcknowledge)
		r.Post("/sound/test", a.handleTestSound)
		r.Get("/status", a.handleStatus)
		if a.journal != nil {
			r.Get("/journal", a.handleJournal)
		}
		if a.events != nil {
			r.Get("/events", a.events.ServeHTTP)
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
