package alertapi

import (
	"errors"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/klaxon/internal/alert"
	"github.com/linnemanlabs/klaxon/internal/engine"
)

const maxJournalLimit = 1000

type listResponse struct {
	Alerts []alert.Record `json:"alerts"`
	Unread int            `json:"unread"`
}

func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	recs, unread := a.eng.View().Snapshot()
	if recs == nil {
		recs = []alert.Record{}
	}
	writeJSON(w, http.StatusOK, listResponse{Alerts: recs, Unread: unread})
}

func (a *API) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("klaxon.alert.id", id))

	rec, local, err := a.eng.Lookup(r.Context(), id)
	if errors.Is(err, engine.ErrNotFound) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to look up alert", "alert_id", id)
		http.Error(w, `{"error":"backend unavailable"}`, http.StatusBadGateway)
		return
	}
	span.SetAttributes(attribute.Bool("klaxon.alert.local", local))
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	changed := a.eng.MarkAsRead(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]any{
		"changed": changed,
		"unread":  a.eng.View().Unread(),
	})
}

func (a *API) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("klaxon.alert.id", id))

	changed, err := a.eng.Acknowledge(r.Context(), id)
	if errors.Is(err, engine.ErrNoBackend) {
		http.Error(w, `{"error":"no backend configured"}`, http.StatusNotImplemented)
		return
	}
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to acknowledge alert", "alert_id", id)
		http.Error(w, `{"error":"backend rejected acknowledgement"}`, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"changed": changed,
		"unread":  a.eng.View().Unread(),
	})
}

func (a *API) handleClearAlerts(w http.ResponseWriter, r *http.Request) {
	a.eng.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	a.eng.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]any{"refresh": "requested"})
}

func (a *API) handleTestSound(w http.ResponseWriter, r *http.Request) {
	a.eng.TestSound(r.Context())
	writeJSON(w, http.StatusAccepted, map[string]any{"sound": "played"})
}

func (a *API) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.eng.Status())
}

func (a *API) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxJournalLimit {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := a.journal.Recent(r.Context(), limit)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to read journal")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
