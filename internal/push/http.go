package push

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/klaxon/internal/authmw"
)

// Receiver is the HTTP endpoint the push transport posts deliveries to.
type Receiver struct {
	src    *Source
	secret string
	header string
	logger log.Logger
}

// NewReceiver creates a Receiver. An empty secret disables the shared
// secret check.
func NewReceiver(src *Source, secret, header string, logger log.Logger) *Receiver {
	if src == nil {
		panic(xerrors.New("push source is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Receiver{src: src, secret: secret, header: header, logger: logger}
}

// RegisterRoutes attaches the push intake route to the router.
func (rc *Receiver) RegisterRoutes(r chi.Router) {
	r.With(authmw.Optional(rc.secret != "", authmw.SharedSecret(rc.header, rc.secret))).
		Post("/push/v1/messages", rc.handleMessage)
}

func (rc *Receiver) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	rec := rc.src.Deliver(r.Context(), msg)

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("klaxon.alert.id", rec.ID))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"accepted": rec.ID,
	})
}
