package push

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/klaxon/internal/alert"
	"github.com/linnemanlabs/klaxon/internal/authmw"
)

var deliveredAt = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func decode(t *testing.T, body string) Message {
	t.Helper()
	var m Message
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		t.Fatalf("unmarshal %s: %v", body, err)
	}
	return m
}

func TestConvert_FullPayload(t *testing.T) {
	t.Parallel()

	msg := decode(t, `{"data":{"alertId":"a2","type":"fire","lat":"6.9271","lng":"79.8612","timestamp":"2024-05-01T09:59:58Z"}}`)
	got := Convert(msg, deliveredAt)

	if got.SynthesizedID {
		t.Error("SynthesizedID = true, want false")
	}
	r := got.Record
	if r.ID != "a2" || r.Kind != "fire" {
		t.Errorf("ID/Kind = %q/%q", r.ID, r.Kind)
	}
	if r.Location.Lat != 6.9271 || r.Location.Lng != 79.8612 {
		t.Errorf("Location = %+v", r.Location)
	}
	if r.Status != alert.StatusPending {
		t.Errorf("Status = %q, want pending", r.Status)
	}
	if r.CreatedAt != "2024-05-01T09:59:58Z" {
		t.Errorf("CreatedAt = %q", r.CreatedAt)
	}
	if r.Source != alert.SourcePush || !r.ReceivedAt.Equal(deliveredAt) {
		t.Errorf("Source/ReceivedAt = %q/%v", r.Source, r.ReceivedAt)
	}
}

func TestConvert_Sentinels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"no data", `{}`},
		{"null data", `{"data":null}`},
		{"garbage coordinates", `{"data":{"lat":"north","lng":""}}`},
		{"missing coordinates", `{"data":{"type":""}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Convert(decode(t, tt.body), deliveredAt)
			r := got.Record

			if !got.SynthesizedID {
				t.Error("expected synthesized id")
			}
			id, err := ulid.Parse(r.ID)
			if err != nil {
				t.Fatalf("id %q is not a ULID: %v", r.ID, err)
			}
			if ulid.Time(id.Time()).UnixMilli() != deliveredAt.UnixMilli() {
				t.Errorf("ULID time = %v, want delivery time", ulid.Time(id.Time()))
			}
			if r.Kind != alert.DefaultKind {
				t.Errorf("Kind = %q, want %q", r.Kind, alert.DefaultKind)
			}
			if !math.IsNaN(r.Location.Lat) || !math.IsNaN(r.Location.Lng) {
				t.Errorf("Location = %+v, want NaN", r.Location)
			}
			if r.CreatedAt != "2024-05-01T10:00:00Z" {
				t.Errorf("CreatedAt = %q, want delivery time", r.CreatedAt)
			}
			if r.Status != alert.StatusPending {
				t.Errorf("Status = %q", r.Status)
			}
		})
	}
}

func TestConvert_NumericFields(t *testing.T) {
	t.Parallel()

	got := Convert(decode(t, `{"data":{"alertId":1714557600,"lat":6.5,"lng":-1}}`), deliveredAt)
	if got.Record.ID != "1714557600" {
		t.Errorf("ID = %q", got.Record.ID)
	}
	if got.Record.Location.Lat != 6.5 || got.Record.Location.Lng != -1 {
		t.Errorf("Location = %+v", got.Record.Location)
	}
}

func TestConvert_SynthesizedIDsUnique(t *testing.T) {
	t.Parallel()

	a := Convert(Message{}, deliveredAt)
	b := Convert(Message{}, deliveredAt)
	if a.Record.ID == b.Record.ID {
		t.Errorf("two deliveries at the same instant share id %q", a.Record.ID)
	}
}

func TestSource_DeliverCallsHandlersInOrder(t *testing.T) {
	t.Parallel()

	src := New(nil)
	src.now = func() time.Time { return deliveredAt }

	var (
		mu    sync.Mutex
		calls []string
	)
	src.OnAlert(func(_ context.Context, r alert.Record) {
		mu.Lock()
		calls = append(calls, "first:"+r.ID)
		mu.Unlock()
	})
	src.OnAlert(nil)
	src.OnAlert(func(_ context.Context, r alert.Record) {
		mu.Lock()
		calls = append(calls, "second:"+r.ID)
		mu.Unlock()
	})

	rec := src.Deliver(context.Background(), decode(t, `{"data":{"alertId":"a1","lat":"1","lng":"2"}}`))
	if rec.ID != "a1" {
		t.Fatalf("ID = %q", rec.ID)
	}
	if len(calls) != 2 || calls[0] != "first:a1" || calls[1] != "second:a1" {
		t.Errorf("calls = %v", calls)
	}
}

func newReceiverRouter(t *testing.T, secret string) (chi.Router, *[]alert.Record) {
	t.Helper()
	var (
		mu  sync.Mutex
		got []alert.Record
	)
	src := New(nil)
	src.OnAlert(func(_ context.Context, r alert.Record) {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	})
	r := chi.NewRouter()
	NewReceiver(src, secret, "", nil).RegisterRoutes(r)
	return r, &got
}

func TestReceiver_Accepts(t *testing.T) {
	t.Parallel()

	r, got := newReceiverRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/push/v1/messages",
		strings.NewReader(`{"data":{"alertId":"a9","lat":"1","lng":"2"},"notification":{"title":"Fire"}}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["accepted"] != "a9" {
		t.Errorf("accepted = %q, want a9", body["accepted"])
	}
	if len(*got) != 1 {
		t.Errorf("handler calls = %d, want 1", len(*got))
	}
}

func TestReceiver_RejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	r, got := newReceiverRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/push/v1/messages", strings.NewReader(`{"data":`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if len(*got) != 0 {
		t.Errorf("handler calls = %d, want 0", len(*got))
	}
}

func TestReceiver_SharedSecret(t *testing.T) {
	t.Parallel()

	r, got := newReceiverRouter(t, "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/push/v1/messages", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without secret: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodPost, "/push/v1/messages", strings.NewReader(`{}`))
	req.Header.Set(authmw.DefaultSecretHeader, "s3cret")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Errorf("with secret: status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if len(*got) != 1 {
		t.Errorf("handler calls = %d, want 1", len(*got))
	}
}
