// Package backend is the HTTP client for the alert backend: the station alert
// list used for polling, single-alert lookup and status updates.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/klaxon/internal/alert"
)

const (
	httpTimeout  = 30 * time.Second
	maxBodyBytes = 4 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	StationID string
	Token     string
	Kind      string
	// HTTPClient overrides the default traced client. Used by tests.
	HTTPClient *http.Client
}

// Client talks to the alert backend.
type Client struct {
	base      *url.URL
	stationID string
	token     string
	kind      string
	http      *http.Client
}

// New creates a backend client.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("backend base url is required")
	}
	u, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url scheme must be http or https, got %q", u.Scheme)
	}
	if opts.StationID == "" {
		return nil, errors.New("station id is required")
	}
	if opts.Kind == "" {
		opts.Kind = alert.DefaultKind
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{
		base:      u,
		stationID: opts.StationID,
		token:     opts.Token,
		kind:      opts.Kind,
		http:      hc,
	}, nil
}

// wireAlert is the backend's JSON shape for an alert.
type wireAlert struct {
	ID       string `json:"_id"`
	Type     string `json:"type"`
	Location struct {
		Lat json.RawMessage `json:"lat"`
		Lng json.RawMessage `json:"lng"`
	} `json:"location"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

func (w wireAlert) record(now time.Time) alert.Record {
	kind := w.Type
	if kind == "" {
		kind = alert.DefaultKind
	}
	status := alert.Status(w.Status)
	if !status.Valid() {
		status = alert.StatusPending
	}
	return alert.Record{
		ID:   w.ID,
		Kind: kind,
		Location: alert.Location{
			Lat: alert.ParseCoordinate(w.Location.Lat),
			Lng: alert.ParseCoordinate(w.Location.Lng),
		},
		Status:     status,
		CreatedAt:  w.CreatedAt,
		Source:     alert.SourcePoll,
		ReceivedAt: now,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// FetchSnapshot returns the station's full alert list in backend order.
// Entries without an id are dropped since they cannot be deduplicated.
func (c *Client) FetchSnapshot(ctx context.Context) ([]alert.Record, error) {
	const op = "list alerts"

	q := url.Values{}
	q.Set("type", c.kind)
	data, err := c.do(ctx, op, http.MethodGet, "/alerts/station/"+c.stationID, q, nil)
	if err != nil {
		return nil, err
	}

	var wire []wireAlert
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, &FetchError{Op: op, Err: fmt.Errorf("decode alerts: %w", err)}
		}
	}

	now := time.Now()
	out := make([]alert.Record, 0, len(wire))
	for _, w := range wire {
		if w.ID == "" {
			continue
		}
		out = append(out, w.record(now))
	}
	return out, nil
}

// GetAlert fetches one alert by id.
func (c *Client) GetAlert(ctx context.Context, id string) (alert.Record, error) {
	const op = "get alert"

	data, err := c.do(ctx, op, http.MethodGet, "/alerts/"+id, nil, nil)
	if err != nil {
		return alert.Record{}, err
	}
	var w wireAlert
	if err := json.Unmarshal(data, &w); err != nil {
		return alert.Record{}, &FetchError{Op: op, Err: fmt.Errorf("decode alert: %w", err)}
	}
	if w.ID == "" {
		w.ID = id
	}
	return w.record(time.Now()), nil
}

// UpdateStatus sets the backend status of an alert.
func (c *Client) UpdateStatus(ctx context.Context, id string, status alert.Status) error {
	const op = "update status"

	if !status.Valid() {
		return &FetchError{Op: op, Err: fmt.Errorf("invalid status %q", status)}
	}
	body, err := json.Marshal(map[string]string{"status": string(status)})
	if err != nil {
		return &FetchError{Op: op, Err: fmt.Errorf("marshal body: %w", err)}
	}
	_, err = c.do(ctx, op, http.MethodPatch, "/alerts/"+id+"/status", nil, body)
	return err
}

// do performs one request and unwraps the {success, data} envelope.
func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, body []byte) (json.RawMessage, error) {
	u := *c.base
	u.Path = c.base.Path + path // url.URL escapes on String
	u.RawPath = ""
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, &FetchError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req) //nolint:gosec // G704: backend url is from trusted config
	if err != nil {
		return nil, &FetchError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(env.Message)
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &FetchError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}
	if decodeErr != nil {
		return nil, &FetchError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode envelope: %w", decodeErr)}
	}
	if !env.Success {
		err := ErrRejected
		if env.Message != "" {
			err = fmt.Errorf("%w: %s", ErrRejected, env.Message)
		}
		return nil, &FetchError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return env.Data, nil
}
