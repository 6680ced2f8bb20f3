// Package slack shows alert toasts in a Slack channel via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/klaxon/internal/notify"
)

const (
	maxTextLen  = 3000
	httpTimeout = 10 * time.Second
)

// Notifier posts toasts to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
	now        func() time.Time
}

// New creates a new Slack notifier. If webhookURL is empty, Show is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
		now:        time.Now,
	}
}

// Show posts a toast to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Show(ctx context.Context, t notify.Toast) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(t, n.now())

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// buildMessage renders the toast as a colored attachment so the style shows
// as the side bar color.
func buildMessage(t notify.Toast, now time.Time) map[string]any {
	blocks := []map[string]any{
		headerBlock(t),
	}
	if f := fieldsBlock(t); f != nil {
		blocks = append(blocks, f)
	}
	blocks = append(blocks, contextBlock(t, now))

	return map[string]any{
		"text": plain(t.Message),
		"attachments": []map[string]any{
			{
				"color":  t.Style.Color(),
				"blocks": blocks,
			},
		},
	}
}

func headerBlock(t notify.Toast) map[string]any {
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type":  "plain_text",
			"text":  fmt.Sprintf("%s %s", styleEmoji(t.Style), truncate(plain(t.Message), 150)),
			"emoji": true,
		},
	}
}

func fieldsBlock(t notify.Toast) map[string]any {
	var fields []map[string]any
	if t.Kind != "" {
		fields = append(fields, map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Type:* %s", escape(t.Kind)),
		})
	}
	if t.Location != "" {
		fields = append(fields, map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Location:* %s", escape(t.Location)),
		})
	}
	if t.AlertID != "" {
		fields = append(fields, map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Alert:* `%s`", escape(t.AlertID)),
		})
	}
	if len(fields) == 0 {
		return nil
	}
	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func contextBlock(t notify.Toast, now time.Time) map[string]any {
	text := fmt.Sprintf("klaxon • %s", now.UTC().Format("2006-01-02 15:04:05 UTC"))
	if t.Duration > 0 {
		text += fmt.Sprintf(" • shown for %s", t.Duration)
	}
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": truncate(text, maxTextLen),
			},
		},
	}
}

func styleEmoji(s notify.Style) string {
	switch s {
	case notify.StyleEmergency:
		return "\U0001f6a8" // rotating light
	default:
		return "\U0001f514" // bell
	}
}

// escape neutralizes Slack mrkdwn control characters.
var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string {
	return truncate(mrkdwnEscaper.Replace(s), maxTextLen)
}

// plain strips characters Slack rejects in plain_text.
func plain(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' {
			return -1
		}
		return r
	}, s)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
