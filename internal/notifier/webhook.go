// Package notifier posts batch outcomes to an HTTP webhook, so that long
// retrievals can be followed without watching the terminal.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/glacier/internal/action"
)

// Webhook posts action reports as JSON.
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// New creates a new Webhook notifier
func New(url string, headers map[string]string) *Webhook {
	return &Webhook{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Send posts report for vault. An empty report is not sent.
func (w *Webhook) Send(ctx context.Context, vault string, report *action.Report) error {
	if report == nil || len(report.Items) == 0 {
		return nil
	}

	items := make([]map[string]any, len(report.Items))
	for i, it := range report.Items {
		items[i] = itemToPayload(it)
	}
	return w.post(ctx, map[string]any{
		"type":        "report",
		"vault":       vault,
		"count":       len(report.Items),
		"succeeded":   len(report.Succeeded()),
		"failed":      len(report.Failed()),
		"items":       items,
		"finished_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func itemToPayload(it action.Item) map[string]any {
	p := map[string]any{
		"action": string(it.Verb),
		"target": it.Target,
		"status": "ok",
	}
	if it.Err != nil {
		p["status"] = it.Code()
		p["error"] = it.Err.Error()
		return p
	}
	if it.Result.ArchiveID != "" {
		p["archive_id"] = it.Result.ArchiveID
	}
	if it.Result.Location != "" {
		p["location"] = it.Result.Location
	}
	if it.Result.Checksum != "" {
		p["checksum"] = it.Result.Checksum
		p["size_bytes"] = it.Result.SizeBytes
	}
	p["duration_seconds"] = it.Result.Duration.Seconds()
	return p
}

func (w *Webhook) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: server returned %d", resp.StatusCode)
	}

	return nil
}
