package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Slack posts alerts to an incoming-webhook URL.
type Slack struct {
	webhookURL string
	channel    string
	http       *http.Client
}

// NewSlack returns nil when the webhook URL is empty so callers can build
// the sink list straight from config.
func NewSlack(webhookURL, channel string) *Slack {
	url := strings.TrimSpace(webhookURL)
	if url == "" {
		return nil
	}
	if channel == "" {
		channel = "#alertas"
	}
	return &Slack{
		webhookURL: url,
		channel:    channel,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Push(ctx context.Context, ev Event) error {
	payload := map[string]string{
		"text":       fmt.Sprintf("%s [%s] %s", ev.Level.emoji(), strings.ToUpper(string(ev.Level)), ev.Message),
		"channel":    s.channel,
		"username":   ev.Service,
		"icon_emoji": ":robot_face:",
	}
	return postJSON(ctx, s.http, s.webhookURL, payload)
}

// Webhook posts alerts as a generic JSON document, for anything that isn't
// Slack (n8n, a serverless function, an internal endpoint).
type Webhook struct {
	url  string
	http *http.Client
}

func NewWebhook(url string) *Webhook {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	return &Webhook{url: url, http: &http.Client{Timeout: 10 * time.Second}}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Push(ctx context.Context, ev Event) error {
	payload := map[string]string{
		"level":     string(ev.Level),
		"message":   ev.Message,
		"timestamp": ev.Time.UTC().Format(time.RFC3339),
		"service":   ev.Service,
	}
	return postJSON(ctx, w.http, w.url, payload)
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<14))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
