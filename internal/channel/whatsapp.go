package channel

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

// WhatsApp sends through the site's own API (Baileys behind
// POST /api/whatsapp/send). This is the primary channel.
type WhatsApp struct {
	baseURL string
	token   string
	http    *http.Client
}

type WhatsAppConfig struct {
	// BaseURL is the site origin, e.g. "https://dcruzimoveis.com.br".
	BaseURL string
	// AuthToken is the agent bearer token. Optional: the endpoint accepts
	// unauthenticated calls from localhost deployments.
	AuthToken string
	Timeout   time.Duration
}

func NewWhatsApp(cfg WhatsAppConfig) (*WhatsApp, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, configErr("whatsapp", "base url is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WhatsApp{
		baseURL: base,
		token:   strings.TrimSpace(cfg.AuthToken),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

func (w *WhatsApp) Name() string { return "whatsapp" }

func (w *WhatsApp) Send(ctx context.Context, to, text string) (Outcome, error) {
	payload, _ := json.Marshal(map[string]string{
		"to":      to,
		"message": text,
		"source":  "agent",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		w.baseURL+"/api/whatsapp/send", bytes.NewReader(payload))
	if err != nil {
		return Outcome{}, newErr("whatsapp", KindTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return Outcome{}, newErr("whatsapp", KindTransport, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK {
		return Outcome{RawResponse: string(body)},
			newErr("whatsapp", KindRemote, fmt.Errorf("status %d: %s", resp.StatusCode, trimBody(body)))
	}

	var result struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return Outcome{RawResponse: string(body)},
			newErr("whatsapp", KindResponse, fmt.Errorf("decode response: %w", err))
	}
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "unknown error"
		}
		return Outcome{RawResponse: string(body)},
			newErr("whatsapp", KindRemote, fmt.Errorf("api rejected send: %s", msg))
	}
	return Outcome{OK: true, RawResponse: string(body)}, nil
}

func trimBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
