package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const ultramsgAPIBase = "https://api.ultramsg.com"

// UltraMsg sends through the UltraMsg gateway
// (POST /{instance}/messages/chat, form-encoded).
type UltraMsg struct {
	baseURL  string
	instance string
	token    string
	http     *http.Client
}

type UltraMsgConfig struct {
	Instance string
	Token    string
	// BaseURL overrides the public API host (tests only).
	BaseURL string
	Timeout time.Duration
}

func NewUltraMsg(cfg UltraMsgConfig) (*UltraMsg, error) {
	inst := strings.TrimSpace(cfg.Instance)
	token := strings.TrimSpace(cfg.Token)
	if inst == "" || token == "" {
		return nil, configErr("ultramsg", "instance id and token are required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = ultramsgAPIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &UltraMsg{
		baseURL:  base,
		instance: inst,
		token:    token,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

func (u *UltraMsg) Name() string { return "ultramsg" }

func (u *UltraMsg) Send(ctx context.Context, to, text string) (Outcome, error) {
	form := url.Values{}
	form.Set("token", u.token)
	form.Set("to", to)
	form.Set("body", text)

	endpoint := u.baseURL + "/" + u.instance + "/messages/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return Outcome{}, newErr("ultramsg", KindTransport, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := u.http.Do(req)
	if err != nil {
		return Outcome{}, newErr("ultramsg", KindTransport, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK {
		return Outcome{RawResponse: string(body)},
			newErr("ultramsg", KindRemote, fmt.Errorf("status %d: %s", resp.StatusCode, trimBody(body)))
	}

	// UltraMsg returns {"sent":"true","message":...,"id":N} on success and
	// {"error":...} otherwise, both with status 200.
	var result struct {
		Sent  any `json:"sent"`
		Error any `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return Outcome{RawResponse: string(body)},
			newErr("ultramsg", KindResponse, fmt.Errorf("decode response: %w", err))
	}
	if result.Error != nil {
		return Outcome{RawResponse: string(body)},
			newErr("ultramsg", KindRemote, fmt.Errorf("api rejected send: %v", result.Error))
	}
	if !truthy(result.Sent) {
		return Outcome{RawResponse: string(body)},
			newErr("ultramsg", KindResponse, fmt.Errorf("unexpected response: %s", trimBody(body)))
	}
	return Outcome{OK: true, RawResponse: string(body)}, nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return strings.EqualFold(x, "true") || x == "1"
	case float64:
		return x != 0
	default:
		return false
	}
}
