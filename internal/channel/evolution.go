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

// Evolution sends through an Evolution API instance
// (POST /message/sendText/{instance}). Used as the fallback gateway.
type Evolution struct {
	baseURL  string
	apiKey   string
	instance string
	http     *http.Client
}

type EvolutionConfig struct {
	BaseURL  string
	APIKey   string
	Instance string
	Timeout  time.Duration
}

func NewEvolution(cfg EvolutionConfig) (*Evolution, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	key := strings.TrimSpace(cfg.APIKey)
	inst := strings.TrimSpace(cfg.Instance)
	if base == "" || key == "" || inst == "" {
		return nil, configErr("evolution", "base url, api key and instance are all required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Evolution{
		baseURL:  base,
		apiKey:   key,
		instance: inst,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

func (e *Evolution) Name() string { return "evolution" }

func (e *Evolution) Send(ctx context.Context, to, text string) (Outcome, error) {
	payload, _ := json.Marshal(map[string]any{
		"number":      to,
		"textMessage": map[string]string{"text": text},
	})

	url := e.baseURL + "/message/sendText/" + e.instance
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Outcome{}, newErr("evolution", KindTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", e.apiKey)

	resp, err := e.http.Do(req)
	if err != nil {
		return Outcome{}, newErr("evolution", KindTransport, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Outcome{RawResponse: string(body)},
			newErr("evolution", KindRemote, fmt.Errorf("status %d: %s", resp.StatusCode, trimBody(body)))
	}

	// Evolution answers with the stored message object; any valid JSON body
	// on a 2xx is a success.
	if !json.Valid(body) {
		return Outcome{RawResponse: string(body)},
			newErr("evolution", KindResponse, fmt.Errorf("non-JSON response: %s", trimBody(body)))
	}
	return Outcome{OK: true, RawResponse: string(body)}, nil
}
