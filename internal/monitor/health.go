package monitor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gpropadm/dcruzimoveis/pkg/logx"
)

// Health is one snapshot of the agent's dependencies. SiteOK is true when no
// site URL is configured (nothing to probe).
type Health struct {
	StoreOK     bool
	SiteOK      bool
	TargetOK    bool
	Unprocessed int
	CheckedAt   time.Time
}

func (h Health) OK() bool { return h.StoreOK && h.SiteOK && h.TargetOK }

func (m *Monitor) checkHealth(ctx context.Context) Health {
	h := Health{SiteOK: true, CheckedAt: m.now()}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := m.store.Ping(checkCtx); err != nil {
		m.log.Warn("store ping failed", logx.Err(err))
	} else {
		h.StoreOK = true
		if n, err := m.store.CountUnprocessed(checkCtx); err == nil {
			h.Unprocessed = n
		}
	}

	if settings, err := m.store.SiteSettings(checkCtx); err == nil {
		h.TargetOK = settings.ContactWhatsApp != ""
	}

	if m.siteURL != "" {
		if err := m.probe(checkCtx, m.siteURL+"/api/health"); err != nil {
			h.SiteOK = false
			m.log.Warn("site health probe failed", logx.Err(err))
		}
	}
	return h
}

func (m *Monitor) logHealth(h Health) {
	if h.OK() {
		m.log.Debug("health ok", logx.Int("unprocessed", h.Unprocessed))
		return
	}
	m.log.Warn("health degraded",
		logx.Bool("store", h.StoreOK),
		logx.Bool("site", h.SiteOK),
		logx.Bool("target", h.TargetOK))
}

var healthClient = &http.Client{Timeout: 10 * time.Second}

func probeSite(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := healthClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<12))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
