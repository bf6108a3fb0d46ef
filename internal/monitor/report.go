package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/gpropadm/dcruzimoveis/pkg/logx"
)

// sendDailyReport publishes the previous day's counters through the alert
// notifier. due is the scheduled slot being honored; the reported day is the
// one before it.
func (m *Monitor) sendDailyReport(ctx context.Context, due time.Time) {
	day := due.AddDate(0, 0, -1)
	stats, err := m.store.DailyStats(ctx, day)
	if err != nil {
		m.log.Warn("daily stats unavailable", logx.Err(err))
		return
	}

	rate := 0.0
	if stats.TotalLeads > 0 {
		rate = float64(stats.SentLeads) / float64(stats.TotalLeads) * 100
	}
	msg := fmt.Sprintf("📊 Relatório %s: %d leads, %d enviados, %d com erro (%.0f%% de sucesso)",
		day.Format("02/01/2006"), stats.TotalLeads, stats.SentLeads, stats.ErrorLeads, rate)

	m.alerts.Info(ctx, msg)
	m.log.Info("daily report sent",
		logx.Time("day", day),
		logx.Int("total", stats.TotalLeads),
		logx.Int("sent", stats.SentLeads),
		logx.Int("errors", stats.ErrorLeads))
}
