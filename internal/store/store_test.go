package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gpropadm/dcruzimoveis/internal/lead"
	"github.com/gpropadm/dcruzimoveis/pkg/logx"
)

func newTestStore(t *testing.T) *sqliteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leads.db")
	st, err := openSQLite(path, logx.Nop())
	if err != nil {
		t.Fatalf("openSQLite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st.(*sqliteStore)
}

func insertLead(t *testing.T, s *sqliteStore, id, name, phone, status string, createdAt string) {
	t.Helper()
	_, err := s.db.Exec(
		`INSERT INTO leads(id, name, phone, message, propertyPrice, status, createdAt)
		 VALUES(?,?,?,?,?,?,?)`,
		id, name, phone, "quero visitar", 300000, status, createdAt)
	if err != nil {
		t.Fatalf("insert lead: %v", err)
	}
}

func TestOpenRequiresDSN(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), Config{}, logx.Nop())
	if err != ErrNotConfigured {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"}, logx.Nop())
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestFetchUnprocessedOrderAndLimit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	insertLead(t, s, "L1", "Ana", "+55481", "novo", "2026-08-28 10:00:00")
	insertLead(t, s, "L2", "Bia", "+55482", "novo", "2026-08-29 10:00:00")
	insertLead(t, s, "L3", "Caio", "+55483", "enviado", "2026-08-29 11:00:00")

	leads, err := s.FetchUnprocessed(ctx, 10)
	if err != nil {
		t.Fatalf("FetchUnprocessed: %v", err)
	}
	if len(leads) != 2 {
		t.Fatalf("got %d leads, want 2", len(leads))
	}
	// Newest first.
	if leads[0].ID != "L2" || leads[1].ID != "L1" {
		t.Fatalf("order = %s,%s, want L2,L1", leads[0].ID, leads[1].ID)
	}
	if leads[0].Status != lead.StatusNew {
		t.Fatalf("status = %s, want novo", leads[0].Status)
	}
	if leads[0].PropertyPrice == "" {
		t.Fatal("price text should round-trip")
	}

	limited, err := s.FetchUnprocessed(ctx, 1)
	if err != nil {
		t.Fatalf("FetchUnprocessed limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("got %d leads, want 1", len(limited))
	}
}

func TestFetchReclaimsStaleProcessing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	insertLead(t, s, "L1", "Ana", "+55481", "processando", "2026-08-29 10:00:00")
	insertLead(t, s, "L2", "Bia", "+55482", "processando", "2026-08-29 11:00:00")
	// L1 died mid-send half an hour ago; L2 is being worked on right now.
	if _, err := s.db.Exec(
		`UPDATE leads SET updatedAt = datetime('now', '-30 minutes') WHERE id = 'L1'`); err != nil {
		t.Fatalf("age lead: %v", err)
	}

	leads, err := s.FetchUnprocessed(ctx, 10)
	if err != nil {
		t.Fatalf("FetchUnprocessed: %v", err)
	}
	if len(leads) != 1 || leads[0].ID != "L1" {
		t.Fatalf("leads = %+v, want only the stale L1", leads)
	}
	if leads[0].Status != lead.StatusProcessing {
		t.Fatalf("status = %s, want processando", leads[0].Status)
	}
}

func TestUpdateStatusRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	insertLead(t, s, "L1", "Ana", "+55481", "novo", "2026-08-29 10:00:00")
	if err := s.UpdateStatus(ctx, "L1", lead.StatusSent); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	leads, err := s.FetchUnprocessed(ctx, 10)
	if err != nil {
		t.Fatalf("FetchUnprocessed: %v", err)
	}
	if len(leads) != 0 {
		t.Fatalf("sent lead still returned as unprocessed: %+v", leads)
	}

	n, err := s.CountUnprocessed(ctx)
	if err != nil {
		t.Fatalf("CountUnprocessed: %v", err)
	}
	if n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}

	// Unknown id is not an error (last-writer-wins semantics).
	if err := s.UpdateStatus(ctx, "ghost", lead.StatusError); err != nil {
		t.Fatalf("UpdateStatus unknown id: %v", err)
	}
}

func TestSiteSettingsMissingRow(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	st, err := s.SiteSettings(context.Background())
	if err != nil {
		t.Fatalf("SiteSettings: %v", err)
	}
	if st != (Settings{}) {
		t.Fatalf("expected zero settings, got %+v", st)
	}
}

func TestSiteSettingsRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, err := s.db.Exec(
		`INSERT INTO settings(id, contactWhatsapp, siteName, siteUrl) VALUES('1','5548998645864','DCruz Imóveis','https://dcruzimoveis.com.br')`)
	if err != nil {
		t.Fatalf("insert settings: %v", err)
	}
	st, err := s.SiteSettings(context.Background())
	if err != nil {
		t.Fatalf("SiteSettings: %v", err)
	}
	if st.ContactWhatsApp != "5548998645864" || st.SiteName != "DCruz Imóveis" {
		t.Fatalf("unexpected settings: %+v", st)
	}
}

func TestDailyStats(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	day := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	insertLead(t, s, "L1", "Ana", "+55481", "enviado", "2026-08-29 10:00:00")
	insertLead(t, s, "L2", "Bia", "+55482", "erro", "2026-08-29 11:00:00")
	insertLead(t, s, "L3", "Caio", "+55483", "novo", "2026-08-29 12:00:00")
	insertLead(t, s, "L4", "Davi", "+55484", "enviado", "2026-08-28 12:00:00")

	st, err := s.DailyStats(ctx, day)
	if err != nil {
		t.Fatalf("DailyStats: %v", err)
	}
	if st.TotalLeads != 3 || st.SentLeads != 1 || st.ErrorLeads != 1 {
		t.Fatalf("stats = %+v, want total=3 sent=1 error=1", st)
	}
}
