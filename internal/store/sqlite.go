package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gpropadm/dcruzimoveis/internal/lead"
	"github.com/gpropadm/dcruzimoveis/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// A 'processando' row older than ten minutes means a run died mid-send;
// the fetch reclaims it so the lead is not lost.
const (
	sqFetchLeads = `SELECT id, COALESCE(name,''), COALESCE(phone,''), COALESCE(email,''),
		COALESCE(message,''), COALESCE(propertyTitle,''), COALESCE(propertyType,''),
		COALESCE(propertySlug,''), COALESCE(CAST(propertyPrice AS TEXT),''), status, createdAt
	FROM leads WHERE status = 'novo'
	   OR (status = 'processando' AND updatedAt < datetime('now', '-10 minutes'))
	ORDER BY createdAt DESC LIMIT ?`

	sqUpdateStatus = `UPDATE leads SET status = ?, updatedAt = datetime('now') WHERE id = ?`

	sqSiteSettings = `SELECT COALESCE(contactWhatsapp,''), COALESCE(siteName,''),
		COALESCE(siteUrl,''), COALESCE(contactEmail,''), COALESCE(contactPhone,'')
	FROM settings LIMIT 1`

	sqCountUnprocessed = `SELECT COUNT(*) FROM leads WHERE status = 'novo'`

	sqDailyStats = `SELECT COUNT(*),
		COUNT(CASE WHEN status = 'enviado' THEN 1 END),
		COUNT(CASE WHEN status = 'erro' THEN 1 END)
	FROM leads WHERE DATE(createdAt) = ?`
)

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(dsn string, log logx.Logger) (Store, error) {
	path := strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite://"), "sqlite:")
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// migrate creates the dev schema when it doesn't exist yet. In production the
// site's Prisma migrations own the schema; this only covers local sqlite runs.
func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) FetchUnprocessed(ctx context.Context, limit int) ([]lead.Lead, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, sqFetchLeads, limit)
	if err != nil {
		return nil, fmt.Errorf("store: fetch leads: %w", err)
	}
	defer rows.Close()

	var out []lead.Lead
	for rows.Next() {
		var l lead.Lead
		var status, createdAt string
		if err := rows.Scan(&l.ID, &l.Name, &l.Phone, &l.Email, &l.Message,
			&l.PropertyTitle, &l.PropertyType, &l.PropertySlug, &l.PropertyPrice,
			&status, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan lead: %w", err)
		}
		l.Status = lead.Status(status)
		l.CreatedAt = parseSQLiteTime(createdAt)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: fetch leads: %w", err)
	}
	return out, nil
}

func (s *sqliteStore) UpdateStatus(ctx context.Context, id string, status lead.Status) error {
	res, err := s.db.ExecContext(ctx, sqUpdateStatus, string(status), id)
	if err != nil {
		return fmt.Errorf("store: update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.log.Warn("status update matched no lead", logx.String("lead_id", id))
	}
	return nil
}

func (s *sqliteStore) SiteSettings(ctx context.Context) (Settings, error) {
	var st Settings
	err := s.db.QueryRowContext(ctx, sqSiteSettings).Scan(
		&st.ContactWhatsApp, &st.SiteName, &st.SiteURL, &st.ContactEmail, &st.ContactPhone)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("store: site settings: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) CountUnprocessed(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, sqCountUnprocessed).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count unprocessed: %w", err)
	}
	return n, nil
}

func (s *sqliteStore) DailyStats(ctx context.Context, day time.Time) (Stats, error) {
	st := Stats{Day: day}
	err := s.db.QueryRowContext(ctx, sqDailyStats, day.Format("2006-01-02")).Scan(
		&st.TotalLeads, &st.SentLeads, &st.ErrorLeads)
	if err != nil {
		return Stats{}, fmt.Errorf("store: daily stats: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func parseSQLiteTime(raw string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
