package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gpropadm/dcruzimoveis/internal/lead"
	"github.com/gpropadm/dcruzimoveis/pkg/logx"
)

// Column names are quoted because the site's Prisma schema uses camelCase.
// The fetch reclaims 'processando' rows older than ten minutes; those mark
// a run that died mid-send.
const (
	pgFetchLeads = `SELECT id, COALESCE(name,''), COALESCE(phone,''), COALESCE(email,''),
		COALESCE(message,''), COALESCE("propertyTitle",''), COALESCE("propertyType",''),
		COALESCE("propertySlug",''), COALESCE("propertyPrice"::text,''), status, "createdAt"
	FROM leads WHERE status = 'novo'
	   OR (status = 'processando' AND "updatedAt" < NOW() - INTERVAL '10 minutes')
	ORDER BY "createdAt" DESC LIMIT $1`

	pgUpdateStatus = `UPDATE leads SET status = $1, "updatedAt" = NOW() WHERE id = $2`

	pgSiteSettings = `SELECT COALESCE("contactWhatsapp",''), COALESCE("siteName",''),
		COALESCE("siteUrl",''), COALESCE("contactEmail",''), COALESCE("contactPhone",'')
	FROM settings LIMIT 1`

	pgCountUnprocessed = `SELECT COUNT(*) FROM leads WHERE status = 'novo'`

	pgDailyStats = `SELECT COUNT(*),
		COUNT(*) FILTER (WHERE status = 'enviado'),
		COUNT(*) FILTER (WHERE status = 'erro')
	FROM leads WHERE DATE("createdAt") = $1::date`
)

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, dsn string, log logx.Logger) (Store, error) {
	pgxCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse postgres dsn: %w", err)
	}
	// Neon closes idle connections aggressively; keep the pool modest and
	// recycle connections before the server does.
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &postgresStore{pool: pool, log: log}, nil
}

func (s *postgresStore) FetchUnprocessed(ctx context.Context, limit int) ([]lead.Lead, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, pgFetchLeads, limit)
	if err != nil {
		return nil, fmt.Errorf("store: fetch leads: %w", err)
	}
	defer rows.Close()

	var out []lead.Lead
	for rows.Next() {
		var l lead.Lead
		var status string
		if err := rows.Scan(&l.ID, &l.Name, &l.Phone, &l.Email, &l.Message,
			&l.PropertyTitle, &l.PropertyType, &l.PropertySlug, &l.PropertyPrice,
			&status, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan lead: %w", err)
		}
		l.Status = lead.Status(status)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: fetch leads: %w", err)
	}
	return out, nil
}

func (s *postgresStore) UpdateStatus(ctx context.Context, id string, status lead.Status) error {
	tag, err := s.pool.Exec(ctx, pgUpdateStatus, string(status), id)
	if err != nil {
		return fmt.Errorf("store: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.log.Warn("status update matched no lead", logx.String("lead_id", id))
	}
	return nil
}

func (s *postgresStore) SiteSettings(ctx context.Context) (Settings, error) {
	var st Settings
	err := s.pool.QueryRow(ctx, pgSiteSettings).Scan(
		&st.ContactWhatsApp, &st.SiteName, &st.SiteURL, &st.ContactEmail, &st.ContactPhone)
	if errors.Is(err, pgx.ErrNoRows) {
		// No settings row yet: the site works with defaults, so do we.
		return Settings{}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("store: site settings: %w", err)
	}
	return st, nil
}

func (s *postgresStore) CountUnprocessed(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, pgCountUnprocessed).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count unprocessed: %w", err)
	}
	return n, nil
}

func (s *postgresStore) DailyStats(ctx context.Context, day time.Time) (Stats, error) {
	st := Stats{Day: day}
	err := s.pool.QueryRow(ctx, pgDailyStats, day.Format("2006-01-02")).Scan(
		&st.TotalLeads, &st.SentLeads, &st.ErrorLeads)
	if err != nil {
		return Stats{}, fmt.Errorf("store: daily stats: %w", err)
	}
	return st, nil
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
