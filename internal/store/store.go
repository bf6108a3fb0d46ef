// Package store provides access to the site's lead database.
//
// Two drivers are supported, mirroring the site deployments:
//   - "postgres": production (Neon), via pgx
//   - "sqlite": local development, via modernc.org/sqlite
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gpropadm/dcruzimoveis/internal/lead"
	"github.com/gpropadm/dcruzimoveis/pkg/logx"
)

var ErrNotConfigured = errors.New("store: connection not configured")

// Config configures the lead store connection.
type Config struct {
	// Driver is "postgres" or "sqlite". Derived from the DSN scheme when empty.
	Driver string
	// DSN is the connection string (DATABASE_URL). Required.
	DSN string
	// FetchLimit bounds one cycle's batch. Defaults to 50.
	FetchLimit int
}

// Settings is the site configuration row consumed by the notification
// pipeline. ContactWhatsApp is the notification target.
type Settings struct {
	ContactWhatsApp string
	SiteName        string
	SiteURL         string
	ContactEmail    string
	ContactPhone    string
}

// Stats aggregates one day of lead processing for the daily report.
type Stats struct {
	Day        time.Time
	TotalLeads int
	SentLeads  int
	ErrorLeads int
}

// Store is the lead persistence API used by the processing cycle and the
// monitor. All errors returned are already classified at the call site:
// callers translate them into cycle-level or lead-level failures and never
// see raw driver panics.
type Store interface {
	// FetchUnprocessed returns up to limit leads in status "novo",
	// newest first (the order the site shows them to the broker).
	FetchUnprocessed(ctx context.Context, limit int) ([]lead.Lead, error)
	// UpdateStatus writes the lead's lifecycle status. Last writer wins.
	UpdateStatus(ctx context.Context, id string, status lead.Status) error
	// SiteSettings returns the current site configuration row.
	SiteSettings(ctx context.Context) (Settings, error)
	// CountUnprocessed is used by health checks; cheaper than a fetch.
	CountUnprocessed(ctx context.Context) (int, error)
	// DailyStats aggregates processing counters for the given day.
	DailyStats(ctx context.Context, day time.Time) (Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open initializes the configured store. A missing DSN is the only fatal
// configuration error in the whole agent.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, ErrNotConfigured
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		switch {
		case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
			driver = "postgres"
		default:
			driver = "sqlite"
		}
	}

	switch driver {
	case "postgres", "pgx":
		return openPostgres(ctx, dsn, log)
	case "sqlite", "sqlite3":
		return openSQLite(dsn, log)
	default:
		return nil, errors.New("store: unknown driver: " + driver)
	}
}
