// Package store persists run reports. Memory is used when no database is
// configured; Postgres otherwise.
package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"vrpgoal/internal/config"
	"vrpgoal/internal/report"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrBadCursor = errors.New("invalid cursor")
)

// Summary is the listing view of a stored report.
type Summary struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	Fitness    float64   `json:"fitness"`
	Unassigned int       `json:"unassigned"`
	Version    string    `json:"version"`
}

// Store is the persistence interface for run reports. Listings are newest
// first; nextCursor is empty on the last page.
type Store interface {
	SaveReport(ctx context.Context, r report.Report) error
	GetReport(ctx context.Context, id string) (report.Report, error)
	ListReports(ctx context.Context, cursor string, limit int) (items []Summary, nextCursor string, err error)
	DeleteReport(ctx context.Context, id string) error
	Close() error
}

// Open picks the backend from cfg. Postgres runs its migrations when
// cfg.Migrate is set.
func Open(ctx context.Context, cfg config.Store, log logr.Logger) (Store, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.V(2).Info("Using in-memory report store")
		return NewMemory(), nil
	}
	p, err := NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.Migrate {
		if err := p.Migrate(ctx); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	log.V(2).Info("Using postgres report store", "migrated", cfg.Migrate)
	return p, nil
}

func summarize(r report.Report) Summary {
	return Summary{ID: r.ID, CreatedAt: r.CreatedAt, Fitness: r.Fitness, Unassigned: len(r.Unassigned), Version: r.Build.Version}
}

// cursors point at the last item of a page: its creation time and ID.
func encodeCursor(s Summary) string {
	raw := s.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + s.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(c string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(c)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return time.Time{}, "", ErrBadCursor
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	return t, id, nil
}

// before orders summaries newest first, ID descending on ties.
func before(a Summary, t time.Time, id string) bool {
	if !a.CreatedAt.Equal(t) {
		return a.CreatedAt.Before(t)
	}
	return a.ID < id
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
