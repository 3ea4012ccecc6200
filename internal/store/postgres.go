package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"vrpgoal/internal/report"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
	db  *sql.DB
	dsn string
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db, dsn: dsn}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate applies pending up migrations. It needs a URL-form DSN.
func (p *Postgres) Migrate(ctx context.Context) error {
	if err := p.Ping(ctx); err != nil {
		return err
	}
	target, err := migrateURL(p.dsn)
	if err != nil {
		return err
	}
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, target)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// migrateURL rewrites a postgres:// DSN to the migrate driver's scheme.
func migrateURL(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "postgres", "postgresql", "pgx5":
		u.Scheme = "pgx5"
		return u.String(), nil
	}
	return "", fmt.Errorf("migrations need a postgres:// URL, got scheme %q", u.Scheme)
}

func (p *Postgres) SaveReport(ctx context.Context, r report.Report) error {
	if r.ID == "" {
		return fmt.Errorf("report has no id")
	}
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO run_reports (id, created_at, fitness, unassigned, version, body) VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (id) DO UPDATE SET created_at=$2, fitness=$3, unassigned=$4, version=$5, body=$6`,
		r.ID, r.CreatedAt, r.Fitness, len(r.Unassigned), r.Build.Version, body)
	return err
}

func (p *Postgres) GetReport(ctx context.Context, id string) (report.Report, error) {
	var body []byte
	err := p.db.QueryRowContext(ctx, `SELECT body FROM run_reports WHERE id=$1`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return report.Report{}, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return report.Report{}, err
	}
	var r report.Report
	if err := json.Unmarshal(body, &r); err != nil {
		return report.Report{}, fmt.Errorf("decode report %s: %w", id, err)
	}
	return r, nil
}

func (p *Postgres) ListReports(ctx context.Context, cursor string, limit int) ([]Summary, string, error) {
	limit = clampLimit(limit)
	q := `SELECT id, created_at, fitness, unassigned, version FROM run_reports`
	args := []any{}
	if cursor != "" {
		t, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		q += ` WHERE (created_at, id) < ($1, $2)`
		args = append(args, t, id)
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, limit+1)
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []Summary{}
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.CreatedAt, &s.Fitness, &s.Unassigned, &s.Version); err != nil {
			return nil, "", err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = encodeCursor(out[len(out)-1])
	}
	return out, next, nil
}

func (p *Postgres) DeleteReport(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM run_reports WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	return nil
}

func (p *Postgres) Close() error { return p.db.Close() }
