package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"cflp/internal/costmatrix"
	"cflp/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies the embedded migrations that have not run yet, each in its own
// transaction, recording them in schema_migrations.
func (p *Postgres) Migrate(ctx context.Context) error {
	return p.MigrateFS(ctx, migrationsFS, "migrations")
}

// MigrateFS applies *.sql files from dir in fsys in lexical order.
func (p *Postgres) MigrateFS(ctx context.Context, fsys fs.FS, dir string) error {
	if _, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	files, err := migrationFiles(fsys, dir)
	if err != nil {
		return err
	}
	for _, name := range files {
		var done bool
		if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name=$1)`, name).Scan(&done); err != nil {
			return err
		}
		if done {
			continue
		}
		body, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return err
		}
		tx, err := p.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func migrationFiles(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

func (p *Postgres) LoadCostMatrix(ctx context.Context, scenario string) (*costmatrix.Matrix, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT matrix::text FROM cost_matrices WHERE scenario=$1`, scenario).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeMatrix(raw)
}

func (p *Postgres) SaveCostMatrix(ctx context.Context, scenario string, m *costmatrix.Matrix) error {
	data, err := encodeMatrix(m)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO cost_matrices (scenario, matrix, updated_at) VALUES ($1, $2::json, now())
        ON CONFLICT (scenario) DO UPDATE SET matrix=EXCLUDED.matrix, updated_at=now()`, scenario, string(data))
	return err
}

func (p *Postgres) DeleteCostMatrix(ctx context.Context, scenario string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM cost_matrices WHERE scenario=$1`, scenario)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SaveAssignment(ctx context.Context, scenario string, a model.Assignment) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO assignments (scenario, assignment, updated_at) VALUES ($1, $2::jsonb, now())
        ON CONFLICT (scenario) DO UPDATE SET assignment=EXCLUDED.assignment, updated_at=now()`, scenario, string(data))
	return err
}

func (p *Postgres) LoadAssignment(ctx context.Context, scenario string) (model.Assignment, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT assignment::text FROM assignments WHERE scenario=$1`, scenario).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeAssignment(raw)
}

func (p *Postgres) SaveSolveRun(ctx context.Context, run SolveRun) error {
	id, err := uuid.Parse(run.ID)
	if err != nil {
		id = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO solve_runs (id, scenario, status, objective, gap, open_facilities, assigned, demand, solving_ms, started_at, persist_error)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		id, run.Scenario, run.Status, run.Objective, run.Gap, run.OpenFacilities, run.Assigned, run.Demand,
		run.SolvingTime.Milliseconds(), run.StartedAt, nullIfEmpty(run.PersistError))
	return err
}

func (p *Postgres) ListSolveRuns(ctx context.Context, scenario string, limit int) ([]SolveRun, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, scenario, status, objective, gap, open_facilities, assigned, demand, solving_ms, started_at, persist_error
        FROM solve_runs WHERE scenario=$1 ORDER BY started_at DESC LIMIT $2`, scenario, runLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []SolveRun{}
	for rows.Next() {
		var r SolveRun
		var ms int64
		var perr sql.NullString
		if err := rows.Scan(&r.ID, &r.Scenario, &r.Status, &r.Objective, &r.Gap, &r.OpenFacilities, &r.Assigned, &r.Demand, &ms, &r.StartedAt, &perr); err != nil {
			return nil, err
		}
		r.SolvingTime = time.Duration(ms) * time.Millisecond
		r.PersistError = perr.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
