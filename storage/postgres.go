package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"farecraft/models"
	"farecraft/token"
	"farecraft/utils"

	"github.com/lib/pq"
)

var (
	_ token.Store = (*PostgresStore)(nil)
	_ RunStore    = (*PostgresStore)(nil)
)

// uniqueViolation is the SQLSTATE for a unique index conflict.
const uniqueViolation = "23505"

// PostgresStore keeps token sets and scrape runs in PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *utils.Logger
}

// NewPostgresStore opens the database, pings it and applies the schema
func NewPostgresStore(ctx context.Context, connStr string, logger *utils.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Minute * 5)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	logger.Info("Connected to PostgreSQL successfully")
	s := &PostgresStore{db: db, logger: logger}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables if they don't exist, with indexes. The partial unique
// index on running runs backs TryStart's one-running-run rule.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS token_sets (
		scope_key    TEXT        PRIMARY KEY,
		tokens       JSONB       NOT NULL,
		expires_at   TIMESTAMPTZ NOT NULL,
		refreshed_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scrape_runs (
		id           TEXT        PRIMARY KEY,
		status       VARCHAR(16) NOT NULL,
		origin       CHAR(3)     NOT NULL,
		destination  CHAR(3)     NOT NULL,
		search_date  DATE        NOT NULL,
		total_flights INTEGER    NOT NULL DEFAULT 0,
		avg_cpp      NUMERIC(8,2) NOT NULL DEFAULT 0,
		data         JSONB       NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_scrape_runs_created ON scrape_runs (created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_scrape_runs_route   ON scrape_runs (origin, destination, search_date);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_scrape_runs_one_running ON scrape_runs (status) WHERE status = 'running';
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	s.logger.Info("Tables 'token_sets' and 'scrape_runs' are ready")
	return nil
}

// SetMaxOpenConns caps the connection pool.
func (s *PostgresStore) SetMaxOpenConns(n int) {
	if n > 0 {
		s.db.SetMaxOpenConns(n)
	}
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, scopeKey string) (models.TokenSet, bool, error) {
	var (
		raw []byte
		ts  = models.TokenSet{ScopeKey: scopeKey}
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT tokens, expires_at, refreshed_at FROM token_sets WHERE scope_key = $1`, scopeKey,
	).Scan(&raw, &ts.ExpiresAt, &ts.RefreshedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TokenSet{}, false, nil
	}
	if err != nil {
		return models.TokenSet{}, false, fmt.Errorf("failed to read token set %s: %w", scopeKey, err)
	}
	if err := json.Unmarshal(raw, &ts.Values); err != nil {
		return models.TokenSet{}, false, fmt.Errorf("failed to decode token set %s: %w", scopeKey, err)
	}
	return ts, true, nil
}

// Put upserts the whole record in one statement
func (s *PostgresStore) Put(ctx context.Context, ts models.TokenSet) error {
	raw, err := json.Marshal(ts.Values)
	if err != nil {
		return fmt.Errorf("failed to encode token set: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO token_sets (scope_key, tokens, expires_at, refreshed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (scope_key) DO UPDATE
		SET tokens = EXCLUDED.tokens, expires_at = EXCLUDED.expires_at, refreshed_at = EXCLUDED.refreshed_at
	`, ts.ScopeKey, raw, ts.ExpiresAt, ts.RefreshedAt)
	if err != nil {
		return fmt.Errorf("failed to store token set %s: %w", ts.ScopeKey, err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context, scopeKey string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM token_sets WHERE scope_key = $1`, scopeKey); err != nil {
		return fmt.Errorf("failed to clear token set %s: %w", scopeKey, err)
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run models.ScrapeRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scrape_runs (id, status, origin, destination, search_date, total_flights, avg_cpp, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, run.ID, run.Status, run.Params.Origin, run.Params.Destination, run.Params.Date, run.TotalFlights, run.AvgCPP, data, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

// TryStart claims the running slot in one transaction. The partial unique index
// rejects a concurrent claim that slipped past the existence check.
func (s *PostgresStore) TryStart(ctx context.Context, id string, startedAt time.Time) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var raw []byte
	err = tx.QueryRowContext(ctx, `SELECT data FROM scrape_runs WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRunNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", id, err)
	}

	var running bool
	err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM scrape_runs WHERE status = 'running')`).Scan(&running)
	if err != nil {
		return fmt.Errorf("failed to check running runs: %w", err)
	}
	if running {
		return ErrRunInProgress
	}

	var run models.ScrapeRun
	if err = json.Unmarshal(raw, &run); err != nil {
		return fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	run.Status = models.RunRunning
	run.StartedAt = &startedAt
	if err = s.updateRun(ctx, tx, run); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrRunInProgress
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InterruptRuns locks the running rows and fails the stale ones in one transaction.
func (s *PostgresStore) InterruptRuns(ctx context.Context, cutoff time.Time, reason string, at time.Time) (ids []string, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, `SELECT data FROM scrape_runs WHERE status = 'running' FOR UPDATE`)
	if err != nil {
		return nil, fmt.Errorf("failed to load running runs: %w", err)
	}
	var stale []models.ScrapeRun
	for rows.Next() {
		var raw []byte
		if err = rows.Scan(&raw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		var run models.ScrapeRun
		if err = json.Unmarshal(raw, &run); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to decode run: %w", err)
		}
		if run, ok := interrupted(run, cutoff, reason, at); ok {
			stale = append(stale, run)
		}
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read running runs: %w", err)
	}

	for _, run := range stale {
		if err = s.updateRun(ctx, tx, run); err != nil {
			return nil, err
		}
		ids = append(ids, run.ID)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, run models.ScrapeRun) error {
	return s.updateRun(ctx, s.db, run)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) updateRun(ctx context.Context, db execer, run models.ScrapeRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	res, err := db.ExecContext(ctx, `
		UPDATE scrape_runs SET status = $2, total_flights = $3, avg_cpp = $4, data = $5
		WHERE id = $1
	`, run.ID, run.Status, run.TotalFlights, run.AvgCPP, data)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (models.ScrapeRun, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM scrape_runs WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ScrapeRun{}, ErrRunNotFound
	}
	if err != nil {
		return models.ScrapeRun{}, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	var run models.ScrapeRun
	if err := json.Unmarshal(raw, &run); err != nil {
		return models.ScrapeRun{}, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit, offset int) ([]models.ScrapeRun, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM scrape_runs ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []models.ScrapeRun{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		var run models.ScrapeRun
		if err := json.Unmarshal(raw, &run); err != nil {
			s.logger.Warn("Skipping undecodable run: %v", err)
			continue
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) LatestRun(ctx context.Context) (models.ScrapeRun, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM scrape_runs WHERE status = 'succeeded' ORDER BY created_at DESC, id DESC LIMIT 1`,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ScrapeRun{}, ErrRunNotFound
	}
	if err != nil {
		return models.ScrapeRun{}, fmt.Errorf("failed to load latest run: %w", err)
	}
	var run models.ScrapeRun
	if err := json.Unmarshal(raw, &run); err != nil {
		return models.ScrapeRun{}, fmt.Errorf("failed to decode latest run: %w", err)
	}
	return run, nil
}

func (s *PostgresStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scrape_runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}
	return nil
}
