package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospector/internal/cache"
	"github.com/sells-group/prospector/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	goal       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS entities (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	subject    TEXT NOT NULL,
	state      TEXT NOT NULL,
	confidence REAL NOT NULL,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS response_cache (
	key        TEXT PRIMARY KEY,
	class      TEXT NOT NULL,
	value      BLOB NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_entities_run_id ON entities(run_id);
CREATE INDEX IF NOT EXISTS idx_entities_state ON entities(state);
CREATE INDEX IF NOT EXISTS idx_entities_confidence ON entities(confidence);
CREATE INDEX IF NOT EXISTS idx_response_cache_expires ON response_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, goal model.Goal) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	goalJSON, err := json.Marshal(goal)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal goal")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, goal, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(goalJSON), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Goal:      goal,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	status := model.RunStatusComplete
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run result %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, goal, status, result, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, goal, status, result, created_at, updated_at FROM runs`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) PutEntity(ctx context.Context, runID string, entity model.VerifiedEntity) error {
	if entity.ID == "" {
		entity.ID = uuid.New().String()
	}
	payload, err := json.Marshal(entity)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal entity")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entities (id, run_id, subject, state, confidence, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET state = excluded.state,
		   confidence = excluded.confidence, payload = excluded.payload`,
		entity.ID, runID, entity.Subject, string(entity.State), entity.Confidence,
		string(payload), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: put entity %s", entity.Subject)
}

func (s *SQLiteStore) QueryEntities(ctx context.Context, filter EntityFilter) ([]model.VerifiedEntity, error) {
	query := `SELECT payload FROM entities WHERE confidence >= ?`
	args := []any{filter.MinConfidence}
	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	if filter.Subject != "" {
		query += ` AND subject LIKE ?`
		args = append(args, "%"+filter.Subject+"%")
	}
	query += ` ORDER BY confidence DESC, subject ASC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query entities")
	}
	defer rows.Close()

	var entities []model.VerifiedEntity
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		var e model.VerifiedEntity
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal entity")
		}
		entities = append(entities, e)
	}
	return entities, eris.Wrap(rows.Err(), "sqlite: iterate entities")
}

func (s *SQLiteStore) CacheGet(ctx context.Context, key string) (cache.Entry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, class, value, expires_at FROM response_cache WHERE key = ? AND expires_at > ?`,
		key, time.Now().UTC(),
	)

	var e cache.Entry
	var class string
	if err := row.Scan(&e.Key, &class, &e.Value, &e.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, eris.Wrap(err, "sqlite: cache get")
	}
	e.Class = cache.Class(class)
	return e, true, nil
}

func (s *SQLiteStore) CacheSet(ctx context.Context, e cache.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO response_cache (key, class, value, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET class = excluded.class,
		   value = excluded.value, expires_at = excluded.expires_at`,
		e.Key, string(e.Class), e.Value, e.ExpiresAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: cache set")
}

func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM response_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge expired")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: purge rows affected")
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.Run, error) {
	var (
		run        model.Run
		goalJSON   string
		status     string
		resultJSON sql.NullString
	)
	if err := row.Scan(&run.ID, &goalJSON, &status, &resultJSON, &run.CreatedAt, &run.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrap(err, "store: run not found")
		}
		return nil, eris.Wrap(err, "store: scan run")
	}
	if err := json.Unmarshal([]byte(goalJSON), &run.Goal); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal goal")
	}
	run.Status = model.RunStatus(status)
	if resultJSON.Valid && resultJSON.String != "" {
		run.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), run.Result); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal result")
		}
	}
	return &run, nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "store: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return eris.Errorf("store: %s not found: %s", kind, id)
	}
	return nil
}
