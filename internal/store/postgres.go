package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector/internal/cache"
	"github.com/sells-group/prospector/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	goal       JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS entities (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	subject    TEXT NOT NULL,
	state      TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS response_cache (
	key        TEXT PRIMARY KEY,
	class      TEXT NOT NULL,
	value      BYTEA NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_entities_run_id ON entities(run_id);
CREATE INDEX IF NOT EXISTS idx_entities_state ON entities(state);
CREATE INDEX IF NOT EXISTS idx_entities_confidence ON entities(confidence);
CREATE INDEX IF NOT EXISTS idx_response_cache_expires ON response_cache(expires_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, goal model.Goal) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	goalJSON, err := json.Marshal(goal)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal goal")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, goal, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, goalJSON, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Goal:      goal,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run result %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, goal, status, result, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	return scanPgRun(row)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, goal, status, result, created_at, updated_at FROM runs`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func (s *PostgresStore) PutEntity(ctx context.Context, runID string, entity model.VerifiedEntity) error {
	if entity.ID == "" {
		entity.ID = uuid.New().String()
	}
	payload, err := json.Marshal(entity)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal entity")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO entities (id, run_id, subject, state, confidence, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state,
		   confidence = EXCLUDED.confidence, payload = EXCLUDED.payload`,
		entity.ID, runID, entity.Subject, string(entity.State), entity.Confidence,
		payload, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: put entity %s", entity.Subject)
}

func (s *PostgresStore) QueryEntities(ctx context.Context, filter EntityFilter) ([]model.VerifiedEntity, error) {
	query := `SELECT payload FROM entities WHERE confidence >= $1`
	args := []any{filter.MinConfidence}
	if filter.State != "" {
		query += fmt.Sprintf(` AND state = $%d`, len(args)+1)
		args = append(args, string(filter.State))
	}
	if filter.Subject != "" {
		query += fmt.Sprintf(` AND subject ILIKE $%d`, len(args)+1)
		args = append(args, "%"+filter.Subject+"%")
	}
	query += ` ORDER BY confidence DESC, subject ASC`
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query entities")
	}
	defer rows.Close()

	var entities []model.VerifiedEntity
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		var e model.VerifiedEntity
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal entity")
		}
		entities = append(entities, e)
	}
	return entities, eris.Wrap(rows.Err(), "postgres: iterate entities")
}

func (s *PostgresStore) CacheGet(ctx context.Context, key string) (cache.Entry, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT key, class, value, expires_at FROM response_cache WHERE key = $1 AND expires_at > now()`,
		key,
	)

	var e cache.Entry
	var class string
	if err := row.Scan(&e.Key, &class, &e.Value, &e.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, eris.Wrap(err, "postgres: cache get")
	}
	e.Class = cache.Class(class)
	return e, true, nil
}

func (s *PostgresStore) CacheSet(ctx context.Context, e cache.Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO response_cache (key, class, value, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET class = EXCLUDED.class,
		   value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		e.Key, string(e.Class), e.Value, e.ExpiresAt.UTC(),
	)
	return eris.Wrap(err, "postgres: cache set")
}

func (s *PostgresStore) PurgeExpired(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM response_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: purge expired")
	}
	return int(tag.RowsAffected()), nil
}

type pgScanner interface {
	Scan(dest ...any) error
}

func scanPgRun(row pgScanner) (*model.Run, error) {
	var (
		run        model.Run
		goalJSON   []byte
		status     string
		resultJSON []byte
	)
	if err := row.Scan(&run.ID, &goalJSON, &status, &resultJSON, &run.CreatedAt, &run.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrap(err, "store: run not found")
		}
		return nil, eris.Wrap(err, "store: scan run")
	}
	if err := json.Unmarshal(goalJSON, &run.Goal); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal goal")
	}
	run.Status = model.RunStatus(status)
	if len(resultJSON) > 0 {
		run.Result = &model.RunResult{}
		if err := json.Unmarshal(resultJSON, run.Result); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal result")
		}
	}
	return &run, nil
}
