package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-enricher/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore. Satisfied by
// pgxmock.PgxPoolIface in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
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
CREATE TABLE IF NOT EXISTS prospects (
	id                     TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	title                  TEXT NOT NULL DEFAULT '',
	description            TEXT NOT NULL DEFAULT '',
	agency                 TEXT NOT NULL DEFAULT '',
	contract_type          TEXT NOT NULL DEFAULT '',
	enhanced_title         TEXT NOT NULL DEFAULT '',
	estimated_value_text   TEXT NOT NULL DEFAULT '',
	estimated_value_single DOUBLE PRECISION,
	estimated_value_min    DOUBLE PRECISION,
	estimated_value_max    DOUBLE PRECISION,
	naics_code             TEXT NOT NULL DEFAULT '',
	naics_description      TEXT NOT NULL DEFAULT '',
	naics_source           TEXT NOT NULL DEFAULT '',
	set_aside              TEXT NOT NULL DEFAULT '',
	set_aside_standard     TEXT NOT NULL DEFAULT '',
	set_aside_label        TEXT NOT NULL DEFAULT '',
	extra                  JSONB NOT NULL DEFAULT '{}',
	enhancement_status     TEXT NOT NULL DEFAULT 'idle',
	enhancement_user_id    TEXT NOT NULL DEFAULT '',
	enhancement_started_at TIMESTAMPTZ,
	last_enhanced_at       TIMESTAMPTZ,
	model_version          TEXT NOT NULL DEFAULT '',
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_log (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	prospect_id    TEXT NOT NULL,
	use_case       TEXT NOT NULL,
	model          TEXT NOT NULL DEFAULT '',
	prompt_chars   BIGINT NOT NULL DEFAULT 0,
	response_chars BIGINT NOT NULL DEFAULT 0,
	response       TEXT NOT NULL DEFAULT '',
	success        BOOLEAN NOT NULL DEFAULT false,
	error          TEXT NOT NULL DEFAULT '',
	latency_ms     BIGINT NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_prospects_status ON prospects(enhancement_status);
CREATE INDEX IF NOT EXISTS idx_prospects_naics ON prospects(naics_code);
CREATE INDEX IF NOT EXISTS idx_audit_prospect ON audit_log(prospect_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const pgProspectColumns = `id, title, description, agency, contract_type, enhanced_title,
	estimated_value_text, estimated_value_single, estimated_value_min, estimated_value_max,
	naics_code, naics_description, naics_source,
	set_aside, set_aside_standard, set_aside_label, extra,
	enhancement_status, enhancement_user_id, enhancement_started_at,
	last_enhanced_at, model_version, created_at, updated_at`

func (s *PostgresStore) CreateProspect(ctx context.Context, p *model.Prospect) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.EnhancementStatus == "" {
		p.EnhancementStatus = model.LockIdle
	}

	extraJSON, err := marshalExtra(p.Extra)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO prospects (`+pgProspectColumns+`) VALUES
		 ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		p.ID, p.Title, p.Description, p.Agency, p.ContractType, p.EnhancedTitle,
		p.EstimatedValueText, p.EstimatedValueSingle, p.EstimatedValueMin, p.EstimatedValueMax,
		p.NaicsCode, p.NaicsDescription, string(p.NaicsSource),
		p.SetAside, p.SetAsideStandard, p.SetAsideLabel, extraJSON,
		string(p.EnhancementStatus), p.EnhancementUserID, p.EnhancementStartedAt,
		p.LastEnhancedAt, p.ModelVersion, now, now,
	)
	return eris.Wrapf(err, "postgres: insert prospect %s", p.ID)
}

func (s *PostgresStore) GetProspect(ctx context.Context, id string) (*model.Prospect, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgProspectColumns+` FROM prospects WHERE id = $1`, id)
	p, err := scanPgProspect(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return p, err
}

func (s *PostgresStore) PutProspect(ctx context.Context, p *model.Prospect) error {
	extraJSON, err := marshalExtra(p.Extra)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE prospects SET
			title = $1, description = $2, agency = $3, contract_type = $4, enhanced_title = $5,
			estimated_value_text = $6, estimated_value_single = $7, estimated_value_min = $8, estimated_value_max = $9,
			naics_code = $10, naics_description = $11, naics_source = $12,
			set_aside = $13, set_aside_standard = $14, set_aside_label = $15, extra = $16,
			last_enhanced_at = $17, model_version = $18, updated_at = now()
		 WHERE id = $19`,
		p.Title, p.Description, p.Agency, p.ContractType, p.EnhancedTitle,
		p.EstimatedValueText, p.EstimatedValueSingle, p.EstimatedValueMin, p.EstimatedValueMax,
		p.NaicsCode, p.NaicsDescription, string(p.NaicsSource),
		p.SetAside, p.SetAsideStandard, p.SetAsideLabel, extraJSON,
		p.LastEnhancedAt, p.ModelVersion,
		p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update prospect %s", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", p.ID)
	}
	return nil
}

func (s *PostgresStore) ListMissingKind(ctx context.Context, kind model.Kind, limit int) ([]string, error) {
	clause, ok := missingKindClauses[kind]
	if !ok {
		return nil, eris.Errorf("postgres: no missing-kind query for %q", kind)
	}
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id FROM prospects WHERE `+clause+` ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list missing %s", kind)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: list missing iterate")
}

func (s *PostgresStore) ListProspectIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM prospects ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list prospect ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: list prospect ids iterate")
}

func (s *PostgresStore) CountProspects(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM prospects`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count prospects")
}

func (s *PostgresStore) AcquireLock(ctx context.Context, prospectID, ownerID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE prospects
		 SET enhancement_status = $1, enhancement_user_id = $2, enhancement_started_at = now(), updated_at = now()
		 WHERE id = $3 AND (enhancement_status != $1 OR enhancement_user_id = $2)`,
		string(model.LockInProgress), ownerID, prospectID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: acquire lock %s", prospectID)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM prospects WHERE id = $1`, prospectID).Scan(&exists); err != nil {
		return eris.Wrapf(err, "postgres: acquire lock check %s", prospectID)
	}
	if exists == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", prospectID)
	}
	return eris.Wrapf(ErrLockConflict, "id %s", prospectID)
}

func (s *PostgresStore) ReleaseLock(ctx context.Context, prospectID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE prospects
		 SET enhancement_status = $1, enhancement_user_id = '', enhancement_started_at = NULL, updated_at = now()
		 WHERE id = $2`,
		string(model.LockIdle), prospectID,
	)
	return eris.Wrapf(err, "postgres: release lock %s", prospectID)
}

func (s *PostgresStore) ReclaimStaleLocks(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx,
		`UPDATE prospects
		 SET enhancement_status = $1, enhancement_user_id = '', enhancement_started_at = NULL, updated_at = now()
		 WHERE enhancement_status = $2 AND enhancement_started_at < $3`,
		string(model.LockIdle), string(model.LockInProgress), cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reclaim stale locks")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (id, prospect_id, use_case, model, prompt_chars, response_chars, response, success, error, latency_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.ProspectID, entry.UseCase, entry.Model,
		entry.PromptChars, entry.ResponseChars, entry.Response,
		entry.Success, entry.Error, entry.LatencyMS, entry.CreatedAt,
	)
	return eris.Wrap(err, "postgres: append audit")
}

func scanPgProspect(row pgx.Row) (*model.Prospect, error) {
	var p model.Prospect
	var (
		naicsSource string
		status      string
		extraJSON   []byte
	)

	err := row.Scan(
		&p.ID, &p.Title, &p.Description, &p.Agency, &p.ContractType, &p.EnhancedTitle,
		&p.EstimatedValueText, &p.EstimatedValueSingle, &p.EstimatedValueMin, &p.EstimatedValueMax,
		&p.NaicsCode, &p.NaicsDescription, &naicsSource,
		&p.SetAside, &p.SetAsideStandard, &p.SetAsideLabel, &extraJSON,
		&status, &p.EnhancementUserID, &p.EnhancementStartedAt,
		&p.LastEnhancedAt, &p.ModelVersion, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan prospect")
	}

	p.NaicsSource = model.NaicsSource(naicsSource)
	p.EnhancementStatus = model.LockStatus(status)
	if len(extraJSON) > 0 && string(extraJSON) != "{}" {
		if err := json.Unmarshal(extraJSON, &p.Extra); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal extra")
		}
	}
	return &p, nil
}
