package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospect-enricher/internal/model"
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
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS prospects (
	id                     TEXT PRIMARY KEY,
	title                  TEXT NOT NULL DEFAULT '',
	description            TEXT NOT NULL DEFAULT '',
	agency                 TEXT NOT NULL DEFAULT '',
	contract_type          TEXT NOT NULL DEFAULT '',
	enhanced_title         TEXT NOT NULL DEFAULT '',
	estimated_value_text   TEXT NOT NULL DEFAULT '',
	estimated_value_single REAL,
	estimated_value_min    REAL,
	estimated_value_max    REAL,
	naics_code             TEXT NOT NULL DEFAULT '',
	naics_description      TEXT NOT NULL DEFAULT '',
	naics_source           TEXT NOT NULL DEFAULT '',
	set_aside              TEXT NOT NULL DEFAULT '',
	set_aside_standard     TEXT NOT NULL DEFAULT '',
	set_aside_label        TEXT NOT NULL DEFAULT '',
	extra                  TEXT NOT NULL DEFAULT '{}',
	enhancement_status     TEXT NOT NULL DEFAULT 'idle',
	enhancement_user_id    TEXT NOT NULL DEFAULT '',
	enhancement_started_at DATETIME,
	last_enhanced_at       DATETIME,
	model_version          TEXT NOT NULL DEFAULT '',
	created_at             DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at             DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS audit_log (
	id             TEXT PRIMARY KEY,
	prospect_id    TEXT NOT NULL,
	use_case       TEXT NOT NULL,
	model          TEXT NOT NULL DEFAULT '',
	prompt_chars   INTEGER NOT NULL DEFAULT 0,
	response_chars INTEGER NOT NULL DEFAULT 0,
	response       TEXT NOT NULL DEFAULT '',
	success        INTEGER NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT '',
	latency_ms     INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_prospects_status ON prospects(enhancement_status);
CREATE INDEX IF NOT EXISTS idx_prospects_naics ON prospects(naics_code);
CREATE INDEX IF NOT EXISTS idx_audit_prospect ON audit_log(prospect_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const prospectColumns = `id, title, description, agency, contract_type, enhanced_title,
	estimated_value_text, estimated_value_single, estimated_value_min, estimated_value_max,
	naics_code, naics_description, naics_source,
	set_aside, set_aside_standard, set_aside_label, extra,
	enhancement_status, enhancement_user_id, enhancement_started_at,
	last_enhanced_at, model_version, created_at, updated_at`

func (s *SQLiteStore) CreateProspect(ctx context.Context, p *model.Prospect) error {
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

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO prospects (`+prospectColumns+`) VALUES
		 (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Description, p.Agency, p.ContractType, p.EnhancedTitle,
		p.EstimatedValueText, nullFloat(p.EstimatedValueSingle), nullFloat(p.EstimatedValueMin), nullFloat(p.EstimatedValueMax),
		p.NaicsCode, p.NaicsDescription, string(p.NaicsSource),
		p.SetAside, p.SetAsideStandard, p.SetAsideLabel, extraJSON,
		string(p.EnhancementStatus), p.EnhancementUserID, nullTime(p.EnhancementStartedAt),
		nullTime(p.LastEnhancedAt), p.ModelVersion, now, now,
	)
	return eris.Wrapf(err, "sqlite: insert prospect %s", p.ID)
}

func (s *SQLiteStore) GetProspect(ctx context.Context, id string) (*model.Prospect, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+prospectColumns+` FROM prospects WHERE id = ?`, id)
	return scanProspect(row)
}

func (s *SQLiteStore) PutProspect(ctx context.Context, p *model.Prospect) error {
	extraJSON, err := marshalExtra(p.Extra)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE prospects SET
			title = ?, description = ?, agency = ?, contract_type = ?, enhanced_title = ?,
			estimated_value_text = ?, estimated_value_single = ?, estimated_value_min = ?, estimated_value_max = ?,
			naics_code = ?, naics_description = ?, naics_source = ?,
			set_aside = ?, set_aside_standard = ?, set_aside_label = ?, extra = ?,
			last_enhanced_at = ?, model_version = ?, updated_at = ?
		 WHERE id = ?`,
		p.Title, p.Description, p.Agency, p.ContractType, p.EnhancedTitle,
		p.EstimatedValueText, nullFloat(p.EstimatedValueSingle), nullFloat(p.EstimatedValueMin), nullFloat(p.EstimatedValueMax),
		p.NaicsCode, p.NaicsDescription, string(p.NaicsSource),
		p.SetAside, p.SetAsideStandard, p.SetAsideLabel, extraJSON,
		nullTime(p.LastEnhancedAt), p.ModelVersion, now,
		p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update prospect %s", p.ID)
	}
	return checkFound(res, p.ID)
}

// missingKindClauses maps an enhancement kind to the WHERE clause
// selecting prospects that still need it.
var missingKindClauses = map[model.Kind]string{
	model.KindTitle:    `enhanced_title = ''`,
	model.KindValue:    `estimated_value_single IS NULL AND (estimated_value_min IS NULL OR estimated_value_max IS NULL)`,
	model.KindNaics:    `naics_code = '' OR naics_description = ''`,
	model.KindSetAside: `set_aside_standard = ''`,
}

func (s *SQLiteStore) ListMissingKind(ctx context.Context, kind model.Kind, limit int) ([]string, error) {
	clause, ok := missingKindClauses[kind]
	if !ok {
		return nil, eris.Errorf("sqlite: no missing-kind query for %q", kind)
	}
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM prospects WHERE `+clause+` ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list missing %s", kind)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: list missing iterate")
}

func (s *SQLiteStore) ListProspectIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM prospects ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list prospect ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: list prospect ids iterate")
}

func (s *SQLiteStore) CountProspects(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prospects`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count prospects")
}

func (s *SQLiteStore) AcquireLock(ctx context.Context, prospectID, ownerID string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE prospects
		 SET enhancement_status = ?, enhancement_user_id = ?, enhancement_started_at = ?, updated_at = ?
		 WHERE id = ? AND (enhancement_status != ? OR enhancement_user_id = ?)`,
		string(model.LockInProgress), ownerID, now, now,
		prospectID, string(model.LockInProgress), ownerID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: acquire lock %s", prospectID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}

	// No row matched: either the prospect is missing or locked by someone else.
	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM prospects WHERE id = ?`, prospectID).Scan(&exists); err != nil {
		return eris.Wrapf(err, "sqlite: acquire lock check %s", prospectID)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrLockConflict
}

func (s *SQLiteStore) ReleaseLock(ctx context.Context, prospectID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE prospects
		 SET enhancement_status = ?, enhancement_user_id = '', enhancement_started_at = NULL, updated_at = ?
		 WHERE id = ?`,
		string(model.LockIdle), time.Now().UTC(), prospectID,
	)
	return eris.Wrapf(err, "sqlite: release lock %s", prospectID)
}

func (s *SQLiteStore) ReclaimStaleLocks(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		`UPDATE prospects
		 SET enhancement_status = ?, enhancement_user_id = '', enhancement_started_at = NULL, updated_at = ?
		 WHERE enhancement_status = ? AND enhancement_started_at < ?`,
		string(model.LockIdle), time.Now().UTC(), string(model.LockInProgress), cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reclaim stale locks")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, prospect_id, use_case, model, prompt_chars, response_chars, response, success, error, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ProspectID, entry.UseCase, entry.Model,
		entry.PromptChars, entry.ResponseChars, entry.Response,
		entry.Success, entry.Error, entry.LatencyMS, entry.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: append audit")
}

// helpers

func marshalExtra(extra map[string]any) (string, error) {
	if extra == nil {
		return "{}", nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal extra")
	}
	return string(b), nil
}

func checkFound(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanProspect(row scannable) (*model.Prospect, error) {
	var p model.Prospect
	var (
		single, min, max sql.NullFloat64
		naicsSource      string
		status           string
		extraJSON        string
		startedAt        sql.NullTime
		lastEnhanced     sql.NullTime
	)

	err := row.Scan(
		&p.ID, &p.Title, &p.Description, &p.Agency, &p.ContractType, &p.EnhancedTitle,
		&p.EstimatedValueText, &single, &min, &max,
		&p.NaicsCode, &p.NaicsDescription, &naicsSource,
		&p.SetAside, &p.SetAsideStandard, &p.SetAsideLabel, &extraJSON,
		&status, &p.EnhancementUserID, &startedAt,
		&lastEnhanced, &p.ModelVersion, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan prospect")
	}

	p.NaicsSource = model.NaicsSource(naicsSource)
	p.EnhancementStatus = model.LockStatus(status)
	if single.Valid {
		p.EstimatedValueSingle = &single.Float64
	}
	if min.Valid {
		p.EstimatedValueMin = &min.Float64
	}
	if max.Valid {
		p.EstimatedValueMax = &max.Float64
	}
	if startedAt.Valid {
		t := startedAt.Time
		p.EnhancementStartedAt = &t
	}
	if lastEnhanced.Valid {
		t := lastEnhanced.Time
		p.LastEnhancedAt = &t
	}
	if extraJSON != "" && extraJSON != "{}" {
		if err := json.Unmarshal([]byte(extraJSON), &p.Extra); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal extra")
		}
	}
	return &p, nil
}
