package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/complykit/reconcore/internal/db"
	"github.com/complykit/reconcore/internal/model"
)

// PostgresLedger implements Store using a pgx pool.
type PostgresLedger struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresLedger with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresLedger, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
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
	return &PostgresLedger{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS evidence (
	id           TEXT PRIMARY KEY,
	scope_id     TEXT NOT NULL,
	module_id    TEXT NOT NULL,
	kind         TEXT NOT NULL,
	payload      JSONB NOT NULL,
	payload_hash TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS findings (
	id               TEXT PRIMARY KEY,
	scope_id         TEXT NOT NULL,
	module_id        TEXT NOT NULL,
	source_record_id TEXT NOT NULL,
	kind             TEXT NOT NULL,
	payload          JSONB NOT NULL,
	payload_hash     TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS finding_evidence_links (
	id          TEXT PRIMARY KEY,
	finding_id  TEXT NOT NULL REFERENCES findings(id),
	evidence_id TEXT NOT NULL REFERENCES evidence(id),
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evidence_scope_module ON evidence(scope_id, module_id);
CREATE INDEX IF NOT EXISTS idx_findings_scope_module ON findings(scope_id, module_id);
CREATE INDEX IF NOT EXISTS idx_links_finding_id ON finding_evidence_links(finding_id);
`

func (s *PostgresLedger) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresLedger) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresLedger) CreateEvidence(ctx context.Context, ev model.Evidence) (*model.Evidence, error) {
	return pgCreateEvidence(ctx, s.pool, ev)
}

func (s *PostgresLedger) CreateFinding(ctx context.Context, f model.Finding) (*model.Finding, error) {
	return pgCreateFinding(ctx, s.pool, f)
}

func (s *PostgresLedger) LinkFindingToEvidence(ctx context.Context, findingID, evidenceID string) (*model.FindingEvidenceLink, error) {
	return pgLink(ctx, s.pool, findingID, evidenceID)
}

func (s *PostgresLedger) InTx(ctx context.Context, fn func(w Writer) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&pgTxWriter{tx: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit tx")
}

type pgTxWriter struct {
	tx pgx.Tx
}

func (w *pgTxWriter) CreateEvidence(ctx context.Context, ev model.Evidence) (*model.Evidence, error) {
	return pgCreateEvidence(ctx, w.tx, ev)
}

func (w *pgTxWriter) CreateFinding(ctx context.Context, f model.Finding) (*model.Finding, error) {
	return pgCreateFinding(ctx, w.tx, f)
}

func (w *pgTxWriter) LinkFindingToEvidence(ctx context.Context, findingID, evidenceID string) (*model.FindingEvidenceLink, error) {
	return pgLink(ctx, w.tx, findingID, evidenceID)
}

func pgCreateEvidence(ctx context.Context, q db.Querier, ev model.Evidence) (*model.Evidence, error) {
	if err := validateEvidence(ev); err != nil {
		return nil, err
	}
	hash, err := PayloadHash(ev.Payload)
	if err != nil {
		return nil, err
	}

	existing, err := pgGetEvidence(ctx, q, ev.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return evidenceIfEqual(existing, ev, hash)
	}

	ev.CreatedAt = stamp(ev.CreatedAt)
	_, err = q.Exec(ctx,
		`INSERT INTO evidence (id, scope_id, module_id, kind, payload, payload_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.ScopeID, ev.ModuleID, ev.Kind, string(ev.Payload), hash, ev.CreatedAt,
	)
	if err != nil {
		raced, rerr := pgGetEvidence(ctx, q, ev.ID)
		if rerr == nil && raced != nil {
			return evidenceIfEqual(raced, ev, hash)
		}
		return nil, eris.Wrapf(err, "postgres: insert evidence %s", ev.ID)
	}
	return &ev, nil
}

func pgCreateFinding(ctx context.Context, q db.Querier, f model.Finding) (*model.Finding, error) {
	if err := validateFinding(f); err != nil {
		return nil, err
	}
	hash, err := PayloadHash(f.Payload)
	if err != nil {
		return nil, err
	}

	existing, err := pgGetFinding(ctx, q, f.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return findingIfEqual(existing, f, hash)
	}

	f.CreatedAt = stamp(f.CreatedAt)
	_, err = q.Exec(ctx,
		`INSERT INTO findings (id, scope_id, module_id, source_record_id, kind, payload, payload_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.ID, f.ScopeID, f.ModuleID, f.SourceRecordID, f.Kind, string(f.Payload), hash, f.CreatedAt,
	)
	if err != nil {
		raced, rerr := pgGetFinding(ctx, q, f.ID)
		if rerr == nil && raced != nil {
			return findingIfEqual(raced, f, hash)
		}
		return nil, eris.Wrapf(err, "postgres: insert finding %s", f.ID)
	}
	return &f, nil
}

func pgLink(ctx context.Context, q db.Querier, findingID, evidenceID string) (*model.FindingEvidenceLink, error) {
	if findingID == "" || evidenceID == "" {
		return nil, eris.Wrap(ErrInvalidRow, "link requires finding id and evidence id")
	}
	link := model.FindingEvidenceLink{
		ID:         linkID(findingID, evidenceID),
		FindingID:  findingID,
		EvidenceID: evidenceID,
		CreatedAt:  stamp(time.Time{}),
	}

	var existing model.FindingEvidenceLink
	err := q.QueryRow(ctx,
		`SELECT id, finding_id, evidence_id, created_at FROM finding_evidence_links WHERE id = $1`,
		link.ID,
	).Scan(&existing.ID, &existing.FindingID, &existing.EvidenceID, &existing.CreatedAt)
	if err == nil {
		return linkIfEqual(&existing, link)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(err, "postgres: get link %s", link.ID)
	}

	_, err = q.Exec(ctx,
		`INSERT INTO finding_evidence_links (id, finding_id, evidence_id, created_at) VALUES ($1, $2, $3, $4)`,
		link.ID, link.FindingID, link.EvidenceID, link.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert link %s", link.ID)
	}
	return &link, nil
}

func (s *PostgresLedger) ListEvidence(ctx context.Context, scopeID, moduleID string) ([]model.Evidence, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, scope_id, module_id, kind, payload, created_at FROM evidence
		 WHERE scope_id = $1 AND module_id = $2 ORDER BY id`,
		scopeID, moduleID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list evidence")
	}
	defer rows.Close()

	var out []model.Evidence
	for rows.Next() {
		var ev model.Evidence
		var payload string
		if err := rows.Scan(&ev.ID, &ev.ScopeID, &ev.ModuleID, &ev.Kind, &payload, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan evidence")
		}
		ev.Payload = json.RawMessage(payload)
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list evidence iterate")
}

func (s *PostgresLedger) ListFindings(ctx context.Context, scopeID, moduleID string) ([]model.Finding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, scope_id, module_id, source_record_id, kind, payload, created_at FROM findings
		 WHERE scope_id = $1 AND module_id = $2 ORDER BY id`,
		scopeID, moduleID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list findings")
	}
	defer rows.Close()

	var out []model.Finding
	for rows.Next() {
		var f model.Finding
		var payload string
		if err := rows.Scan(&f.ID, &f.ScopeID, &f.ModuleID, &f.SourceRecordID, &f.Kind, &payload, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan finding")
		}
		f.Payload = json.RawMessage(payload)
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list findings iterate")
}

func (s *PostgresLedger) ListLinks(ctx context.Context, findingID string) ([]model.FindingEvidenceLink, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, finding_id, evidence_id, created_at FROM finding_evidence_links
		 WHERE finding_id = $1 ORDER BY id`,
		findingID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list links")
	}
	defer rows.Close()

	var out []model.FindingEvidenceLink
	for rows.Next() {
		var l model.FindingEvidenceLink
		if err := rows.Scan(&l.ID, &l.FindingID, &l.EvidenceID, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan link")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list links iterate")
}

func pgGetEvidence(ctx context.Context, q db.Querier, id string) (*model.Evidence, error) {
	var ev model.Evidence
	var payload string
	err := q.QueryRow(ctx,
		`SELECT id, scope_id, module_id, kind, payload, created_at FROM evidence WHERE id = $1`, id,
	).Scan(&ev.ID, &ev.ScopeID, &ev.ModuleID, &ev.Kind, &payload, &ev.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get evidence %s", id)
	}
	ev.Payload = json.RawMessage(payload)
	return &ev, nil
}

func pgGetFinding(ctx context.Context, q db.Querier, id string) (*model.Finding, error) {
	var f model.Finding
	var payload string
	err := q.QueryRow(ctx,
		`SELECT id, scope_id, module_id, source_record_id, kind, payload, created_at FROM findings WHERE id = $1`, id,
	).Scan(&f.ID, &f.ScopeID, &f.ModuleID, &f.SourceRecordID, &f.Kind, &payload, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get finding %s", id)
	}
	f.Payload = json.RawMessage(payload)
	return &f, nil
}
