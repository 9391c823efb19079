package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/complykit/reconcore/internal/model"
)

// SQLiteLedger implements Store using modernc.org/sqlite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteLedger{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS evidence (
	id           TEXT PRIMARY KEY,
	scope_id     TEXT NOT NULL,
	module_id    TEXT NOT NULL,
	kind         TEXT NOT NULL,
	payload      TEXT NOT NULL,
	payload_hash TEXT NOT NULL,
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS findings (
	id               TEXT PRIMARY KEY,
	scope_id         TEXT NOT NULL,
	module_id        TEXT NOT NULL,
	source_record_id TEXT NOT NULL,
	kind             TEXT NOT NULL,
	payload          TEXT NOT NULL,
	payload_hash     TEXT NOT NULL,
	created_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS finding_evidence_links (
	id          TEXT PRIMARY KEY,
	finding_id  TEXT NOT NULL REFERENCES findings(id),
	evidence_id TEXT NOT NULL REFERENCES evidence(id),
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evidence_scope_module ON evidence(scope_id, module_id);
CREATE INDEX IF NOT EXISTS idx_findings_scope_module ON findings(scope_id, module_id);
CREATE INDEX IF NOT EXISTS idx_links_finding_id ON finding_evidence_links(finding_id);
`

func (s *SQLiteLedger) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so the write path is
// identical inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteLedger) CreateEvidence(ctx context.Context, ev model.Evidence) (*model.Evidence, error) {
	return sqliteCreateEvidence(ctx, s.db, ev)
}

func (s *SQLiteLedger) CreateFinding(ctx context.Context, f model.Finding) (*model.Finding, error) {
	return sqliteCreateFinding(ctx, s.db, f)
}

func (s *SQLiteLedger) LinkFindingToEvidence(ctx context.Context, findingID, evidenceID string) (*model.FindingEvidenceLink, error) {
	return sqliteLink(ctx, s.db, findingID, evidenceID)
}

// InTx runs fn against a transactional writer. The read-check-then-write
// sequence for each id happens inside the transaction, so one invocation's
// ledger writes commit or roll back as a unit.
func (s *SQLiteLedger) InTx(ctx context.Context, fn func(w Writer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&sqliteTxWriter{tx: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

type sqliteTxWriter struct {
	tx *sql.Tx
}

func (w *sqliteTxWriter) CreateEvidence(ctx context.Context, ev model.Evidence) (*model.Evidence, error) {
	return sqliteCreateEvidence(ctx, w.tx, ev)
}

func (w *sqliteTxWriter) CreateFinding(ctx context.Context, f model.Finding) (*model.Finding, error) {
	return sqliteCreateFinding(ctx, w.tx, f)
}

func (w *sqliteTxWriter) LinkFindingToEvidence(ctx context.Context, findingID, evidenceID string) (*model.FindingEvidenceLink, error) {
	return sqliteLink(ctx, w.tx, findingID, evidenceID)
}

func sqliteCreateEvidence(ctx context.Context, q dbtx, ev model.Evidence) (*model.Evidence, error) {
	if err := validateEvidence(ev); err != nil {
		return nil, err
	}
	hash, err := PayloadHash(ev.Payload)
	if err != nil {
		return nil, err
	}

	existing, err := sqliteGetEvidence(ctx, q, ev.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return evidenceIfEqual(existing, ev, hash)
	}

	ev.CreatedAt = stamp(ev.CreatedAt)
	_, err = q.ExecContext(ctx,
		`INSERT INTO evidence (id, scope_id, module_id, kind, payload, payload_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.ScopeID, ev.ModuleID, ev.Kind, string(ev.Payload), hash, ev.CreatedAt,
	)
	if err != nil {
		// A concurrent writer may have won the insert; the equality check
		// decides between convergence and conflict.
		raced, rerr := sqliteGetEvidence(ctx, q, ev.ID)
		if rerr == nil && raced != nil {
			return evidenceIfEqual(raced, ev, hash)
		}
		return nil, eris.Wrapf(err, "sqlite: insert evidence %s", ev.ID)
	}
	return &ev, nil
}

func sqliteCreateFinding(ctx context.Context, q dbtx, f model.Finding) (*model.Finding, error) {
	if err := validateFinding(f); err != nil {
		return nil, err
	}
	hash, err := PayloadHash(f.Payload)
	if err != nil {
		return nil, err
	}

	existing, err := sqliteGetFinding(ctx, q, f.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return findingIfEqual(existing, f, hash)
	}

	f.CreatedAt = stamp(f.CreatedAt)
	_, err = q.ExecContext(ctx,
		`INSERT INTO findings (id, scope_id, module_id, source_record_id, kind, payload, payload_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.ScopeID, f.ModuleID, f.SourceRecordID, f.Kind, string(f.Payload), hash, f.CreatedAt,
	)
	if err != nil {
		raced, rerr := sqliteGetFinding(ctx, q, f.ID)
		if rerr == nil && raced != nil {
			return findingIfEqual(raced, f, hash)
		}
		return nil, eris.Wrapf(err, "sqlite: insert finding %s", f.ID)
	}
	return &f, nil
}

func sqliteLink(ctx context.Context, q dbtx, findingID, evidenceID string) (*model.FindingEvidenceLink, error) {
	if findingID == "" || evidenceID == "" {
		return nil, eris.Wrap(ErrInvalidRow, "link requires finding id and evidence id")
	}
	link := model.FindingEvidenceLink{
		ID:         linkID(findingID, evidenceID),
		FindingID:  findingID,
		EvidenceID: evidenceID,
		CreatedAt:  stamp(time.Time{}),
	}

	row := q.QueryRowContext(ctx,
		`SELECT id, finding_id, evidence_id, created_at FROM finding_evidence_links WHERE id = ?`,
		link.ID,
	)
	var existing model.FindingEvidenceLink
	err := row.Scan(&existing.ID, &existing.FindingID, &existing.EvidenceID, &existing.CreatedAt)
	if err == nil {
		return linkIfEqual(&existing, link)
	}
	if err != sql.ErrNoRows {
		return nil, eris.Wrapf(err, "sqlite: get link %s", link.ID)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO finding_evidence_links (id, finding_id, evidence_id, created_at) VALUES (?, ?, ?, ?)`,
		link.ID, link.FindingID, link.EvidenceID, link.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert link %s", link.ID)
	}
	return &link, nil
}

func (s *SQLiteLedger) ListEvidence(ctx context.Context, scopeID, moduleID string) ([]model.Evidence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scope_id, module_id, kind, payload, created_at FROM evidence
		 WHERE scope_id = ? AND module_id = ? ORDER BY id`,
		scopeID, moduleID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list evidence")
	}
	defer rows.Close()

	var out []model.Evidence
	for rows.Next() {
		var ev model.Evidence
		var payload string
		if err := rows.Scan(&ev.ID, &ev.ScopeID, &ev.ModuleID, &ev.Kind, &payload, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan evidence")
		}
		ev.Payload = json.RawMessage(payload)
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list evidence iterate")
}

func (s *SQLiteLedger) ListFindings(ctx context.Context, scopeID, moduleID string) ([]model.Finding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scope_id, module_id, source_record_id, kind, payload, created_at FROM findings
		 WHERE scope_id = ? AND module_id = ? ORDER BY id`,
		scopeID, moduleID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list findings")
	}
	defer rows.Close()

	var out []model.Finding
	for rows.Next() {
		var f model.Finding
		var payload string
		if err := rows.Scan(&f.ID, &f.ScopeID, &f.ModuleID, &f.SourceRecordID, &f.Kind, &payload, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan finding")
		}
		f.Payload = json.RawMessage(payload)
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list findings iterate")
}

func (s *SQLiteLedger) ListLinks(ctx context.Context, findingID string) ([]model.FindingEvidenceLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, finding_id, evidence_id, created_at FROM finding_evidence_links
		 WHERE finding_id = ? ORDER BY id`,
		findingID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list links")
	}
	defer rows.Close()

	var out []model.FindingEvidenceLink
	for rows.Next() {
		var l model.FindingEvidenceLink
		if err := rows.Scan(&l.ID, &l.FindingID, &l.EvidenceID, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan link")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list links iterate")
}

func sqliteGetEvidence(ctx context.Context, q dbtx, id string) (*model.Evidence, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, scope_id, module_id, kind, payload, created_at FROM evidence WHERE id = ?`, id)
	var ev model.Evidence
	var payload string
	err := row.Scan(&ev.ID, &ev.ScopeID, &ev.ModuleID, &ev.Kind, &payload, &ev.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get evidence %s", id)
	}
	ev.Payload = json.RawMessage(payload)
	return &ev, nil
}

func sqliteGetFinding(ctx context.Context, q dbtx, id string) (*model.Finding, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, scope_id, module_id, source_record_id, kind, payload, created_at FROM findings WHERE id = ?`, id)
	var f model.Finding
	var payload string
	err := row.Scan(&f.ID, &f.ScopeID, &f.ModuleID, &f.SourceRecordID, &f.Kind, &payload, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get finding %s", id)
	}
	f.Payload = json.RawMessage(payload)
	return &f, nil
}
