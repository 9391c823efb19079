// Package ledger persists evidence, findings and their links as an
// append-only, content-addressed store. Writes are idempotent: because ids
// are derived from content, re-running an identical computation converges
// on the same rows with no coordination. A write that reaches an existing
// id with divergent content is a determinism bug upstream and is rejected
// with a conflict error, never merged or overwritten. No update or delete
// path exists.
package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/complykit/reconcore/internal/identity"
	"github.com/complykit/reconcore/internal/model"
)

// Conflict and validation errors.
var (
	// ErrImmutableMismatch signals an existing row whose content diverges
	// from the incoming write for the same id.
	ErrImmutableMismatch = eris.New("ledger: immutable row mismatch for id")
	// ErrInvalidRow signals a write missing required identifiers.
	ErrInvalidRow = eris.New("ledger: row is missing required fields")
)

// Writer is the mutation surface. It is the system's only one; every other
// core component is a pure function.
type Writer interface {
	CreateEvidence(ctx context.Context, ev model.Evidence) (*model.Evidence, error)
	CreateFinding(ctx context.Context, f model.Finding) (*model.Finding, error)
	LinkFindingToEvidence(ctx context.Context, findingID, evidenceID string) (*model.FindingEvidenceLink, error)
}

// Store is a full ledger backend. InTx runs one invocation's writes as a
// single atomic unit; either all of them commit or none do.
type Store interface {
	Writer
	ListEvidence(ctx context.Context, scopeID, moduleID string) ([]model.Evidence, error)
	ListFindings(ctx context.Context, scopeID, moduleID string) ([]model.Finding, error)
	ListLinks(ctx context.Context, findingID string) ([]model.FindingEvidenceLink, error)
	InTx(ctx context.Context, fn func(w Writer) error) error
	Migrate(ctx context.Context) error
	Close() error
}

// PayloadHash returns the canonical content hash used for the immutability
// check. Structural equality goes through canonical serialization, so
// differing incidental representations of the same content (key order,
// whitespace) hash identically.
func PayloadHash(payload json.RawMessage) (string, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return identity.StableKey(payload)
}

func validateEvidence(ev model.Evidence) error {
	if ev.ID == "" || ev.ScopeID == "" || ev.ModuleID == "" || ev.Kind == "" {
		return eris.Wrap(ErrInvalidRow, "evidence requires id, scope id, module id and kind")
	}
	return nil
}

func validateFinding(f model.Finding) error {
	if f.ID == "" || f.ScopeID == "" || f.ModuleID == "" || f.Kind == "" {
		return eris.Wrap(ErrInvalidRow, "finding requires id, scope id, module id and kind")
	}
	return nil
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func linkID(findingID, evidenceID string) string {
	return identity.LinkID(findingID, evidenceID)
}

// evidenceIfEqual resolves a write that reached an existing id: identical
// content converges on the stored row, divergent content is a conflict.
func evidenceIfEqual(existing *model.Evidence, incoming model.Evidence, incomingHash string) (*model.Evidence, error) {
	existingHash, err := PayloadHash(existing.Payload)
	if err != nil {
		return nil, err
	}
	if existing.ScopeID == incoming.ScopeID &&
		existing.ModuleID == incoming.ModuleID &&
		existing.Kind == incoming.Kind &&
		existingHash == incomingHash {
		return existing, nil
	}
	return nil, eris.Wrapf(ErrImmutableMismatch, "evidence %s", incoming.ID)
}

func findingIfEqual(existing *model.Finding, incoming model.Finding, incomingHash string) (*model.Finding, error) {
	existingHash, err := PayloadHash(existing.Payload)
	if err != nil {
		return nil, err
	}
	if existing.ScopeID == incoming.ScopeID &&
		existing.ModuleID == incoming.ModuleID &&
		existing.SourceRecordID == incoming.SourceRecordID &&
		existing.Kind == incoming.Kind &&
		existingHash == incomingHash {
		return existing, nil
	}
	return nil, eris.Wrapf(ErrImmutableMismatch, "finding %s", incoming.ID)
}

func linkIfEqual(existing *model.FindingEvidenceLink, incoming model.FindingEvidenceLink) (*model.FindingEvidenceLink, error) {
	if existing.FindingID == incoming.FindingID && existing.EvidenceID == incoming.EvidenceID {
		return existing, nil
	}
	return nil, eris.Wrapf(ErrImmutableMismatch, "link %s", incoming.ID)
}
