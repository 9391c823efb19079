package model

import (
	"encoding/json"
	"time"
)

// Evidence is an immutable, content-addressed provenance record. Its ID is
// derived from (scope id, module id, kind, payload stable key), so two rows
// with the same id must carry byte-identical payload and metadata — the
// ledger enforces this rather than trusting callers.
type Evidence struct {
	ID        string          `json:"id"`
	ScopeID   string          `json:"scope_id"`
	ModuleID  string          `json:"module_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Finding is a persisted, classified assertion traceable to its source
// record and supporting evidence.
type Finding struct {
	ID             string          `json:"id"`
	ScopeID        string          `json:"scope_id"`
	ModuleID       string          `json:"module_id"`
	SourceRecordID string          `json:"source_record_id"`
	Kind           string          `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
}

// FindingEvidenceLink associates a finding with one supporting evidence
// row. Its ID is a deterministic function of the pair.
type FindingEvidenceLink struct {
	ID         string    `json:"id"`
	FindingID  string    `json:"finding_id"`
	EvidenceID string    `json:"evidence_id"`
	CreatedAt  time.Time `json:"created_at"`
}
