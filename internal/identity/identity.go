// Package identity derives deterministic identifiers from canonicalized
// content. Identical logical inputs always produce identical identifiers,
// which is what makes ledger writes replay-stable: re-computing the same
// evidence or finding converges on the same row.
package identity

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// Namespaces partition the id space so an evidence id can never collide
// with a finding id even for identical content.
const (
	NamespaceEvidence = "evidence"
	NamespaceFinding  = "finding"
	NamespaceLink     = "finding_evidence_link"
)

// Canonicalize serializes v as canonical JSON: object keys sorted, no
// incidental whitespace, numbers preserved verbatim. The value is round-
// tripped through a generic decode so struct field order never leaks into
// the output.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "identity: marshal payload")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, eris.Wrap(err, "identity: decode payload")
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, eris.Wrap(err, "identity: canonical marshal")
	}
	return canonical, nil
}

// StableKey returns the hex SHA-256 of the canonical serialization of v.
func StableKey(v any) (string, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// EvidenceID derives the deterministic id for an evidence row.
func EvidenceID(scopeID, moduleID, kind, stableKey string) string {
	return derive(NamespaceEvidence, scopeID, moduleID, kind, stableKey)
}

// FindingID derives the deterministic id for a finding row.
func FindingID(scopeID, moduleID, kind, stableKey string) string {
	return derive(NamespaceFinding, scopeID, moduleID, kind, stableKey)
}

// LinkID derives the deterministic id for a finding↔evidence link.
func LinkID(findingID, evidenceID string) string {
	return derive(NamespaceLink, findingID, evidenceID)
}

func derive(namespace string, parts ...string) string {
	sum := sha256.Sum256([]byte(namespace + ":" + strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
