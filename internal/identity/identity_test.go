package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_SortsKeys(t *testing.T) {
	a, err := Canonicalize(map[string]any{"b": 1, "a": 2})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1}`, string(a))
}

func TestCanonicalize_StructFieldOrderDoesNotLeak(t *testing.T) {
	type forward struct {
		Alpha string `json:"alpha"`
		Beta  string `json:"beta"`
	}
	type backward struct {
		Beta  string `json:"beta"`
		Alpha string `json:"alpha"`
	}

	f, err := Canonicalize(forward{Alpha: "x", Beta: "y"})
	require.NoError(t, err)
	b, err := Canonicalize(backward{Alpha: "x", Beta: "y"})
	require.NoError(t, err)
	assert.Equal(t, string(f), string(b))
}

func TestCanonicalize_PreservesNumberRepresentation(t *testing.T) {
	got, err := Canonicalize(map[string]any{"amount": "10.50"})
	require.NoError(t, err)
	assert.Equal(t, `{"amount":"10.50"}`, string(got))
}

func TestStableKey_Deterministic(t *testing.T) {
	payload := map[string]any{"delta": "5.00", "key": "item_code=A"}

	k1, err := StableKey(payload)
	require.NoError(t, err)
	k2, err := StableKey(payload)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)
}

func TestStableKey_DiffersOnContent(t *testing.T) {
	k1, err := StableKey(map[string]any{"delta": "5.00"})
	require.NoError(t, err)
	k2, err := StableKey(map[string]any{"delta": "5.01"})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestIDs_NamespacesDoNotCollide(t *testing.T) {
	ev := EvidenceID("scope-1", "recon", "delta", "abc")
	fn := FindingID("scope-1", "recon", "delta", "abc")
	assert.NotEqual(t, ev, fn)
}

func TestIDs_Deterministic(t *testing.T) {
	assert.Equal(t,
		EvidenceID("scope-1", "recon", "delta", "abc"),
		EvidenceID("scope-1", "recon", "delta", "abc"),
	)
	assert.Equal(t,
		LinkID("f1", "e1"),
		LinkID("f1", "e1"),
	)
	assert.NotEqual(t, LinkID("f1", "e1"), LinkID("e1", "f1"))
}
