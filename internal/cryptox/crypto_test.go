package cryptox

import (
	"bytes"
	"testing"

	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedH3(b byte) []byte {
	return bytes.Repeat([]byte{b}, common.SecretSize)
}

func TestDeriveMasterKey_Deterministic(t *testing.T) {
	h3 := fixedH3(7)

	key1, err := DeriveMasterKey(h3, "account-1")
	require.NoError(t, err)
	key2, err := DeriveMasterKey(h3, "account-1")
	require.NoError(t, err)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}
	assert.Len(t, key1, MasterKeyLength)
}

func TestDeriveMasterKey_DifferentSubjects(t *testing.T) {
	h3 := fixedH3(7)

	key1, err := DeriveMasterKey(h3, "account-1")
	require.NoError(t, err)
	key2, err := DeriveMasterKey(h3, "account-2")
	require.NoError(t, err)

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different keys for different subjects, got same")
	}
}

func TestDeriveMasterKey_RejectsMalformedSecret(t *testing.T) {
	_, err := DeriveMasterKey([]byte("short"), "account-1")
	require.ErrorIs(t, err, common.ErrInvalidSecret)
}

func TestHashVerifier_IndependentOfMasterKey(t *testing.T) {
	h3 := fixedH3(9)

	verifier := HashVerifier(h3)
	key, err := DeriveMasterKey(h3, "account-1")
	require.NoError(t, err)

	assert.Len(t, verifier, 32)
	assert.NotEqual(t, verifier, key)
	assert.Equal(t, verifier, HashVerifier(h3))
	assert.NotEqual(t, verifier, HashVerifier(fixedH3(10)))

	// the verifier used as an H3 does not reproduce the master key
	fromVerifier, err := DeriveMasterKey(verifier, "account-1")
	require.NoError(t, err)
	assert.NotEqual(t, key, fromVerifier)
}
