package vault

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMasterKey(t *testing.T) MasterKey {
	t.Helper()
	mk, err := NewMasterKey([]byte("0123456789abcdef0123456789abcdef"[:32]))
	require.NoError(t, err)
	return mk
}

func TestNewMasterKey_RejectsWrongLength(t *testing.T) {
	_, err := NewMasterKey([]byte("too-short"))
	require.Error(t, err)
}

func TestDeriveWorkspaceKey_IsDeterministicAndWorkspaceScoped(t *testing.T) {
	mk := testMasterKey(t)
	k1, err := deriveWorkspaceKey(mk, "ws-1")
	require.NoError(t, err)
	k2, err := deriveWorkspaceKey(mk, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := deriveWorkspaceKey(mk, "ws-2")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	mk := testMasterKey(t)
	key, err := deriveWorkspaceKey(mk, "ws-1")
	require.NoError(t, err)

	enc, err := encryptWithVerify("super-secret-api-key", key)
	require.NoError(t, err)
	assert.NotContains(t, enc.Ciphertext, "super-secret-api-key")

	plaintext, err := decrypt(enc, key)
	require.NoError(t, err)
	assert.Equal(t, "super-secret-api-key", plaintext)
}

func TestDecrypt_FailsOnTamperedAuthTag(t *testing.T) {
	mk := testMasterKey(t)
	key, err := deriveWorkspaceKey(mk, "ws-1")
	require.NoError(t, err)

	enc, err := encryptWithVerify("value", key)
	require.NoError(t, err)
	enc.AuthTag = enc.Ciphertext // swap in garbage of the right-ish shape

	_, err = decrypt(enc, key)
	assert.Error(t, err)
}

func TestPackUnpackSecret_RoundTrips(t *testing.T) {
	enc := encrypted{IV: "aXY=", AuthTag: "dGFn", Ciphertext: "Y3Q="}
	packed := packSecret(enc)
	assert.True(t, strings.Count(packed, ":") == 2)

	got, err := unpackSecret(packed)
	require.NoError(t, err)
	assert.Equal(t, enc, got)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "ab", Mask("ab"))
	assert.Equal(t, "abcd", Mask("abcd"))
	assert.Equal(t, "****cdef", Mask("abcdef"))
}
