package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCipher(t *testing.T, purpose string) *Cipher {
	t.Helper()
	c, err := New([]byte("test-master-secret-that-is-long!"), purpose)
	require.NoError(t, err)
	return c
}

func TestSealOpenRoundTrip(t *testing.T) {
	c := testCipher(t, "channel-oauth-token")

	original := "kick-access-token-abc123xyz"
	sealed, err := c.Seal(original)
	require.NoError(t, err)
	assert.NotEqual(t, original, sealed)
	assert.True(t, Sealed(sealed))

	opened, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, original, opened)
}

func TestSealIsNonDeterministic(t *testing.T) {
	c := testCipher(t, "channel-oauth-token")

	first, err := c.Seal("same-input")
	require.NoError(t, err)
	second, err := c.Seal("same-input")
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "random nonce per seal")
}

func TestOpenRejectsUnsealedValue(t *testing.T) {
	c := testCipher(t, "channel-oauth-token")

	// A row written around the vault, or tampered down to plaintext, must
	// not open as if it were valid.
	_, err := c.Open("raw-refresh-token-from-a-bad-write")
	require.ErrorIs(t, err, ErrNotSealed)
}

func TestOpenRejectsTamperedValue(t *testing.T) {
	c := testCipher(t, "channel-oauth-token")

	sealed, err := c.Seal("kick-access-token")
	require.NoError(t, err)

	tampered := sealed[:len(sealed)-2] + "A="
	if tampered == sealed {
		tampered = sealed[:len(sealed)-2] + "B="
	}
	_, err = c.Open(tampered)
	require.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "kick-access-token"))
}

func TestPurposesDeriveIndependentKeys(t *testing.T) {
	secret := []byte("test-master-secret-that-is-long!")
	access, err := New(secret, "purpose-a")
	require.NoError(t, err)
	refresh, err := New(secret, "purpose-b")
	require.NoError(t, err)

	sealed, err := access.Seal("token-value")
	require.NoError(t, err)
	_, err = refresh.Open(sealed)
	require.Error(t, err, "a key for one purpose must not open another's values")
}
