package secrets

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBox(t *testing.T) *Box {
	t.Helper()
	box, err := NewBox(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return box
}

func TestSealOpen_RoundTrip(t *testing.T) {
	box := testBox(t)

	sealed, err := box.Seal("sk-live-123")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "sk-live-123")

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk-live-123", opened)
}

func TestSeal_UsesFreshNonce(t *testing.T) {
	box := testBox(t)
	a, err := box.Seal("same")
	require.NoError(t, err)
	b, err := box.Seal("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpen_Failures(t *testing.T) {
	box := testBox(t)
	sealed, err := box.Seal("secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	other, err := NewBox(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)

	tests := []struct {
		name    string
		box     *Box
		input   string
		message string
	}{
		{name: "not base64", box: box, input: "%%%", message: "not valid base64"},
		{name: "too short", box: box, input: base64.StdEncoding.EncodeToString([]byte("abc")), message: "too short"},
		{name: "tampered", box: box, input: tampered, message: "failed to open"},
		{name: "wrong key", box: other, input: sealed, message: "failed to open"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.box.Open(tt.input)
			require.Error(t, err)
			var secretsErr *Error
			require.ErrorAs(t, err, &secretsErr)
			assert.Contains(t, secretsErr.Message, tt.message)
		})
	}
}

func TestNewBox_KeyLength(t *testing.T) {
	_, err := NewBox([]byte("short"))
	assert.Error(t, err)
}

func TestNewBoxFromEnv(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		t.Setenv(KeyEnv, "")
		_, err := NewBoxFromEnv()
		assert.ErrorContains(t, err, KeyEnv)
	})

	t.Run("generated key", func(t *testing.T) {
		key, err := GenerateKey()
		require.NoError(t, err)
		t.Setenv(KeyEnv, key)

		box, err := NewBoxFromEnv()
		require.NoError(t, err)
		sealed, err := box.Seal("x")
		require.NoError(t, err)
		opened, err := box.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, "x", opened)
	})
}
