package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalSortsKeys(t *testing.T) {
	a := map[string]interface{}{"b": 1, "a": 2, "c": map[string]interface{}{"z": 1, "y": 2}}
	out, err := Canonical(a)
	require.NoError(t, err)
	require.Equal(t, `{"a":2,"b":1,"c":{"y":2,"z":1}}`, string(out))
}

func TestSignVerifyRoundTrip(t *testing.T) {
	id, err := New("peer-1")
	require.NoError(t, err)

	payload := []byte("hello mesh")
	sig := id.Sign(payload)
	require.True(t, Verify(id.PublicKey, payload, sig))
	require.False(t, Verify(id.PublicKey, []byte("tampered"), sig))
}

func TestPublicKeyPEMRoundTrip(t *testing.T) {
	id, err := New("peer-1")
	require.NoError(t, err)

	pem, err := id.PublicKeyPEM()
	require.NoError(t, err)

	parsed, err := ParsePublicKeyPEM(pem)
	require.NoError(t, err)
	require.Equal(t, id.PublicKey, parsed)
}
