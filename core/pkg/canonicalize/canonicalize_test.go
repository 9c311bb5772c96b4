package canonicalize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Hash string  `json:"hash"`
	B    float64 `json:"b"`
	A    string  `json:"a"`
}

func TestBytesSortsKeysAndIsDeterministic(t *testing.T) {
	v := map[string]interface{}{"z": 1, "a": 2, "m": map[string]interface{}{"y": 1, "x": 2}}
	b1, err := Bytes(v)
	require.NoError(t, err)
	b2, err := Bytes(v)
	require.NoError(t, err)
	require.Equal(t, b1, b2)
	require.Equal(t, `{"a":2,"m":{"x":2,"y":1},"z":1}`, string(b1))
}

func TestBytesNormalizesIntegralFloat(t *testing.T) {
	v := map[string]interface{}{"n": Number(3.0)}
	b, err := Bytes(v)
	require.NoError(t, err)
	require.Equal(t, `{"n":3}`, string(b))
}

func TestHashWithBlankedFieldRoundTrips(t *testing.T) {
	s := &sample{Hash: "stale", B: 3.0, A: "x"}
	h, err := HashWithBlankedField(s, "hash")
	require.NoError(t, err)
	require.NotEmpty(t, h)
	require.Equal(t, "stale", s.Hash, "field must be restored after hashing")

	s.Hash = h
	h2, err := HashWithBlankedField(s, "hash")
	require.NoError(t, err)
	require.Equal(t, h, h2, "recomputed hash must match stored hash (stability)")
}

func TestHashTextPrefixed(t *testing.T) {
	require.Equal(t, HashPrefix, HashText("x")[:len(HashPrefix)])
}
