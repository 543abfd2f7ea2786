package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashKnownVector(t *testing.T) {
	t.Parallel()

	got, err := New().Hash([]byte("abc"))
	require.NoError(t, err)
	require.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", got)
}

func TestHashDistinguishesContent(t *testing.T) {
	t.Parallel()

	h := New()
	a, err := h.Hash([]byte("report body a"))
	require.NoError(t, err)
	b, err := h.Hash([]byte("report body b"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	again, err := h.Hash([]byte("report body a"))
	require.NoError(t, err)
	require.Equal(t, a, again)
}
