package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestXorInplace(t *testing.T) {
	a := []byte{0x00, 0xff, 0xaa, 0x55}
	b := []byte{0xff, 0xff, 0x0f, 0x55}
	XorInplace(a, b)
	require.Equal(t, []byte{0xff, 0x00, 0xa5, 0x00}, a)
}

func TestXorInplaceLengthMismatchPanics(t *testing.T) {
	require.Panics(t, func() {
		XorInplace(make([]byte, 4), make([]byte, 5))
	})
}

func TestXorAll(t *testing.T) {
	blocks := [][]byte{
		{0x01, 0x02, 0x03},
		{0x01, 0x00, 0xff},
		{0x10, 0x02, 0x00},
	}
	require.Equal(t, []byte{0x10, 0x00, 0xfc}, XorAll(blocks))
	require.Nil(t, XorAll(nil))
}

func TestXorSelfCancels(t *testing.T) {
	b := []byte{0xde, 0xad, 0xbe, 0xef}
	require.True(t, IsZero(XorAll([][]byte{b, b})))
}

func TestIsZero(t *testing.T) {
	require.True(t, IsZero(nil))
	require.True(t, IsZero(make([]byte, 4096)))
	require.False(t, IsZero([]byte{0, 0, 1, 0}))
}

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	Zero(b)
	require.True(t, IsZero(b))
}
