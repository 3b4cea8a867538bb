package docserve

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigestBytes(t *testing.T) {
	d1 := DigestBytes([]byte("hello"))
	d2 := DigestBytes([]byte("hello"))
	d3 := DigestBytes([]byte("world"))

	require.Equal(t, d1, d2)
	require.NotEqual(t, d1, d3)
	require.False(t, d1.IsZero())
}

func TestDigestString(t *testing.T) {
	d := DigestBytes([]byte("test"))

	s := d.String()
	require.Len(t, s, DigestSize*2)

	short := d.ShortString()
	require.Len(t, short, 16)
	require.Equal(t, s[:16], short)
}

func TestParseDigestRoundTrip(t *testing.T) {
	d := DigestBytes([]byte("round trip"))

	parsed, err := ParseDigest(d.String())
	require.NoError(t, err)
	require.Equal(t, d, parsed)
}

func TestParseDigestInvalid(t *testing.T) {
	_, err := ParseDigest("deadbeef")
	require.Error(t, err)

	_, err = ParseDigest("zz" + DigestBytes([]byte("x")).String()[2:])
	require.Error(t, err)
}

func TestDigestIsZero(t *testing.T) {
	var d Digest
	require.True(t, d.IsZero())
}

func TestHasherIncremental(t *testing.T) {
	h := NewHasher()
	_, err := h.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = h.Write([]byte("world"))
	require.NoError(t, err)

	require.Equal(t, DigestBytes([]byte("hello world")), h.Sum())

	h.Reset()
	_, err = h.Write([]byte("other"))
	require.NoError(t, err)
	require.Equal(t, DigestBytes([]byte("other")), h.Sum())
}

func TestDigestMarshalText(t *testing.T) {
	d := DigestBytes([]byte("marshal"))

	text, err := d.MarshalText()
	require.NoError(t, err)

	var back Digest
	require.NoError(t, back.UnmarshalText(text))
	require.Equal(t, d, back)
}
