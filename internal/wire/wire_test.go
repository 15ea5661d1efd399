package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteUint8(7)
	w.WriteUint32(1700000000)
	w.WriteLenPrefixed([]byte("hello"))

	r := NewReader(w.Finish())

	b, err := r.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(7), b)

	n, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(1700000000), n)

	payload, err := r.ReadLenPrefixed()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(payload))

	assert.Equal(t, 0, r.Remaining())
}

func TestReaderTruncation(t *testing.T) {
	full := NewWriter()
	full.WriteUint32(42)
	full.WriteLenPrefixed([]byte("payload"))
	b := full.Finish()

	for k := 0; k < len(b); k++ {
		r := NewReader(b[:k])
		_, err1 := r.ReadUint32()
		if err1 == nil {
			_, err2 := r.ReadLenPrefixed()
			if err2 == nil {
				continue
			}
			assert.ErrorIs(t, err2, ErrTruncatedFrame)
		} else {
			assert.ErrorIs(t, err1, ErrTruncatedFrame)
		}
	}
}

func TestUint64RoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteUint64(1700000000123456789)

	r := NewReader(w.Finish())
	got, err := r.ReadUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(1700000000123456789), got)
}

func TestReadNegativeLength(t *testing.T) {
	r := NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	_, err := r.ReadLenPrefixed()
	assert.ErrorIs(t, err, ErrTruncatedFrame)
}
