package reader

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linux-surface/iptsd/internal/ipterrors"
)

type header struct {
	Size     uint32
	Reserved uint8
	Type     uint8
	_        uint16
}

func TestReadAdvancesCursor(t *testing.T) {
	buf := []byte{0x10, 0x00, 0x00, 0x00, 0x01, 0x02, 0x00, 0x00, 0xAA, 0xBB}
	r := New(buf)

	h, err := Read[header](r)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x10), h.Size)
	assert.Equal(t, uint8(0x01), h.Reserved)
	assert.Equal(t, uint8(0x02), h.Type)
	assert.Equal(t, 2, r.Remaining())
}

func TestReadTruncatedFrame(t *testing.T) {
	r := New([]byte{0x01, 0x02})
	_, err := Read[header](r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ipterrors.ErrMalformedFrame))
}

func TestSkipAndRemaining(t *testing.T) {
	r := New([]byte{1, 2, 3, 4, 5})
	require.NoError(t, r.Skip(2))
	assert.Equal(t, 3, r.Remaining())

	err := r.Skip(10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ipterrors.ErrMalformedFrame))
}

func TestSubReaderIsIndependentAndAdvancesParent(t *testing.T) {
	r := New([]byte{1, 2, 3, 4, 5, 6})
	sub, err := r.Sub(3)
	require.NoError(t, err)

	assert.Equal(t, 3, r.Remaining())
	assert.Equal(t, 3, sub.Remaining())

	b, err := sub.Bytes(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, b)
	assert.Equal(t, 0, sub.Remaining())
}

func TestSubTruncated(t *testing.T) {
	r := New([]byte{1, 2})
	_, err := r.Sub(5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ipterrors.ErrMalformedFrame))
}

func TestBytesTruncated(t *testing.T) {
	r := New([]byte{1})
	_, err := r.Bytes(4)
	require.Error(t, err)
}
