package device

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCaptureFile(t *testing.T, descriptor []byte, reports [][]byte) string {
	t.Helper()

	var buf []byte
	buf = append(buf, captureMagic...)

	appendChunk := func(chunk []byte) {
		length := make([]byte, 4)
		binary.LittleEndian.PutUint32(length, uint32(len(chunk)))
		buf = append(buf, length...)
		buf = append(buf, chunk...)
	}

	appendChunk(descriptor)
	for _, r := range reports {
		appendChunk(r)
	}

	path := filepath.Join(t.TempDir(), "capture.bin")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestLoadCaptureRoundTrips(t *testing.T) {
	path := writeCaptureFile(t, []byte("desc"), [][]byte{{1, 2}, {3, 4, 5}})

	desc, reports, err := LoadCapture(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("desc"), desc)
	require.Len(t, reports, 2)
	assert.Equal(t, []byte{1, 2}, reports[0])
	assert.Equal(t, []byte{3, 4, 5}, reports[1])
}

func TestLoadCaptureRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bin")
	require.NoError(t, os.WriteFile(path, []byte("not a capture file at all"), 0o644))

	_, _, err := LoadCapture(path)
	require.Error(t, err)
}

func TestSyntheticSerialIsNonZeroAndVaries(t *testing.T) {
	a := SyntheticSerial()
	b := SyntheticSerial()
	assert.NotZero(t, a)
	assert.NotEqual(t, a, b)
}
