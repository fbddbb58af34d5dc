package device

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// captureMagic identifies a capture file for LoadCapture, so a
// misidentified file fails fast instead of parsing garbage as a frame
// count.
const captureMagic = "IPTSCAP1"

// LoadCapture reads a capture file (the input of the device facade's
// `capture replay` / `offline file` backends of spec.md §9) into a raw
// descriptor plus an ordered list of Input report payloads, for
// NewReplayDevice/NewOfflineDevice. This module has no writer for the
// format; capture files are produced outside it.
//
// File layout: an 8-byte magic, a uint32 LE descriptor length + that
// many descriptor bytes, then a sequence of (uint32 LE length + report
// bytes) records until EOF.
func LoadCapture(path string) (descriptorBytes []byte, reports [][]byte, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	if len(data) < len(captureMagic) || string(data[:len(captureMagic)]) != captureMagic {
		return nil, nil, fmt.Errorf("device: %s is not a capture file", path)
	}
	data = data[len(captureMagic):]

	descriptorBytes, data, err = readLengthPrefixed(data)
	if err != nil {
		return nil, nil, fmt.Errorf("device: reading capture descriptor: %w", err)
	}

	for len(data) > 0 {
		var rep []byte
		rep, data, err = readLengthPrefixed(data)
		if err != nil {
			return nil, nil, fmt.Errorf("device: reading capture report %d: %w", len(reports), err)
		}
		reports = append(reports, rep)
	}

	return descriptorBytes, reports, nil
}

func readLengthPrefixed(data []byte) (chunk, rest []byte, err error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(data)
	data = data[4:]
	if uint32(len(data)) < n {
		return nil, nil, fmt.Errorf("truncated record: want %d bytes, have %d", n, len(data))
	}
	return data[:n], data[n:], nil
}

// SyntheticSerial returns a random uint32 taken from a fresh UUID.
// cmd/iptsd logs it as the session id of a -replay run; it is not fed to
// the daemon, whose cones are keyed by the serial carried in stylus
// reports (see internal/daemon.handleLegacyStylus).
func SyntheticSerial() uint32 {
	id := uuid.New()
	return binary.LittleEndian.Uint32(id[:4])
}
