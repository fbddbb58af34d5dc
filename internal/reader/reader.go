// Package reader provides a positional, checked cursor over a byte buffer,
// grounded on the teacher's manual offset arithmetic in its LiDAR packet
// parser but generalized into a reusable generic reader (spec.md §4.A).
package reader

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/linux-surface/iptsd/internal/ipterrors"
)

// R is a checked cursor over a byte slice. It never panics on short
// input: every operation that would read past the end of the buffer
// returns an error wrapping ipterrors.ErrMalformedFrame ("truncated frame").
type R struct {
	buf []byte
	pos int
}

// New wraps buf in a reader starting at offset 0.
func New(buf []byte) *R {
	return &R{buf: buf}
}

// Remaining returns the number of unread bytes.
func (r *R) Remaining() int {
	return len(r.buf) - r.pos
}

// Read copies sizeof(T) bytes into a freshly zeroed T and advances the
// cursor. T must have a fixed, platform-independent in-memory layout
// (numeric types, arrays and structs thereof); all packed structs in this
// module are little-endian.
func Read[T any](r *R) (T, error) {
	var v T
	size := binary.Size(v)
	if size < 0 {
		panic("reader.Read: type has no fixed binary size")
	}
	if r.Remaining() < size {
		var zero T
		return zero, ipterrors.MalformedFrame(fmt.Sprintf("truncated frame: need %d bytes, have %d", size, r.Remaining()))
	}
	if err := binary.Read(bytes.NewReader(r.buf[r.pos:r.pos+size]), binary.LittleEndian, &v); err != nil {
		var zero T
		return zero, ipterrors.MalformedFrame(err.Error())
	}
	r.pos += size
	return v, nil
}

// Skip advances the cursor by n bytes, discarding their content.
func (r *R) Skip(n int) error {
	if n < 0 || r.Remaining() < n {
		return ipterrors.MalformedFrame(fmt.Sprintf("truncated frame: cannot skip %d bytes", n))
	}
	r.pos += n
	return nil
}

// Sub returns a new reader over the next n bytes and advances the cursor
// past them.
func (r *R) Sub(n int) (*R, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ipterrors.MalformedFrame(fmt.Sprintf("truncated frame: cannot take sub-reader of %d bytes", n))
	}
	sub := New(r.buf[r.pos : r.pos+n])
	r.pos += n
	return sub, nil
}

// Bytes returns the next n bytes without copying and advances the cursor.
func (r *R) Bytes(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ipterrors.MalformedFrame(fmt.Sprintf("truncated frame: cannot read %d bytes", n))
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}
