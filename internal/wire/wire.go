// Package wire implements the positional big-endian buffer codec that
// every NetTask layer above it (ECDHE records, SPACK objects, datagram
// headers) is built on.
package wire

import (
	"encoding/binary"
	"errors"
)

// ErrTruncatedFrame is returned whenever a Reader is asked for more
// bytes than remain in the underlying buffer.
var ErrTruncatedFrame = errors.New("wire: truncated frame")

// Reader is a positional cursor over an immutable byte buffer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential, bounds-checked reads.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Pos returns the current cursor offset.
func (r *Reader) Pos() int {
	return r.pos
}

// Read advances the cursor by n and returns a view onto those bytes.
// The returned slice aliases the reader's underlying buffer and must
// not be retained across further mutation of the source bytes.
func (r *Reader) Read(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrTruncatedFrame
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.Read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint32 reads a big-endian 32-bit unsigned integer.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.Read(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadUint64 reads a big-endian 64-bit unsigned integer.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.Read(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadLenPrefixed reads a u32 BE length followed by that many bytes,
// the variable-length field convention used everywhere on the wire.
func (r *Reader) ReadLenPrefixed() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	return r.Read(int(n))
}

// Writer appends fields to an in-memory byte accumulator.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// WriteUint8 appends a single byte.
func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

// WriteUint32 appends a big-endian 32-bit unsigned integer.
func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteUint64 appends a big-endian 64-bit unsigned integer.
func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteBytes appends raw bytes with no length prefix.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteLenPrefixed appends a u32 BE length followed by b.
func (w *Writer) WriteLenPrefixed(b []byte) {
	w.WriteUint32(uint32(len(b)))
	w.WriteBytes(b)
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Finish returns the accumulated bytes.
func (w *Writer) Finish() []byte {
	return w.buf
}
