// Package proto implements the wire codec: fixed-layout, big-endian
// encoding and decoding of every record in the protocol (§4.1, §6 of the
// design). The codec is total — it never panics on malformed input, and
// every Decode path returns a deterministic error on truncation or an
// out-of-range length prefix instead of reading out of bounds.
package proto

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// nullLength is the sentinel length prefix meaning "nil byte array",
// used by Create/SetData payloads and the session password field.
const nullLength = -1

// ErrTruncated is returned by any Decoder read that would run past the
// end of the buffer.
var ErrTruncated = fmt.Errorf("proto: truncated frame")

// ErrNegativeLength is returned when a length-prefixed field carries a
// negative length other than the reserved null sentinel (-1).
var ErrNegativeLength = fmt.Errorf("proto: negative length prefix")

// Encoder serializes fields in declaration order into a growable buffer.
// It has no failure mode: every Write call on in-memory fields of valid
// Go types succeeds.
type Encoder struct {
	buf bytes.Buffer
}

// NewEncoder returns an empty Encoder. It reserves no room for a length
// prefix; EncodeFrame adds one around the finished body.
func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) WriteInt32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	e.buf.Write(b[:])
}

func (e *Encoder) WriteInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	e.buf.Write(b[:])
}

func (e *Encoder) WriteBool(v bool) {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

// WriteBytes writes a length-prefixed byte array. A nil slice is encoded
// as the null sentinel length (-1) with no following bytes.
func (e *Encoder) WriteBytes(b []byte) {
	if b == nil {
		e.WriteInt32(nullLength)
		return
	}
	e.WriteInt32(int32(len(b)))
	e.buf.Write(b)
}

// WriteString writes a length-prefixed UTF-8 string using the same
// encoding as WriteBytes. The empty string is encoded with length 0, not
// the null sentinel, since client paths and schemes are never nil.
func (e *Encoder) WriteString(s string) {
	e.WriteInt32(int32(len(s)))
	e.buf.WriteString(s)
}

// Bytes returns the accumulated body, not including any frame length
// prefix.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Decoder deserializes fields in declaration order out of a fixed byte
// slice. Every Read method returns an error rather than panicking when
// the buffer is exhausted or a length prefix is out of range.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder wraps buf for sequential field reads starting at offset 0.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining reports how many unread bytes are left in the buffer.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

func (d *Decoder) ReadInt32() (int32, error) {
	if d.Remaining() < 4 {
		return 0, ErrTruncated
	}
	v := int32(binary.BigEndian.Uint32(d.buf[d.off : d.off+4]))
	d.off += 4
	return v, nil
}

func (d *Decoder) ReadInt64() (int64, error) {
	if d.Remaining() < 8 {
		return 0, ErrTruncated
	}
	v := int64(binary.BigEndian.Uint64(d.buf[d.off : d.off+8]))
	d.off += 8
	return v, nil
}

func (d *Decoder) ReadBool() (bool, error) {
	if d.Remaining() < 1 {
		return false, ErrTruncated
	}
	v := d.buf[d.off] != 0
	d.off++
	return v, nil
}

// ReadBytes reads a length-prefixed byte array. A length of -1 decodes
// to a nil slice; any other negative length is a protocol violation.
// The returned slice aliases the Decoder's backing buffer and must be
// copied by the caller before the buffer is reused or mutated.
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n == nullLength {
		return nil, nil
	}
	if n < 0 {
		return nil, ErrNegativeLength
	}
	if d.Remaining() < int(n) {
		return nil, ErrTruncated
	}
	b := d.buf[d.off : d.off+int(n)]
	d.off += int(n)
	return b, nil
}

func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
