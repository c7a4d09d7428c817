// Package serde implements the canonical, length-prefixed binary encoding
// used for every on-wire and on-disk entity (spec §2 item 2). Every encoder
// produces a byte-exact, side-effect-free serialization; every decoder
// round-trips it back without loss, which is what the storage and wire-
// protocol layers both depend on for corruption detection.
package serde

import (
	"encoding/binary"
	"fmt"
)

// Writer accumulates a canonical byte encoding. It never fails; invalid
// input (e.g. a string whose length exceeds the varint caps) is a
// programming error and is converted to an error only at the reader side,
// matching the teacher's append-only encode helpers (consensus/encode.go).
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer with cap bytes of pre-reserved capacity.
func NewWriter(cap int) *Writer {
	return &Writer{buf: make([]byte, 0, cap)}
}

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// PutByte appends a single byte.
func (w *Writer) PutByte(b byte) {
	w.buf = append(w.buf, b)
}

// PutBytes appends a raw byte slice with no length prefix.
func (w *Writer) PutBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// PutU16 appends a little-endian uint16.
func (w *Writer) PutU16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// PutU32 appends a little-endian uint32.
func (w *Writer) PutU32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// PutU64 appends a little-endian uint64.
func (w *Writer) PutU64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// PutI64 appends a little-endian int64.
func (w *Writer) PutI64(v int64) {
	w.PutU64(uint64(v))
}

// PutCompactSize appends n as a Bitcoin-style CompactSize varint: the
// smallest tag/width pair able to represent n, so two encoders of the same
// value always produce the same bytes (spec §2: "canonical" codec).
func (w *Writer) PutCompactSize(n uint64) {
	switch {
	case n < 0xfd:
		w.buf = append(w.buf, byte(n))
	case n <= 0xffff:
		w.buf = append(w.buf, 0xfd)
		w.PutU16(uint16(n))
	case n <= 0xffff_ffff:
		w.buf = append(w.buf, 0xfe)
		w.PutU32(uint32(n))
	default:
		w.buf = append(w.buf, 0xff)
		w.PutU64(n)
	}
}

// PutBytesLP appends b prefixed with its CompactSize length.
func (w *Writer) PutBytesLP(b []byte) {
	w.PutCompactSize(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// Reader consumes a canonical byte encoding produced by Writer.
type Reader struct {
	b   []byte
	pos int
}

// NewReader wraps b for sequential reading starting at offset 0.
func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	if r.pos >= len(r.b) {
		return 0
	}
	return len(r.b) - r.pos
}

// Done reports whether every byte has been consumed; callers use this to
// reject trailing garbage after a top-level decode.
func (r *Reader) Done() bool {
	return r.Remaining() == 0
}

func (r *Reader) readExact(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, fmt.Errorf("serde: truncated input, want %d bytes, have %d", n, r.Remaining())
	}
	start := r.pos
	r.pos += n
	return r.b[start:r.pos], nil
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.readExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBytes reads exactly n raw bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	b, err := r.readExact(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadU16 reads a little-endian uint16.
func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.readExact(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads a little-endian uint32.
func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.readExact(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads a little-endian uint64.
func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.readExact(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadI64 reads a little-endian int64.
func (r *Reader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

// ReadCompactSize decodes a CompactSize varint, rejecting non-minimal
// encodings the same way the teacher's decoder does -- a non-canonical
// length prefix would let two different byte strings decode to the same
// value, breaking the "canonical" guarantee the codec exists to provide.
func (r *Reader) ReadCompactSize() (uint64, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch {
	case tag < 0xfd:
		return uint64(tag), nil
	case tag == 0xfd:
		v, err := r.ReadU16()
		if err != nil {
			return 0, err
		}
		if v < 0xfd {
			return 0, fmt.Errorf("serde: non-minimal compactsize (0xfd)")
		}
		return uint64(v), nil
	case tag == 0xfe:
		v, err := r.ReadU32()
		if err != nil {
			return 0, err
		}
		if v <= 0xffff {
			return 0, fmt.Errorf("serde: non-minimal compactsize (0xfe)")
		}
		return uint64(v), nil
	default:
		v, err := r.ReadU64()
		if err != nil {
			return 0, err
		}
		if v <= 0xffff_ffff {
			return 0, fmt.Errorf("serde: non-minimal compactsize (0xff)")
		}
		return v, nil
	}
}

// ReadBytesLP reads a CompactSize-length-prefixed byte string, bounded by
// maxLen to stop a corrupt or hostile length prefix from driving an
// unbounded allocation.
func (r *Reader) ReadBytesLP(maxLen int) ([]byte, error) {
	n, err := r.ReadCompactSize()
	if err != nil {
		return nil, err
	}
	if maxLen > 0 && n > uint64(maxLen) {
		return nil, fmt.Errorf("serde: length %d exceeds cap %d", n, maxLen)
	}
	return r.ReadBytes(int(n))
}
