package protocol

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// StringLen is the fixed width of every string field on the wire.
	StringLen = 64
	// BlockLen is the fixed width of a level data chunk payload.
	BlockLen = 1024
)

var (
	ErrShortBuffer   = errors.New("protocol: short buffer")
	ErrInvalidString = errors.New("protocol: invalid utf-8 in string field")
	ErrUnknownOpcode = errors.New("protocol: unknown opcode")
)

// Reader walks a byte slice with a cursor. All reads are big-endian.
type Reader struct {
	buf []byte
	off int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, r.off, r.Remaining())
	}
	return nil
}

func (r *Reader) ReadU8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *Reader) ReadU16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := uint16(r.buf[r.off])<<8 | uint16(r.buf[r.off+1])
	r.off += 2
	return v, nil
}

// ReadString decodes the full 64-byte span. Padding is left in place; use TrimPadding.
func (r *Reader) ReadString() (string, error) {
	if err := r.need(StringLen); err != nil {
		return "", err
	}
	span := r.buf[r.off : r.off+StringLen]
	if !utf8.Valid(span) {
		return "", fmt.Errorf("%w at offset %d", ErrInvalidString, r.off)
	}
	r.off += StringLen
	return string(span), nil
}

// ReadBlock returns a copy of the next 1024 bytes.
func (r *Reader) ReadBlock() ([]byte, error) {
	if err := r.need(BlockLen); err != nil {
		return nil, err
	}
	out := make([]byte, BlockLen)
	copy(out, r.buf[r.off:r.off+BlockLen])
	r.off += BlockLen
	return out, nil
}

// TrimPadding strips the zero and space padding clients use for string fields.
func TrimPadding(s string) string {
	return strings.TrimRight(s, "\x00 ")
}

// Writer appends big-endian primitives to a growing buffer.
type Writer struct {
	buf []byte
}

func NewWriter(capacity int) *Writer { return &Writer{buf: make([]byte, 0, capacity)} }

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) WriteU8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) WriteU16(v uint16) { w.buf = append(w.buf, byte(v>>8), byte(v)) }

// WriteString writes exactly 64 bytes. Longer values are cut at the last rune
// boundary that fits; shorter ones are zero-padded.
func (w *Writer) WriteString(s string) {
	b := []byte(FitString(s))
	w.buf = append(w.buf, b...)
	for i := len(b); i < StringLen; i++ {
		w.buf = append(w.buf, 0)
	}
}

// WriteBlock writes exactly 1024 bytes, zero-padding short input and
// ignoring anything past the first 1024 bytes.
func (w *Writer) WriteBlock(b []byte) {
	if len(b) > BlockLen {
		b = b[:BlockLen]
	}
	w.buf = append(w.buf, b...)
	for i := len(b); i < BlockLen; i++ {
		w.buf = append(w.buf, 0)
	}
}

// FitString truncates s to at most 64 bytes without splitting a rune.
func FitString(s string) string {
	if len(s) <= StringLen {
		return s
	}
	cut := StringLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
