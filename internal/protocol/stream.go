package protocol

import (
	"bufio"
	"fmt"
	"io"
)

// DecodeError reports a message that was framed (or could not be framed) but
// not decoded. The stream stays usable after a DecodeError; any other error
// returned by Decoder.Next is an I/O failure.
type DecodeError struct {
	Opcode byte
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode opcode 0x%02x: %v", e.Opcode, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder reads opcode-framed messages from a byte stream. Each message is
// opcode plus a fixed body length, so fragmented reads are reassembled and
// coalesced ones split.
type Decoder struct {
	r     *bufio.Reader
	dir   Direction
	specs map[byte]messageSpec
	body  []byte
	// pad is set after a padded message; the next byte is skipped unless it
	// starts a message that can legitimately follow.
	pad bool
}

func NewDecoder(r io.Reader, dir Direction) *Decoder {
	return &Decoder{
		r:     bufio.NewReaderSize(r, 4096),
		dir:   dir,
		specs: specsFor(dir),
	}
}

// Next blocks until a full message is available.
//
// An unknown opcode has no known length, so the decoder discards whatever is
// currently buffered and returns a *DecodeError wrapping ErrUnknownOpcode.
// A body that fails to decode is consumed in full before its *DecodeError is
// returned.
//
// Identification is framed on its 129-byte body. The one trailing byte many
// clients send after it is dropped when it cannot start another message; a
// second Identification is never expected, so 0x00 counts as padding too.
func (d *Decoder) Next() (Packet, error) {
	op, err := d.r.ReadByte()
	if err != nil {
		return nil, err
	}
	if d.pad {
		d.pad = false
		if next, ok := d.specs[op]; !ok || next.padded {
			if op, err = d.r.ReadByte(); err != nil {
				return nil, err
			}
		}
	}
	spec, ok := d.specs[op]
	if !ok {
		_, _ = d.r.Discard(d.r.Buffered())
		return nil, &DecodeError{Opcode: op, Err: fmt.Errorf("%w (%s)", ErrUnknownOpcode, d.dir)}
	}
	if cap(d.body) < spec.bodyLen {
		d.body = make([]byte, spec.bodyLen)
	}
	body := d.body[:spec.bodyLen]
	if _, err := io.ReadFull(d.r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	d.pad = spec.padded
	m := spec.make()
	if err := m.decodeBody(NewReader(body)); err != nil {
		return nil, &DecodeError{Opcode: op, Err: err}
	}
	return m, nil
}
