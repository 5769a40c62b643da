package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"
)

func TestDecoder_Fragmented(t *testing.T) {
	var stream []byte
	stream = append(stream, Encode(&Identification{ProtocolVersion: Version, Username: "Alice"})...)
	stream = append(stream, Encode(&PositionOrientation{PlayerID: SelfID, X: 10, Y: 20, Z: 30, Yaw: 1, Pitch: 2})...)

	dec := NewDecoder(iotest.OneByteReader(bytes.NewReader(stream)), Serverbound)
	m, err := dec.Next()
	if err != nil {
		t.Fatalf("Next 1: %v", err)
	}
	if id, ok := m.(*Identification); !ok || id.Username != "Alice" {
		t.Fatalf("message 1: %#v", m)
	}
	m, err = dec.Next()
	if err != nil {
		t.Fatalf("Next 2: %v", err)
	}
	if po, ok := m.(*PositionOrientation); !ok || po.X != 10 || po.Y != 20 || po.Z != 30 {
		t.Fatalf("message 2: %#v", m)
	}
	if _, err := dec.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestDecoder_CoalescedInOneRead(t *testing.T) {
	var stream []byte
	for i := 0; i < 3; i++ {
		stream = append(stream, Encode(&ChatMessage{Unused: SelfID, Text: string(rune('a' + i))})...)
	}
	dec := NewDecoder(bytes.NewReader(stream), Serverbound)
	for i := 0; i < 3; i++ {
		m, err := dec.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if got := m.(*ChatMessage).Text; got != string(rune('a'+i)) {
			t.Fatalf("message %d: %q", i, got)
		}
	}
}

func TestDecoder_UnknownOpcodeResyncs(t *testing.T) {
	pr, pw := io.Pipe()
	dec := NewDecoder(pr, Serverbound)
	go func() {
		_, _ = pw.Write([]byte{0x42, 1, 2, 3})
		_, _ = pw.Write(Encode(&ChatMessage{Text: "after"}))
		_ = pw.Close()
	}()

	_, err := dec.Next()
	var de *DecodeError
	if !errors.As(err, &de) || !errors.Is(err, ErrUnknownOpcode) {
		t.Fatalf("expected DecodeError(ErrUnknownOpcode), got %v", err)
	}
	if de.Opcode != 0x42 {
		t.Fatalf("opcode: %#x", de.Opcode)
	}
	m, err := dec.Next()
	if err != nil {
		t.Fatalf("Next after unknown: %v", err)
	}
	if got := m.(*ChatMessage).Text; got != "after" {
		t.Fatalf("text: %q", got)
	}
}

func TestDecoder_MalformedBodyIsSkipped(t *testing.T) {
	bad := Encode(&ChatMessage{Text: "x"})
	bad[2] = 0xff
	stream := append(bad, Encode(&ChatMessage{Text: "ok"})...)

	dec := NewDecoder(bytes.NewReader(stream), Serverbound)
	_, err := dec.Next()
	var de *DecodeError
	if !errors.As(err, &de) || !errors.Is(err, ErrInvalidString) {
		t.Fatalf("expected DecodeError(ErrInvalidString), got %v", err)
	}
	m, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got := m.(*ChatMessage).Text; got != "ok" {
		t.Fatalf("text: %q", got)
	}
}

func TestDecoder_TruncatedBodyIsIOError(t *testing.T) {
	raw := Encode(&PlayerSetBlock{X: 1})
	dec := NewDecoder(bytes.NewReader(raw[:4]), Serverbound)
	_, err := dec.Next()
	if err != io.ErrUnexpectedEOF {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
	var de *DecodeError
	if errors.As(err, &de) {
		t.Fatalf("truncation must not be a DecodeError")
	}
}

func TestDecoder_IdentificationWithAndWithoutPad(t *testing.T) {
	ident := Encode(&Identification{ProtocolVersion: Version, Username: "Alice"})
	if len(ident) != 130 {
		t.Fatalf("identification length %d, want 130", len(ident))
	}
	move := Encode(&PositionOrientation{PlayerID: SelfID, X: 64, Y: 96, Z: 64})
	chat := Encode(&ChatMessage{Unused: SelfID, Text: "hi"})

	cases := []struct {
		name string
		pad  []byte
		next []byte
	}{
		{"no pad then move", nil, move},
		{"no pad then chat", nil, chat},
		{"zero pad then move", []byte{0x00}, move},
		{"extension pad then chat", []byte{0x42}, chat},
	}
	for _, tc := range cases {
		var stream []byte
		stream = append(stream, ident...)
		stream = append(stream, tc.pad...)
		stream = append(stream, tc.next...)

		readers := map[string]io.Reader{
			"whole":    bytes.NewReader(stream),
			"bytewise": iotest.OneByteReader(bytes.NewReader(stream)),
		}
		for rname, r := range readers {
			dec := NewDecoder(r, Serverbound)
			m, err := dec.Next()
			if err != nil {
				t.Fatalf("%s/%s: Next 1: %v", tc.name, rname, err)
			}
			if id, ok := m.(*Identification); !ok || id.Username != "Alice" || id.ProtocolVersion != Version {
				t.Fatalf("%s/%s: message 1: %#v", tc.name, rname, m)
			}
			m, err = dec.Next()
			if err != nil {
				t.Fatalf("%s/%s: Next 2: %v", tc.name, rname, err)
			}
			switch want := tc.next[0]; want {
			case OpPositionOrientation:
				if po, ok := m.(*PositionOrientation); !ok || po.X != 64 || po.Y != 96 {
					t.Fatalf("%s/%s: message 2: %#v", tc.name, rname, m)
				}
			case OpChatMessage:
				if c, ok := m.(*ChatMessage); !ok || c.Text != "hi" {
					t.Fatalf("%s/%s: message 2: %#v", tc.name, rname, m)
				}
			}
			if _, err := dec.Next(); err != io.EOF {
				t.Fatalf("%s/%s: expected io.EOF, got %v", tc.name, rname, err)
			}
		}
	}
}

func TestDecoder_PadOnlyFollowsIdentification(t *testing.T) {
	// 0x00 after a chat message is an Identification opcode, not padding.
	var stream []byte
	stream = append(stream, Encode(&ChatMessage{Text: "x"})...)
	stream = append(stream, Encode(&Identification{ProtocolVersion: Version, Username: "Bob"})...)

	dec := NewDecoder(bytes.NewReader(stream), Serverbound)
	if _, err := dec.Next(); err != nil {
		t.Fatalf("Next 1: %v", err)
	}
	m, err := dec.Next()
	if err != nil {
		t.Fatalf("Next 2: %v", err)
	}
	if id, ok := m.(*Identification); !ok || id.Username != "Bob" {
		t.Fatalf("message 2: %#v", m)
	}
}
