package tcp

import (
	"errors"
	"io"
	"log"
	"net"
	"time"

	"classicraft.net/internal/protocol"
	"classicraft.net/internal/sim/bus"
	"classicraft.net/internal/sim/world"
)

// Handler turns one connection's inbound messages into world commands. It
// never writes to the connection; after identification the sink is owned by
// the world.
type Handler struct {
	id     uint32
	sink   io.Writer
	remote string
	out    *bus.Producer[world.Command]
	log    *log.Logger
}

func NewHandler(id uint32, sink io.Writer, remote string, out *bus.Producer[world.Command], logger *log.Logger) *Handler {
	return &Handler{id: id, sink: sink, remote: remote, out: out, log: logger}
}

// Run reads until the stream fails or closes, then enqueues RemovePlayer
// exactly once. Malformed and unknown messages are logged and skipped.
func (h *Handler) Run(dec *protocol.Decoder) error {
	defer h.out.Send(world.RemovePlayer{ID: h.id})
	for {
		m, err := dec.Next()
		if err != nil {
			var de *protocol.DecodeError
			if errors.As(err, &de) {
				h.log.Printf("conn %d: dropped message: %v", h.id, err)
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if cmd := h.Translate(m); cmd != nil {
			h.out.Send(cmd)
		}
	}
}

// Translate maps a serverbound message to its command, or nil.
func (h *Handler) Translate(m protocol.Packet) world.Command {
	switch m := m.(type) {
	case *protocol.Identification:
		if m.ProtocolVersion != protocol.Version {
			h.log.Printf("conn %d: client %q speaks protocol %d, want %d", h.id, m.Username, m.ProtocolVersion, protocol.Version)
		}
		return world.AddPlayer{ID: h.id, Sink: h.sink, Name: m.Username, RemoteAddr: h.remote}
	case *protocol.PlayerSetBlock:
		return world.SetBlock{
			PlayerID: h.id,
			X:        int(m.X), Y: int(m.Y), Z: int(m.Z),
			Value: m.BlockID,
			Mode:  m.Mode,
		}
	case *protocol.PositionOrientation:
		return world.MovePlayer{
			ID: h.id,
			X:  m.X, Y: m.Y, Z: m.Z,
			Yaw: m.Yaw, Pitch: m.Pitch,
		}
	case *protocol.ChatMessage:
		return world.PlayerMessage{ID: h.id, Text: m.Text}
	}
	return nil
}

// connSink bounds every write with a deadline so a stalled peer cannot block
// the world goroutine indefinitely.
type connSink struct {
	conn    net.Conn
	timeout time.Duration
}

func (s *connSink) Write(b []byte) (int, error) {
	if s.timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	}
	return s.conn.Write(b)
}
