package tcp

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"testing"
	"time"

	"classicraft.net/internal/protocol"
	"classicraft.net/internal/sim/bus"
	"classicraft.net/internal/sim/world"
)

func discardLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func drain(t *testing.T, q *bus.Queue[world.Command]) []world.Command {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out []world.Command
	for {
		cmd, err := q.Recv(ctx)
		if errors.Is(err, bus.ErrClosed) {
			return out
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		out = append(out, cmd)
	}
}

func TestHandler_TranslatesInOrder(t *testing.T) {
	client, server := net.Pipe()
	q, out := bus.New[world.Command]()
	h := NewHandler(7, server, "pipe", out, discardLogger())

	done := make(chan error, 1)
	go func() {
		done <- h.Run(protocol.NewDecoder(server, protocol.Serverbound))
		out.Close()
	}()

	writes := [][]byte{
		protocol.Encode(&protocol.Identification{ProtocolVersion: protocol.Version, Username: "Alice"}),
		protocol.Encode(&protocol.PlayerSetBlock{X: 1, Y: 2, Z: 3, Mode: 1, BlockID: 5}),
		{0x42}, // unknown opcode, dropped
		protocol.Encode(&protocol.PositionOrientation{PlayerID: protocol.SelfID, X: 10, Y: 20, Z: 30, Yaw: 4, Pitch: 5}),
		protocol.Encode(&protocol.ChatMessage{Unused: protocol.SelfID, Text: "hi"}),
	}
	for _, b := range writes {
		if _, err := client.Write(b); err != nil {
			t.Fatalf("client write: %v", err)
		}
	}
	_ = client.Close()

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	cmds := drain(t, q)
	if len(cmds) != 5 {
		t.Fatalf("commands: got %d want 5: %#v", len(cmds), cmds)
	}
	if c, ok := cmds[0].(world.AddPlayer); !ok || c.ID != 7 || c.Name != "Alice" || c.Sink != server || c.RemoteAddr != "pipe" {
		t.Fatalf("add: %#v", cmds[0])
	}
	if c, ok := cmds[1].(world.SetBlock); !ok || c.PlayerID != 7 || c.X != 1 || c.Y != 2 || c.Z != 3 || c.Value != 5 || c.Mode != 1 {
		t.Fatalf("set block: %#v", cmds[1])
	}
	if c, ok := cmds[2].(world.MovePlayer); !ok || c.ID != 7 || c.X != 10 || c.Yaw != 4 || c.Pitch != 5 {
		t.Fatalf("move: %#v", cmds[2])
	}
	if c, ok := cmds[3].(world.PlayerMessage); !ok || c.ID != 7 || c.Text != "hi" {
		t.Fatalf("chat: %#v", cmds[3])
	}
	if c, ok := cmds[4].(world.RemovePlayer); !ok || c.ID != 7 {
		t.Fatalf("remove: %#v", cmds[4])
	}
}

func TestHandler_RemoveOnceOnReadError(t *testing.T) {
	client, server := net.Pipe()
	q, out := bus.New[world.Command]()
	h := NewHandler(3, server, "pipe", out, discardLogger())

	done := make(chan error, 1)
	go func() {
		done <- h.Run(protocol.NewDecoder(server, protocol.Serverbound))
		out.Close()
	}()

	// Half a message, then the connection dies.
	b := protocol.Encode(&protocol.PlayerSetBlock{X: 1})
	if _, err := client.Write(b[:4]); err != nil {
		t.Fatalf("client write: %v", err)
	}
	_ = client.Close()

	if err := <-done; err == nil {
		t.Fatalf("expected read error")
	}
	cmds := drain(t, q)
	if len(cmds) != 1 {
		t.Fatalf("commands: %#v", cmds)
	}
	if c, ok := cmds[0].(world.RemovePlayer); !ok || c.ID != 3 {
		t.Fatalf("remove: %#v", cmds[0])
	}
}
