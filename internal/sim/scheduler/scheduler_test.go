package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"classicraft.net/internal/sim/bus"
	"classicraft.net/internal/sim/world"
)

func TestDue_DefaultSaveEvery30(t *testing.T) {
	_, p := bus.New[world.Command]()
	defer p.Close()
	s := New(DefaultEntries(), p, nil)

	for sec := uint64(0); sec < 30; sec++ {
		if cmds := s.Due(sec); len(cmds) != 0 {
			t.Fatalf("second %d: unexpected %v", sec, cmds)
		}
	}
	cmds := s.Due(30)
	if len(cmds) != 2 {
		t.Fatalf("second 30: got %d commands", len(cmds))
	}
	if m, ok := cmds[0].(world.SystemMessage); !ok || m.Text != "World Saved." {
		t.Fatalf("first: %#v", cmds[0])
	}
	if _, ok := cmds[1].(world.Save); !ok {
		t.Fatalf("second: %#v", cmds[1])
	}
	if len(s.Due(60)) != 2 || len(s.Due(45)) != 0 {
		t.Fatalf("multiples of 30 only")
	}
}

func TestDue_TableOrderAndDivisors(t *testing.T) {
	_, p := bus.New[world.Command]()
	defer p.Close()
	s := New([]Entry{
		{Every: 10, Action: ActionAnnounce, Text: "ten"},
		{Every: 4, Action: ActionAnnounce, Text: "four"},
		{Every: 0, Action: ActionSave},
	}, p, nil)

	got := s.Due(20)
	if len(got) != 2 {
		t.Fatalf("got %d commands", len(got))
	}
	if got[0].(world.SystemMessage).Text != "ten" || got[1].(world.SystemMessage).Text != "four" {
		t.Fatalf("order: %#v", got)
	}
	if got := s.Due(8); len(got) != 1 || got[0].(world.SystemMessage).Text != "four" {
		t.Fatalf("second 8: %#v", got)
	}
}

func TestParseAction(t *testing.T) {
	for _, a := range []Action{ActionSave, ActionAnnounce} {
		got, err := ParseAction(a.String())
		if err != nil || got != a {
			t.Fatalf("ParseAction(%q) = %v, %v", a.String(), got, err)
		}
	}
	if _, err := ParseAction("reboot"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRun_SendsOntoBusAndClosesProducer(t *testing.T) {
	q, p := bus.New[world.Command]()
	s := New([]Entry{{Every: 1, Action: ActionAnnounce, Text: "tick"}}, p, nil)
	s.tick = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	recvCtx, recvCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer recvCancel()
	for i := 0; i < 3; i++ {
		cmd, err := q.Recv(recvCtx)
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if m, ok := cmd.(world.SystemMessage); !ok || m.Text != "tick" {
			t.Fatalf("cmd: %#v", cmd)
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: %v", err)
	}

	// The scheduler held the only producer, so the bus closes once drained.
	for {
		_, err := q.Recv(recvCtx)
		if errors.Is(err, bus.ErrClosed) {
			break
		}
		if err != nil {
			t.Fatalf("Recv after stop: %v", err)
		}
	}
}
