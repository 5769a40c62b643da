// Package scheduler injects timer-driven commands onto the command bus.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"classicraft.net/internal/sim/bus"
	"classicraft.net/internal/sim/world"
)

type Action int

const (
	// ActionSave announces "World Saved." and then saves.
	ActionSave Action = iota + 1
	// ActionAnnounce broadcasts the entry's text.
	ActionAnnounce
)

const savedText = "World Saved."

func (a Action) String() string {
	switch a {
	case ActionSave:
		return "save"
	case ActionAnnounce:
		return "announce"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

func ParseAction(s string) (Action, error) {
	switch s {
	case "save":
		return ActionSave, nil
	case "announce":
		return ActionAnnounce, nil
	default:
		return 0, fmt.Errorf("unknown schedule action %q", s)
	}
}

// Entry fires Action whenever the elapsed second count is a multiple of Every.
type Entry struct {
	Every  int
	Action Action
	Text   string
}

func DefaultEntries() []Entry {
	return []Entry{{Every: 30, Action: ActionSave}}
}

type Scheduler struct {
	entries []Entry
	out     *bus.Producer[world.Command]
	logger  *log.Logger
	tick    time.Duration
}

// New takes ownership of out and closes it when Run returns.
func New(entries []Entry, out *bus.Producer[world.Command], logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Every <= 0 {
			logger.Printf("dropping schedule entry with interval %d", e.Every)
			continue
		}
		kept = append(kept, e)
	}
	return &Scheduler{entries: kept, out: out, logger: logger, tick: time.Second}
}

// Due returns the commands for the given elapsed second, in table order.
func (s *Scheduler) Due(elapsed uint64) []world.Command {
	if elapsed == 0 {
		return nil
	}
	var out []world.Command
	for _, e := range s.entries {
		if elapsed%uint64(e.Every) != 0 {
			continue
		}
		switch e.Action {
		case ActionSave:
			out = append(out, world.SystemMessage{Text: savedText}, world.Save{})
		case ActionAnnounce:
			out = append(out, world.SystemMessage{Text: e.Text})
		}
	}
	return out
}

// Run ticks once per tick interval until ctx is done. Elapsed counts from 1,
// so nothing fires at startup.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.out.Close()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	var elapsed uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			elapsed++
			for _, cmd := range s.Due(elapsed) {
				if !s.out.Send(cmd) {
					return bus.ErrClosed
				}
			}
		}
	}
}
