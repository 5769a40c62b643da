package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"classicraft.net/internal/sim/world"
)

var errNoBase = errors.New("journal starts from an existing level; pass -base or keep a matching backup")

// replayer rebuilds the grid from journal entries and checks every LOAD and
// SAVE digest against it.
type replayer struct {
	ground byte
	base   func(digest string) ([]byte, bool)
	report func(format string, args ...any)

	grid      *world.Grid
	lastSaved []byte

	entries, edits, loads, saves, rewinds int
	mismatches                            []string
}

func (r *replayer) apply(e world.EventLogEntry) error {
	r.entries++
	switch e.Kind {
	case world.EventLoad:
		return r.load(e)
	case world.EventSetBlock:
		if r.grid == nil || e.Pos == nil {
			return nil
		}
		if _, err := r.grid.Set(e.Pos[0], e.Pos[1], e.Pos[2], e.Block); err != nil {
			r.mismatch(e, "edit outside grid: %v", err)
			return nil
		}
		r.edits++
	case world.EventSave:
		if r.grid == nil {
			return nil
		}
		r.saves++
		if got := r.grid.Digest(); got != e.Digest {
			r.mismatch(e, "save digest %s, replay has %s", short(e.Digest), short(got))
			return nil
		}
		if e.Err == "" {
			r.lastSaved = append(r.lastSaved[:0], r.grid.Voxels()...)
		}
		r.logf("seq=%d SAVE ok %s", e.Seq, short(e.Digest))
	}
	return nil
}

// load starts a new run. A failed load means the server began from a fresh
// grid; a successful one must match the last replayed save.
func (r *replayer) load(e world.EventLogEntry) error {
	if e.Size == nil {
		r.mismatch(e, "LOAD without size")
		return nil
	}
	r.loads++
	sx, sy, sz := e.Size[0], e.Size[1], e.Size[2]

	if e.Err != "" {
		r.grid = world.NewGrid(sx, sy, sz)
		r.grid.Fill(0, r.ground)
		r.lastSaved = nil
		if got := r.grid.Digest(); got != e.Digest {
			r.mismatch(e, "fresh grid digest %s, replay has %s", short(e.Digest), short(got))
		}
		r.logf("seq=%d LOAD fresh %dx%dx%d", e.Seq, sx, sy, sz)
		return nil
	}

	if r.grid != nil {
		if psx, psy, psz := r.grid.Size(); psx == sx && psy == sy && psz == sz {
			if r.grid.Digest() == e.Digest {
				r.logf("seq=%d LOAD ok %s", e.Seq, short(e.Digest))
				return nil
			}
			if r.lastSaved != nil && digestOf(r.lastSaved) == e.Digest {
				// Edits after the last save never reached disk.
				_ = r.grid.Replace(r.lastSaved)
				r.rewinds++
				r.logf("seq=%d LOAD rewound to last save %s", e.Seq, short(e.Digest))
				return nil
			}
		}
	}

	voxels, ok := r.base(e.Digest)
	if !ok {
		if r.grid == nil {
			return fmt.Errorf("seq=%d: %w", e.Seq, errNoBase)
		}
		r.mismatch(e, "load digest %s matches neither replay nor any base", short(e.Digest))
		return nil
	}
	r.grid = world.NewGrid(sx, sy, sz)
	if err := r.grid.Replace(voxels); err != nil {
		r.mismatch(e, "base: %v", err)
		return nil
	}
	r.lastSaved = append([]byte(nil), voxels...)
	r.logf("seq=%d LOAD from base %s", e.Seq, short(e.Digest))
	return nil
}

func (r *replayer) mismatch(e world.EventLogEntry, format string, args ...any) {
	r.mismatches = append(r.mismatches, fmt.Sprintf("seq=%d %s: ", e.Seq, e.Kind)+fmt.Sprintf(format, args...))
}

func (r *replayer) logf(format string, args ...any) {
	if r.report != nil {
		r.report(format, args...)
	}
}

func digestOf(voxels []byte) string {
	sum := sha256.Sum256(voxels)
	return hex.EncodeToString(sum[:])
}

func short(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
