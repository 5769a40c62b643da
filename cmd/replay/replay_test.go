package main

import (
	"errors"
	"testing"

	"classicraft.net/internal/sim/world"
)

func freshGrid() *world.Grid {
	g := world.NewGrid(4, 2, 4)
	g.Fill(0, 2)
	return g
}

func loadEntry(seq uint64, digest, errText string) world.EventLogEntry {
	return world.EventLogEntry{Seq: seq, Kind: world.EventLoad, Digest: digest, Err: errText, Size: &[3]int{4, 2, 4}}
}

func setEntry(seq uint64, x, y, z int, b byte) world.EventLogEntry {
	return world.EventLogEntry{Seq: seq, Kind: world.EventSetBlock, Pos: &[3]int{x, y, z}, Block: b}
}

func saveEntry(seq uint64, digest string) world.EventLogEntry {
	return world.EventLogEntry{Seq: seq, Kind: world.EventSave, Digest: digest, Size: &[3]int{4, 2, 4}}
}

func noBase(string) ([]byte, bool) { return nil, false }

func TestReplayer_FreshThenSavesAndReloads(t *testing.T) {
	g := freshGrid()
	freshDigest := g.Digest()
	_, _ = g.Set(1, 1, 1, 5)
	saved := g.Digest()

	r := &replayer{ground: 2, base: noBase}
	for _, e := range []world.EventLogEntry{
		loadEntry(1, freshDigest, "open level.lvl: no such file or directory"),
		setEntry(2, 1, 1, 1, 5),
		saveEntry(3, saved),
		// second run
		loadEntry(1, saved, ""),
		saveEntry(2, saved),
	} {
		if err := r.apply(e); err != nil {
			t.Fatalf("apply seq=%d: %v", e.Seq, err)
		}
	}
	if len(r.mismatches) != 0 {
		t.Fatalf("mismatches: %v", r.mismatches)
	}
	if r.loads != 2 || r.saves != 2 || r.edits != 1 {
		t.Fatalf("counts: loads=%d saves=%d edits=%d", r.loads, r.saves, r.edits)
	}
}

func TestReplayer_DetectsSaveMismatch(t *testing.T) {
	g := freshGrid()
	r := &replayer{ground: 2, base: noBase}
	_ = r.apply(loadEntry(1, g.Digest(), "missing"))
	_ = r.apply(setEntry(2, 0, 1, 0, 7))
	_ = r.apply(saveEntry(3, g.Digest())) // journal claims the edit never happened
	if len(r.mismatches) != 1 {
		t.Fatalf("expected one mismatch, got %v", r.mismatches)
	}
}

func TestReplayer_RewindsToLastSaveAfterCrash(t *testing.T) {
	g := freshGrid()
	fresh := g.Digest()
	_, _ = g.Set(0, 1, 0, 4)
	saved := g.Digest()

	r := &replayer{ground: 2, base: noBase}
	for _, e := range []world.EventLogEntry{
		loadEntry(1, fresh, "missing"),
		setEntry(2, 0, 1, 0, 4),
		saveEntry(3, saved),
		setEntry(4, 3, 1, 3, 9), // lost: no save before the crash
		loadEntry(1, saved, ""),
	} {
		if err := r.apply(e); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if r.rewinds != 1 || len(r.mismatches) != 0 {
		t.Fatalf("rewinds=%d mismatches=%v", r.rewinds, r.mismatches)
	}
	if r.grid.Block(3, 1, 3) != 0 {
		t.Fatalf("lost edit still present after rewind")
	}
}

func TestReplayer_ExistingLevelNeedsBase(t *testing.T) {
	g := freshGrid()
	_, _ = g.Set(2, 1, 2, 3)
	want := g.Digest()

	r := &replayer{ground: 2, base: noBase}
	if err := r.apply(loadEntry(1, want, "")); !errors.Is(err, errNoBase) {
		t.Fatalf("expected errNoBase, got %v", err)
	}

	voxels := append([]byte(nil), g.Voxels()...)
	r = &replayer{ground: 2, base: func(d string) ([]byte, bool) { return voxels, d == want }}
	if err := r.apply(loadEntry(1, want, "")); err != nil {
		t.Fatalf("apply with base: %v", err)
	}
	if r.grid.Block(2, 1, 2) != 3 {
		t.Fatalf("base not applied")
	}
}
