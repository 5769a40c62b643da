package log

import (
	"os"
	"testing"
	"time"

	"classicraft.net/internal/sim/world"
)

func TestJournal_RoundTripAndRotation(t *testing.T) {
	dir := t.TempDir()
	j := NewJournalLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	j.w.now = func() time.Time { return clock }

	pos := [3]int{1, 2, 3}
	if err := j.WriteEvent(world.EventLogEntry{Seq: 1, Kind: world.EventJoin, Player: 1, Name: "Alice"}); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := j.WriteEvent(world.EventLogEntry{Seq: 2, Kind: world.EventSetBlock, Player: 1, Pos: &pos, Block: 5}); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := Files(JournalDir(dir), JournalPrefix)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files: got %d want 2 (one per hour)", len(files))
	}

	var got []world.EventLogEntry
	if err := ReadJournal(dir, func(e world.EventLogEntry) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("ReadJournal: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Alice" || got[1].Pos == nil || *got[1].Pos != pos {
		t.Fatalf("entries: %#v", got)
	}
}

func TestJournal_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	for i := 1; i <= 2; i++ {
		j := NewJournalLogger(dir)
		j.w.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
		if err := j.WriteEvent(world.EventLogEntry{Seq: uint64(i), Kind: world.EventLoad}); err != nil {
			t.Fatalf("WriteEvent: %v", err)
		}
		_ = j.Close()
	}
	var seqs []uint64
	if err := ReadJournal(dir, func(e world.EventLogEntry) error {
		seqs = append(seqs, e.Seq)
		return nil
	}); err != nil {
		t.Fatalf("ReadJournal: %v", err)
	}
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Fatalf("seqs: %v", seqs)
	}
}

func TestAuditLogger_WritesFile(t *testing.T) {
	dir := t.TempDir()
	a := NewAuditLogger(dir)
	if err := a.WriteAudit(world.AuditEntry{Seq: 3, Actor: 1, Action: world.EventSetBlock, Reason: "OUT_OF_BOUNDS"}); err != nil {
		t.Fatalf("WriteAudit: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	files, err := Files(AuditDir(dir), AuditPrefix)
	if err != nil || len(files) != 1 {
		t.Fatalf("files: %v err=%v", files, err)
	}
	lines := 0
	if err := ScanFile(files[0], func([]byte) error { lines++; return nil }); err != nil {
		t.Fatalf("ScanFile: %v", err)
	}
	if lines != 1 {
		t.Fatalf("lines: %d", lines)
	}
	if _, err := os.Stat(JournalDir(dir)); !os.IsNotExist(err) {
		t.Fatalf("audit logger must not create the journal dir")
	}
}
