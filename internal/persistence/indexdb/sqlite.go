package indexdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"classicraft.net/internal/sim/world"
)

// SQLiteIndex is a queryable read model of the journal. Rows are written by a
// single goroutine; when it falls behind, rows are dropped and counted. The
// JSONL journal remains the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropEvent  atomic.Uint64
	dropAudit  atomic.Uint64
	dropBackup atomic.Uint64
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqAudit
	reqBackup
)

type req struct {
	kind reqKind

	event  world.EventLogEntry
	audit  world.AuditEntry
	backup backupRow
}

type backupRow struct {
	Path       string
	Digest     string
	SourceSeq  uint64
	RecordedAt string
}

type Stats struct {
	QueueDepth      int
	QueueCapacity   int
	DropEventTotal  uint64
	DropAuditTotal  uint64
	DropBackupTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			at TEXT NOT NULL,
			kind TEXT NOT NULL,
			player INTEGER,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_kind_at ON events(kind, at);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session TEXT PRIMARY KEY,
			player INTEGER NOT NULL,
			name TEXT NOT NULL,
			account TEXT NOT NULL,
			remote TEXT,
			joined_at TEXT NOT NULL,
			left_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_account ON sessions(account, joined_at);`,
		`CREATE TABLE IF NOT EXISTS chat (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			at TEXT NOT NULL,
			player INTEGER,
			name TEXT,
			text TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS audits (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			sub INTEGER NOT NULL,
			at TEXT NOT NULL,
			actor INTEGER NOT NULL,
			name TEXT,
			action TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			from_block INTEGER NOT NULL,
			to_block INTEGER NOT NULL,
			reason TEXT,
			PRIMARY KEY (run_id, seq, sub)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_actor ON audits(actor, at);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_pos ON audits(x, z, y, at);`,
		`CREATE TABLE IF NOT EXISTS saves (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			at TEXT NOT NULL,
			kind TEXT NOT NULL,
			path TEXT NOT NULL,
			digest TEXT NOT NULL,
			size_x INTEGER NOT NULL,
			size_y INTEGER NOT NULL,
			size_z INTEGER NOT NULL,
			err TEXT,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS backups (
			path TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			source_seq INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains queued rows, commits, and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// DB exposes the handle for read-only queries.
func (s *SQLiteIndex) DB() *sql.DB { return s.db }

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:      len(s.ch),
		QueueCapacity:   cap(s.ch),
		DropEventTotal:  s.dropEvent.Load(),
		DropAuditTotal:  s.dropAudit.Load(),
		DropBackupTotal: s.dropBackup.Load(),
	}
}

func (s *SQLiteIndex) WriteEvent(entry world.EventLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEvent, event: entry}:
	default:
		s.dropEvent.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry world.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		s.dropAudit.Add(1)
	}
	return nil
}

// RecordBackup notes a level backup taken after the save with journal seq sourceSeq.
func (s *SQLiteIndex) RecordBackup(path, digest string, sourceSeq uint64) {
	if s == nil || s.closed.Load() || path == "" {
		return
	}
	r := backupRow{
		Path:       path,
		Digest:     digest,
		SourceSeq:  sourceSeq,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqBackup, backup: r}:
	default:
		s.dropBackup.Add(1)
	}
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
