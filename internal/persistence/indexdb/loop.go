package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"classicraft.net/internal/sim/world"
)

func (s *SQLiteIndex) loop() {
	ctx := context.Background()
	// Journal seqs restart with every process, so rows are keyed by run.
	runID := uuid.NewString()

	// Prepared statements (on db; executed within tx).
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(run_id,seq,at,kind,player,raw_json) VALUES(?,?,?,?,?,?)`)
	insertJoin, _ := s.db.Prepare(`INSERT OR REPLACE INTO sessions(session,player,name,account,remote,joined_at) VALUES(?,?,?,?,?,?)`)
	updateLeave, _ := s.db.Prepare(`UPDATE sessions SET left_at=? WHERE session=?`)
	insertChat, _ := s.db.Prepare(`INSERT OR REPLACE INTO chat(run_id,seq,at,player,name,text) VALUES(?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(run_id,seq,sub,at,actor,name,action,x,y,z,from_block,to_block,reason) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertSave, _ := s.db.Prepare(`INSERT OR REPLACE INTO saves(run_id,seq,at,kind,path,digest,size_x,size_y,size_z,err) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertBackup, _ := s.db.Prepare(`INSERT OR REPLACE INTO backups(path,digest,source_seq,recorded_at) VALUES(?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertEvent, insertJoin, updateLeave, insertChat, insertAudit, insertSave, insertBackup} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 1000
		commitMaxWait = 2 * time.Second
		lastAuditSeq  uint64
		auditSub      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}

		switch r.kind {
		case reqEvent:
			e := r.event
			at := formatTime(e.At)
			raw, _ := json.Marshal(e)
			var player any
			if e.Player != 0 {
				player = int64(e.Player)
			}
			if !exec(insertEvent, runID, int64(e.Seq), at, e.Kind, player, string(raw)) {
				continue
			}
			switch e.Kind {
			case world.EventJoin:
				exec(insertJoin, e.Session, int64(e.Player), e.Name, e.Account, nullString(e.Remote), at)
			case world.EventLeave:
				exec(updateLeave, at, e.Session)
			case world.EventChat, world.EventSystem:
				exec(insertChat, runID, int64(e.Seq), at, player, nullString(e.Name), e.Text)
			case world.EventLoad, world.EventSave:
				var size [3]int
				if e.Size != nil {
					size = *e.Size
				}
				exec(insertSave, runID, int64(e.Seq), at, e.Kind, e.Path, e.Digest, size[0], size[1], size[2], nullString(e.Err))
			}

		case reqAudit:
			a := r.audit
			if a.Seq != lastAuditSeq {
				lastAuditSeq = a.Seq
				auditSub = 0
			}
			auditSub++
			exec(insertAudit,
				runID,
				int64(a.Seq),
				auditSub,
				formatTime(a.At),
				int64(a.Actor),
				nullString(a.Name),
				a.Action,
				a.Pos[0], a.Pos[1], a.Pos[2],
				int(a.From),
				int(a.To),
				nullString(a.Reason),
			)

		case reqBackup:
			b := r.backup
			exec(insertBackup, b.Path, b.Digest, int64(b.SourceSeq), b.RecordedAt)
		}
		flushIfNeeded()
	}

	commit()
}
