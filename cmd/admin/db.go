package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	configPath := fs.String("config", "./configs/server.yaml", "server config path")
	dataDir := fs.String("data", "", "runtime data directory (overrides config)")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index.db)")
	limit := fs.Int("limit", 20, "result limit")
	player := fs.Int64("player", 0, "player id filter (audits, chat)")
	_ = fs.Parse(args)

	q := "sessions"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = loadConfig(*configPath, *dataDir).IndexPath()
	}
	if _, err := os.Stat(path); err != nil {
		fatal("open:", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fatal("open:", err)
	}
	defer db.Close()

	switch q {
	case "sessions":
		rows, err := db.Query(`SELECT session,player,name,account,COALESCE(remote,''),joined_at,COALESCE(left_at,'') FROM sessions ORDER BY joined_at DESC LIMIT ?`, *limit)
		if err != nil {
			fatal("query:", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Session  string `json:"session"`
				Player   int64  `json:"player"`
				Name     string `json:"name"`
				Account  string `json:"account"`
				Remote   string `json:"remote,omitempty"`
				JoinedAt string `json:"joined_at"`
				LeftAt   string `json:"left_at,omitempty"`
			}
			if err := rows.Scan(&r.Session, &r.Player, &r.Name, &r.Account, &r.Remote, &r.JoinedAt, &r.LeftAt); err != nil {
				fatal("scan:", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fatal("rows:", err)
		}

	case "chat":
		query := `SELECT seq,at,COALESCE(player,0),COALESCE(name,''),text FROM chat ORDER BY at DESC LIMIT ?`
		qargs := []any{*limit}
		if *player != 0 {
			query = `SELECT seq,at,COALESCE(player,0),COALESCE(name,''),text FROM chat WHERE player=? ORDER BY at DESC LIMIT ?`
			qargs = []any{*player, *limit}
		}
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fatal("query:", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq    int64  `json:"seq"`
				At     string `json:"at"`
				Player int64  `json:"player,omitempty"`
				Name   string `json:"name,omitempty"`
				Text   string `json:"text"`
			}
			if err := rows.Scan(&r.Seq, &r.At, &r.Player, &r.Name, &r.Text); err != nil {
				fatal("scan:", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fatal("rows:", err)
		}

	case "audits":
		query := `SELECT seq,at,actor,COALESCE(name,''),action,x,y,z,from_block,to_block,COALESCE(reason,'') FROM audits ORDER BY at DESC, sub DESC LIMIT ?`
		qargs := []any{*limit}
		if *player != 0 {
			query = `SELECT seq,at,actor,COALESCE(name,''),action,x,y,z,from_block,to_block,COALESCE(reason,'') FROM audits WHERE actor=? ORDER BY at DESC, sub DESC LIMIT ?`
			qargs = []any{*player, *limit}
		}
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fatal("query:", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq    int64  `json:"seq"`
				At     string `json:"at"`
				Actor  int64  `json:"actor"`
				Name   string `json:"name,omitempty"`
				Action string `json:"action"`
				Pos    [3]int `json:"pos"`
				From   int    `json:"from"`
				To     int    `json:"to"`
				Reason string `json:"reason,omitempty"`
			}
			if err := rows.Scan(&r.Seq, &r.At, &r.Actor, &r.Name, &r.Action, &r.Pos[0], &r.Pos[1], &r.Pos[2], &r.From, &r.To, &r.Reason); err != nil {
				fatal("scan:", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fatal("rows:", err)
		}

	case "saves":
		rows, err := db.Query(`SELECT seq,at,kind,path,digest,size_x,size_y,size_z,COALESCE(err,'') FROM saves ORDER BY at DESC LIMIT ?`, *limit)
		if err != nil {
			fatal("query:", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq    int64  `json:"seq"`
				At     string `json:"at"`
				Kind   string `json:"kind"`
				Path   string `json:"path"`
				Digest string `json:"digest"`
				Size   [3]int `json:"size"`
				Err    string `json:"err,omitempty"`
			}
			if err := rows.Scan(&r.Seq, &r.At, &r.Kind, &r.Path, &r.Digest, &r.Size[0], &r.Size[1], &r.Size[2], &r.Err); err != nil {
				fatal("scan:", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fatal("rows:", err)
		}

	case "backups":
		rows, err := db.Query(`SELECT path,digest,source_seq,recorded_at FROM backups ORDER BY recorded_at DESC LIMIT ?`, *limit)
		if err != nil {
			fatal("query:", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Path       string `json:"path"`
				Digest     string `json:"digest"`
				SourceSeq  int64  `json:"source_seq"`
				RecordedAt string `json:"recorded_at"`
			}
			if err := rows.Scan(&r.Path, &r.Digest, &r.SourceSeq, &r.RecordedAt); err != nil {
				fatal("scan:", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fatal("rows:", err)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-limit N] [-player ID] sessions|chat|audits|saves|backups")
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
