package world

import "time"

// Event kinds written to the journal.
const (
	EventJoin     = "JOIN"
	EventLeave    = "LEAVE"
	EventChat     = "CHAT"
	EventSystem   = "SYSTEM"
	EventSetBlock = "SET_BLOCK"
	EventLoad     = "LOAD"
	EventSave     = "SAVE"
)

// EventLogger receives every applied command in order.
type EventLogger interface {
	WriteEvent(entry EventLogEntry) error
}

// AuditLogger receives every block edit attempt, accepted or rejected.
type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// SaveHook runs on the world goroutine after a successful save.
type SaveHook interface {
	LevelSaved(info SaveInfo) error
}

type EventLogEntry struct {
	Seq  uint64    `json:"seq"`
	At   time.Time `json:"at"`
	Kind string    `json:"kind"`

	Player  uint32 `json:"player,omitempty"`
	Name    string `json:"name,omitempty"`
	Session string `json:"session,omitempty"`
	Account string `json:"account,omitempty"`
	Remote  string `json:"remote,omitempty"`

	Text  string  `json:"text,omitempty"`
	Pos   *[3]int `json:"pos,omitempty"`
	Block byte    `json:"block,omitempty"`

	// LOAD and SAVE.
	Path   string  `json:"path,omitempty"`
	Digest string  `json:"digest,omitempty"`
	Size   *[3]int `json:"size,omitempty"`
	Err    string  `json:"err,omitempty"`
}

type AuditEntry struct {
	Seq    uint64    `json:"seq"`
	At     time.Time `json:"at"`
	Actor  uint32    `json:"actor"`
	Name   string    `json:"name,omitempty"`
	Action string    `json:"action"`
	Pos    [3]int    `json:"pos"`
	From   byte      `json:"from"`
	To     byte      `json:"to"`
	Reason string    `json:"reason,omitempty"`
}

type SaveInfo struct {
	Seq    uint64
	At     time.Time
	Path   string
	Digest string
	Size   [3]int
}
