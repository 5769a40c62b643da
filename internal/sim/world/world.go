package world

import (
	"context"
	"errors"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"classicraft.net/internal/persistence/level"
	"classicraft.net/internal/protocol"
	"classicraft.net/internal/sim/bus"
)

type Config struct {
	SizeX, SizeY, SizeZ int
	GroundBlock         byte

	// Spawn position in fixed-point units.
	SpawnX, SpawnY, SpawnZ uint16

	ServerName string
	MOTD       string

	// LevelPath is the level file. Empty disables load and save.
	LevelPath string
}

func DefaultConfig() Config {
	return Config{
		SizeX:       128,
		SizeY:       64,
		SizeZ:       128,
		GroundBlock: 2,
		SpawnX:      32,
		SpawnY:      32,
		SpawnZ:      32,
		ServerName:  "server name",
		MOTD:        "motd",
	}
}

// World is the authoritative single-writer simulation.
// All state must be accessed only from the goroutine running Run (or Apply).
type World struct {
	cfg    Config
	logger *log.Logger
	now    func() time.Time

	grid    *Grid
	players map[uint32]*Player
	wireIDs map[uint8]uint32
	seq     uint64

	// Optional hooks (may be nil). Implemented in internal/persistence/*.
	eventLogger EventLogger
	auditLogger AuditLogger
	saveHook    SaveHook
}

// New builds the default grid: air with a ground layer at y=0. Nothing is
// broadcast since there are no players yet.
func New(cfg Config, logger *log.Logger) *World {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	g := NewGrid(cfg.SizeX, cfg.SizeY, cfg.SizeZ)
	g.Fill(0, cfg.GroundBlock)
	return &World{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		grid:    g,
		players: map[uint32]*Player{},
		wireIDs: map[uint8]uint32{},
	}
}

func (w *World) SetEventLogger(l EventLogger) { w.eventLogger = l }
func (w *World) SetAuditLogger(l AuditLogger) { w.auditLogger = l }
func (w *World) SetSaveHook(h SaveHook)       { w.saveHook = h }

// Grid returns the live grid. Only safe from the world goroutine or after Run returns.
func (w *World) Grid() *Grid { return w.grid }

// PlayerCount is the number of registered players. Same caveat as Grid.
func (w *World) PlayerCount() int { return len(w.players) }

// Run loads the level file, then applies commands until the bus is closed
// (returns bus.ErrClosed) or ctx is done.
func (w *World) Run(ctx context.Context, q *bus.Queue[Command]) error {
	w.Load()
	for {
		cmd, err := q.Recv(ctx)
		if err != nil {
			if errors.Is(err, bus.ErrClosed) {
				w.logger.Printf("command bus closed after seq=%d; world loop exiting", w.seq)
			}
			return err
		}
		w.Apply(cmd)
	}
}

// Load replaces the grid with the level file. Failure is logged and the
// current grid is kept.
func (w *World) Load() {
	if w.cfg.LevelPath == "" {
		return
	}
	e := EventLogEntry{Kind: EventLoad, Path: w.cfg.LevelPath}
	voxels, err := level.Load(w.cfg.LevelPath, w.grid.Volume())
	if err == nil {
		err = w.grid.Replace(voxels)
	}
	if err != nil {
		w.logger.Printf("load %s: %v (keeping fresh grid)", w.cfg.LevelPath, err)
		e.Err = err.Error()
	} else {
		w.logger.Printf("loaded %s (%d voxels)", w.cfg.LevelPath, len(voxels))
	}
	e.Digest = w.grid.Digest()
	e.Size = w.sizeRef()
	w.journal(e)
}

// Apply executes one command.
func (w *World) Apply(cmd Command) {
	switch c := cmd.(type) {
	case AddPlayer:
		w.addPlayer(c)
	case SetBlock:
		w.setBlock(c)
	case MovePlayer:
		w.movePlayer(c)
	case RemovePlayer:
		w.removePlayer(c.ID)
	case PlayerMessage:
		w.playerMessage(c)
	case SystemMessage:
		w.journal(EventLogEntry{Kind: EventSystem, Text: c.Text})
		w.broadcastChat(c.Text)
	case Save:
		w.save()
	default:
		w.logger.Printf("unknown command %T", cmd)
	}
}

func (w *World) addPlayer(c AddPlayer) {
	if _, ok := w.players[c.ID]; ok {
		w.logger.Printf("player %d already registered; ignoring repeated identification", c.ID)
		return
	}
	wire, ok := w.freeWireID(c.ID)
	if !ok {
		w.logger.Printf("player %d (%s) refused: all %d wire ids in use", c.ID, c.RemoteAddr, len(w.wireIDs))
		if _, err := c.Sink.Write(protocol.Encode(&protocol.Message{Text: "Server is full."})); err != nil {
			w.logger.Printf("send to player %d: %v", c.ID, err)
		}
		return
	}
	name := strings.TrimSpace(c.Name)
	p := &Player{
		ID:         c.ID,
		Name:       name,
		RemoteAddr: c.RemoteAddr,
		Session:    uuid.New(),
		Account:    OfflineAccountID(name),
		JoinedAt:   w.now(),
		X:          w.cfg.SpawnX,
		Y:          w.cfg.SpawnY,
		Z:          w.cfg.SpawnZ,
		wire:       wire,
		sink:       c.Sink,
	}

	w.sendLevel(p)
	for _, other := range w.sortedPlayers() {
		w.sendTo(p, protocol.Encode(spawnPacket(other)))
	}
	w.players[p.ID] = p
	w.wireIDs[p.wire] = p.ID
	w.broadcast(protocol.Encode(spawnPacket(p)))
	w.sendTo(p, protocol.Encode(&protocol.TeleportPlayer{
		PlayerID: protocol.SelfID,
		X:        p.X, Y: p.Y, Z: p.Z,
		Yaw: p.Yaw, Pitch: p.Pitch,
	}))

	w.journal(EventLogEntry{
		Kind:    EventJoin,
		Player:  p.ID,
		Name:    p.Name,
		Session: p.Session.String(),
		Account: p.Account.String(),
		Remote:  p.RemoteAddr,
	})
	w.broadcastChat(name + " joined the game.")
}

// sendLevel sends ServerIdentification and the level transfer. It stops at
// the first failed write.
func (w *World) sendLevel(p *Player) {
	if !w.sendTo(p, protocol.Encode(&protocol.ServerIdentification{
		ProtocolVersion: protocol.Version,
		Name:            w.cfg.ServerName,
		MOTD:            w.cfg.MOTD,
	})) {
		return
	}
	payload, err := level.Encode(w.grid.Voxels())
	if err != nil {
		w.logger.Printf("encode level for player %d: %v", p.ID, err)
		return
	}
	sx, sy, sz := w.grid.Size()
	for _, m := range protocol.LevelSequence(payload, uint16(sx), uint16(sy), uint16(sz)) {
		if !w.sendTo(p, protocol.Encode(m)) {
			return
		}
	}
}

func (w *World) setBlock(c SetBlock) {
	value := c.Value
	if c.Mode == 0 {
		value = 0
	}
	audit := AuditEntry{
		Actor:  c.PlayerID,
		Action: EventSetBlock,
		Pos:    [3]int{c.X, c.Y, c.Z},
		From:   w.grid.Block(c.X, c.Y, c.Z),
		To:     value,
	}
	if p := w.players[c.PlayerID]; p != nil {
		audit.Name = p.Name
	}

	prev, err := w.grid.Set(c.X, c.Y, c.Z, value)
	if err != nil {
		w.logger.Printf("set block rejected (player %d): %v", c.PlayerID, err)
		audit.Reason = "OUT_OF_BOUNDS"
		w.audit(audit)
		return
	}
	pos := [3]int{c.X, c.Y, c.Z}
	w.journal(EventLogEntry{Kind: EventSetBlock, Player: c.PlayerID, Pos: &pos, Block: value})
	audit.From = prev
	w.audit(audit)
	w.broadcast(protocol.Encode(&protocol.SetBlock{
		X: uint16(c.X), Y: uint16(c.Y), Z: uint16(c.Z),
		BlockID: value,
	}))
}

func (w *World) movePlayer(c MovePlayer) {
	p := w.players[c.ID]
	if p == nil {
		return
	}
	p.X, p.Y, p.Z = c.X, c.Y, c.Z
	p.Yaw, p.Pitch = c.Yaw, c.Pitch
	w.broadcast(protocol.Encode(&protocol.TeleportPlayer{
		PlayerID: p.WireID(),
		X:        p.X, Y: p.Y, Z: p.Z,
		Yaw: p.Yaw, Pitch: p.Pitch,
	}))
}

// removePlayer is idempotent: unknown ids still get a despawn broadcast,
// addressed to a wire id no live player holds.
func (w *World) removePlayer(id uint32) {
	p := w.players[id]
	if p == nil {
		wire, ok := w.freeWireID(id)
		if !ok {
			w.logger.Printf("despawn for unknown player %d skipped: no free wire id", id)
			return
		}
		w.broadcast(protocol.Encode(&protocol.DespawnPlayer{PlayerID: wire}))
		return
	}
	w.broadcastChat(p.Name + " left the game.")
	delete(w.players, id)
	delete(w.wireIDs, p.wire)
	w.journal(EventLogEntry{
		Kind:    EventLeave,
		Player:  id,
		Name:    p.Name,
		Session: p.Session.String(),
	})
	w.broadcast(protocol.Encode(&protocol.DespawnPlayer{PlayerID: p.wire}))
}

// freeWireID picks the u8 id a player is known by on the wire: id%255 when
// that slot is free, else the lowest free slot. 255 is never handed out.
func (w *World) freeWireID(id uint32) (uint8, bool) {
	if pref := uint8(id % 255); !w.wireInUse(pref) {
		return pref, true
	}
	for i := 0; i < int(protocol.SelfID); i++ {
		if !w.wireInUse(uint8(i)) {
			return uint8(i), true
		}
	}
	return 0, false
}

func (w *World) wireInUse(wire uint8) bool {
	_, ok := w.wireIDs[wire]
	return ok
}

func (w *World) playerMessage(c PlayerMessage) {
	p := w.players[c.ID]
	if p == nil {
		return
	}
	w.journal(EventLogEntry{Kind: EventChat, Player: p.ID, Name: p.Name, Text: c.Text})
	w.broadcastChat(p.Name + ": " + c.Text)
}

func (w *World) save() {
	if w.cfg.LevelPath == "" {
		w.logger.Printf("save skipped: no level path configured")
		return
	}
	e := EventLogEntry{
		Kind:   EventSave,
		Path:   w.cfg.LevelPath,
		Digest: w.grid.Digest(),
		Size:   w.sizeRef(),
	}
	if err := level.Save(w.cfg.LevelPath, w.grid.Voxels()); err != nil {
		w.logger.Printf("save %s: %v", w.cfg.LevelPath, err)
		e.Err = err.Error()
		w.journal(e)
		return
	}
	w.logger.Printf("saved %s digest=%s", w.cfg.LevelPath, e.Digest[:12])
	e = w.journal(e)
	if w.saveHook != nil {
		err := w.saveHook.LevelSaved(SaveInfo{
			Seq:    e.Seq,
			At:     e.At,
			Path:   e.Path,
			Digest: e.Digest,
			Size:   *e.Size,
		})
		if err != nil {
			w.logger.Printf("after save: %v", err)
		}
	}
}

func (w *World) sizeRef() *[3]int {
	sx, sy, sz := w.grid.Size()
	return &[3]int{sx, sy, sz}
}

func (w *World) sortedPlayers() []*Player {
	out := make([]*Player, 0, len(w.players))
	for _, p := range w.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// journal stamps e with the next seq and the current time, writes it, and
// returns the stamped entry.
func (w *World) journal(e EventLogEntry) EventLogEntry {
	w.seq++
	e.Seq = w.seq
	e.At = w.now()
	if w.eventLogger != nil {
		if err := w.eventLogger.WriteEvent(e); err != nil {
			w.logger.Printf("journal seq=%d: %v", e.Seq, err)
		}
	}
	return e
}

func (w *World) audit(e AuditEntry) {
	if w.auditLogger == nil {
		return
	}
	e.Seq = w.seq
	e.At = w.now()
	if err := w.auditLogger.WriteAudit(e); err != nil {
		w.logger.Printf("audit seq=%d: %v", e.Seq, err)
	}
}

func spawnPacket(p *Player) *protocol.SpawnPlayer {
	return &protocol.SpawnPlayer{
		PlayerID: p.WireID(),
		Name:     p.Name,
		X:        p.X, Y: p.Y, Z: p.Z,
		Yaw: p.Yaw, Pitch: p.Pitch,
	}
}
