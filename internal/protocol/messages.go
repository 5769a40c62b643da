package protocol

import "fmt"

// Version is the protocol version announced in ServerIdentification.
const Version = 7

// SelfID addresses the receiving client in player-scoped messages.
const SelfID = 255

// Serverbound opcodes (client -> server).
const (
	OpIdentification      = 0x00
	OpPlayerSetBlock      = 0x05
	OpPositionOrientation = 0x08
	OpChatMessage         = 0x0d
)

// Clientbound opcodes (server -> client).
const (
	OpServerIdentification = 0x00
	OpLevelInitialize      = 0x02
	OpLevelDataChunk       = 0x03
	OpLevelFinalize        = 0x04
	OpSetBlock             = 0x06
	OpSpawnPlayer          = 0x07
	OpTeleportPlayer       = 0x08
	OpDespawnPlayer        = 0x0c
	OpMessage              = 0x0d
)

// Packet is any typed protocol message.
type Packet interface {
	Opcode() byte
	encodeBody(w *Writer)
	decodeBody(r *Reader) error
}

// Direction selects which opcode table applies to a byte stream.
type Direction int

const (
	Serverbound Direction = iota + 1
	Clientbound
)

func (d Direction) String() string {
	switch d {
	case Serverbound:
		return "serverbound"
	case Clientbound:
		return "clientbound"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

type messageSpec struct {
	bodyLen int
	// minLen is the shortest body a one-shot Decode accepts.
	minLen int
	// padded messages may be followed by one unused byte on the stream.
	padded bool
	make   func() Packet
}

var serverboundSpecs = map[byte]messageSpec{
	OpIdentification:      {bodyLen: 129, minLen: 129, padded: true, make: func() Packet { return &Identification{} }},
	OpPlayerSetBlock:      {bodyLen: 8, minLen: 8, make: func() Packet { return &PlayerSetBlock{} }},
	OpPositionOrientation: {bodyLen: 9, minLen: 9, make: func() Packet { return &PositionOrientation{} }},
	OpChatMessage:         {bodyLen: 65, minLen: 65, make: func() Packet { return &ChatMessage{} }},
}

var clientboundSpecs = map[byte]messageSpec{
	OpServerIdentification: {bodyLen: 130, minLen: 130, make: func() Packet { return &ServerIdentification{} }},
	OpLevelInitialize:      {bodyLen: 0, minLen: 0, make: func() Packet { return &LevelInitialize{} }},
	OpLevelDataChunk:       {bodyLen: 1027, minLen: 1027, make: func() Packet { return &LevelDataChunk{} }},
	OpLevelFinalize:        {bodyLen: 6, minLen: 6, make: func() Packet { return &LevelFinalize{} }},
	OpSetBlock:             {bodyLen: 7, minLen: 7, make: func() Packet { return &SetBlock{} }},
	OpSpawnPlayer:          {bodyLen: 73, minLen: 73, make: func() Packet { return &SpawnPlayer{} }},
	OpTeleportPlayer:       {bodyLen: 9, minLen: 9, make: func() Packet { return &TeleportPlayer{} }},
	OpDespawnPlayer:        {bodyLen: 1, minLen: 1, make: func() Packet { return &DespawnPlayer{} }},
	OpMessage:              {bodyLen: 65, minLen: 65, make: func() Packet { return &Message{} }},
}

func specsFor(d Direction) map[byte]messageSpec {
	if d == Clientbound {
		return clientboundSpecs
	}
	return serverboundSpecs
}

// Encode serializes m including its opcode.
func Encode(m Packet) []byte {
	w := NewWriter(64)
	w.WriteU8(m.Opcode())
	m.encodeBody(w)
	return w.Bytes()
}

// Decode parses a single message from the start of b. Trailing bytes are ignored.
// Unrecognized opcodes return ErrUnknownOpcode.
func Decode(d Direction, b []byte) (Packet, error) {
	r := NewReader(b)
	op, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	spec, ok := specsFor(d)[op]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02x (%s)", ErrUnknownOpcode, op, d)
	}
	if r.Remaining() < spec.minLen {
		return nil, fmt.Errorf("%w: opcode 0x%02x needs %d body bytes, have %d", ErrShortBuffer, op, spec.minLen, r.Remaining())
	}
	m := spec.make()
	if err := m.decodeBody(r); err != nil {
		return nil, fmt.Errorf("opcode 0x%02x: %w", op, err)
	}
	return m, nil
}

// ---- serverbound ----

type Identification struct {
	ProtocolVersion uint8
	Username        string
	Key             string
	// Unused is the trailing byte many clients append. It is not part of the
	// 129-byte body: Encode writes it only when non-zero, Decode reads it
	// when present and the stream Decoder skips it.
	Unused uint8
}

func (*Identification) Opcode() byte { return OpIdentification }

func (m *Identification) encodeBody(w *Writer) {
	w.WriteU8(m.ProtocolVersion)
	w.WriteString(m.Username)
	w.WriteString(m.Key)
	if m.Unused != 0 {
		w.WriteU8(m.Unused)
	}
}

func (m *Identification) decodeBody(r *Reader) (err error) {
	if m.ProtocolVersion, err = r.ReadU8(); err != nil {
		return err
	}
	if m.Username, err = r.ReadString(); err != nil {
		return err
	}
	if m.Key, err = r.ReadString(); err != nil {
		return err
	}
	m.Username = TrimPadding(m.Username)
	m.Key = TrimPadding(m.Key)
	if r.Remaining() > 0 {
		m.Unused, _ = r.ReadU8()
	}
	return nil
}

// PlayerSetBlock is a client's request to place (Mode != 0) or break (Mode == 0) a block.
type PlayerSetBlock struct {
	X, Y, Z uint16
	Mode    uint8
	BlockID uint8
}

func (*PlayerSetBlock) Opcode() byte { return OpPlayerSetBlock }

func (m *PlayerSetBlock) encodeBody(w *Writer) {
	w.WriteU16(m.X)
	w.WriteU16(m.Y)
	w.WriteU16(m.Z)
	w.WriteU8(m.Mode)
	w.WriteU8(m.BlockID)
}

func (m *PlayerSetBlock) decodeBody(r *Reader) (err error) {
	if m.X, err = r.ReadU16(); err != nil {
		return err
	}
	if m.Y, err = r.ReadU16(); err != nil {
		return err
	}
	if m.Z, err = r.ReadU16(); err != nil {
		return err
	}
	if m.Mode, err = r.ReadU8(); err != nil {
		return err
	}
	m.BlockID, err = r.ReadU8()
	return err
}

type PositionOrientation struct {
	PlayerID   uint8 // always SelfID from real clients
	X, Y, Z    uint16
	Yaw, Pitch uint8
}

func (*PositionOrientation) Opcode() byte { return OpPositionOrientation }

func (m *PositionOrientation) encodeBody(w *Writer) {
	writePlacement(w, m.PlayerID, m.X, m.Y, m.Z, m.Yaw, m.Pitch)
}

func (m *PositionOrientation) decodeBody(r *Reader) error {
	return readPlacement(r, &m.PlayerID, &m.X, &m.Y, &m.Z, &m.Yaw, &m.Pitch)
}

type ChatMessage struct {
	Unused uint8
	Text   string
}

func (*ChatMessage) Opcode() byte { return OpChatMessage }

func (m *ChatMessage) encodeBody(w *Writer) {
	w.WriteU8(m.Unused)
	w.WriteString(m.Text)
}

func (m *ChatMessage) decodeBody(r *Reader) (err error) {
	if m.Unused, err = r.ReadU8(); err != nil {
		return err
	}
	if m.Text, err = r.ReadString(); err != nil {
		return err
	}
	m.Text = TrimPadding(m.Text)
	return nil
}

// ---- clientbound ----

type ServerIdentification struct {
	ProtocolVersion uint8
	Name            string
	MOTD            string
	UserType        uint8
}

func (*ServerIdentification) Opcode() byte { return OpServerIdentification }

func (m *ServerIdentification) encodeBody(w *Writer) {
	w.WriteU8(m.ProtocolVersion)
	w.WriteString(m.Name)
	w.WriteString(m.MOTD)
	w.WriteU8(m.UserType)
}

func (m *ServerIdentification) decodeBody(r *Reader) (err error) {
	if m.ProtocolVersion, err = r.ReadU8(); err != nil {
		return err
	}
	if m.Name, err = r.ReadString(); err != nil {
		return err
	}
	if m.MOTD, err = r.ReadString(); err != nil {
		return err
	}
	m.Name = TrimPadding(m.Name)
	m.MOTD = TrimPadding(m.MOTD)
	m.UserType, err = r.ReadU8()
	return err
}

type LevelInitialize struct{}

func (*LevelInitialize) Opcode() byte             { return OpLevelInitialize }
func (*LevelInitialize) encodeBody(*Writer)       {}
func (*LevelInitialize) decodeBody(*Reader) error { return nil }

// LevelDataChunk carries up to 1024 bytes of the compressed level. Data holds
// only the Length meaningful bytes; the wire form is always padded to 1024.
type LevelDataChunk struct {
	Length  uint16
	Data    []byte
	Percent uint8
}

func (*LevelDataChunk) Opcode() byte { return OpLevelDataChunk }

func (m *LevelDataChunk) encodeBody(w *Writer) {
	w.WriteU16(m.Length)
	w.WriteBlock(m.Data)
	w.WriteU8(m.Percent)
}

func (m *LevelDataChunk) decodeBody(r *Reader) (err error) {
	if m.Length, err = r.ReadU16(); err != nil {
		return err
	}
	block, err := r.ReadBlock()
	if err != nil {
		return err
	}
	if int(m.Length) > BlockLen {
		return fmt.Errorf("level chunk length %d exceeds %d", m.Length, BlockLen)
	}
	m.Data = block[:m.Length]
	m.Percent, err = r.ReadU8()
	return err
}

type LevelFinalize struct {
	SizeX, SizeY, SizeZ uint16
}

func (*LevelFinalize) Opcode() byte { return OpLevelFinalize }

func (m *LevelFinalize) encodeBody(w *Writer) {
	w.WriteU16(m.SizeX)
	w.WriteU16(m.SizeY)
	w.WriteU16(m.SizeZ)
}

func (m *LevelFinalize) decodeBody(r *Reader) (err error) {
	if m.SizeX, err = r.ReadU16(); err != nil {
		return err
	}
	if m.SizeY, err = r.ReadU16(); err != nil {
		return err
	}
	m.SizeZ, err = r.ReadU16()
	return err
}

type SetBlock struct {
	X, Y, Z uint16
	BlockID uint8
}

func (*SetBlock) Opcode() byte { return OpSetBlock }

func (m *SetBlock) encodeBody(w *Writer) {
	w.WriteU16(m.X)
	w.WriteU16(m.Y)
	w.WriteU16(m.Z)
	w.WriteU8(m.BlockID)
}

func (m *SetBlock) decodeBody(r *Reader) (err error) {
	if m.X, err = r.ReadU16(); err != nil {
		return err
	}
	if m.Y, err = r.ReadU16(); err != nil {
		return err
	}
	if m.Z, err = r.ReadU16(); err != nil {
		return err
	}
	m.BlockID, err = r.ReadU8()
	return err
}

type SpawnPlayer struct {
	PlayerID   uint8
	Name       string
	X, Y, Z    uint16
	Yaw, Pitch uint8
}

func (*SpawnPlayer) Opcode() byte { return OpSpawnPlayer }

func (m *SpawnPlayer) encodeBody(w *Writer) {
	w.WriteU8(m.PlayerID)
	w.WriteString(m.Name)
	w.WriteU16(m.X)
	w.WriteU16(m.Y)
	w.WriteU16(m.Z)
	w.WriteU8(m.Yaw)
	w.WriteU8(m.Pitch)
}

func (m *SpawnPlayer) decodeBody(r *Reader) (err error) {
	if m.PlayerID, err = r.ReadU8(); err != nil {
		return err
	}
	if m.Name, err = r.ReadString(); err != nil {
		return err
	}
	m.Name = TrimPadding(m.Name)
	return readPlacementTail(r, &m.X, &m.Y, &m.Z, &m.Yaw, &m.Pitch)
}

type TeleportPlayer struct {
	PlayerID   uint8
	X, Y, Z    uint16
	Yaw, Pitch uint8
}

func (*TeleportPlayer) Opcode() byte { return OpTeleportPlayer }

func (m *TeleportPlayer) encodeBody(w *Writer) {
	writePlacement(w, m.PlayerID, m.X, m.Y, m.Z, m.Yaw, m.Pitch)
}

func (m *TeleportPlayer) decodeBody(r *Reader) error {
	return readPlacement(r, &m.PlayerID, &m.X, &m.Y, &m.Z, &m.Yaw, &m.Pitch)
}

type DespawnPlayer struct {
	PlayerID uint8
}

func (*DespawnPlayer) Opcode() byte { return OpDespawnPlayer }

func (m *DespawnPlayer) encodeBody(w *Writer) { w.WriteU8(m.PlayerID) }

func (m *DespawnPlayer) decodeBody(r *Reader) (err error) {
	m.PlayerID, err = r.ReadU8()
	return err
}

// Message is a chat line shown to the client.
type Message struct {
	Unused uint8
	Text   string
}

func (*Message) Opcode() byte { return OpMessage }

func (m *Message) encodeBody(w *Writer) {
	w.WriteU8(m.Unused)
	w.WriteString(m.Text)
}

func (m *Message) decodeBody(r *Reader) (err error) {
	if m.Unused, err = r.ReadU8(); err != nil {
		return err
	}
	if m.Text, err = r.ReadString(); err != nil {
		return err
	}
	m.Text = TrimPadding(m.Text)
	return nil
}

func writePlacement(w *Writer, id uint8, x, y, z uint16, yaw, pitch uint8) {
	w.WriteU8(id)
	w.WriteU16(x)
	w.WriteU16(y)
	w.WriteU16(z)
	w.WriteU8(yaw)
	w.WriteU8(pitch)
}

func readPlacement(r *Reader, id *uint8, x, y, z *uint16, yaw, pitch *uint8) (err error) {
	if *id, err = r.ReadU8(); err != nil {
		return err
	}
	return readPlacementTail(r, x, y, z, yaw, pitch)
}

func readPlacementTail(r *Reader, x, y, z *uint16, yaw, pitch *uint8) (err error) {
	if *x, err = r.ReadU16(); err != nil {
		return err
	}
	if *y, err = r.ReadU16(); err != nil {
		return err
	}
	if *z, err = r.ReadU16(); err != nil {
		return err
	}
	if *yaw, err = r.ReadU8(); err != nil {
		return err
	}
	*pitch, err = r.ReadU8()
	return err
}
