package world

import (
	"crypto/md5"
	"io"
	"time"

	"github.com/google/uuid"
)

// Player is a connected client as seen by the world. Positions are in the
// protocol's fixed-point units (32 per block).
type Player struct {
	ID         uint32
	Name       string
	RemoteAddr string
	Session    uuid.UUID
	Account    uuid.UUID
	JoinedAt   time.Time

	X, Y, Z    uint16
	Yaw, Pitch uint8

	wire uint8
	sink io.Writer
}

// WireID is the u8 id other clients know this player by. It is unique among
// connected players and never 255, which means "self".
func (p *Player) WireID() uint8 { return p.wire }

func (p *Player) send(b []byte) error {
	_, err := p.sink.Write(b)
	return err
}

// OfflineAccountID derives the stable offline-mode account uuid for a name.
func OfflineAccountID(name string) uuid.UUID {
	hash := md5.Sum([]byte("OfflinePlayer:" + name))
	hash[6] = (hash[6] & 0x0f) | 0x30 // version 3
	hash[8] = (hash[8] & 0x3f) | 0x80 // variant 10
	return uuid.UUID(hash)
}
