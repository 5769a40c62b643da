package world

import "io"

// Command is one mutating event for the world loop. Every change to world
// state arrives as a Command through the bus.
type Command interface {
	command()
}

// AddPlayer registers a connection. Sink belongs to the world from here on.
type AddPlayer struct {
	ID         uint32
	Sink       io.Writer
	Name       string
	RemoteAddr string
}

// SetBlock places Value when Mode != 0 and breaks (writes air) otherwise.
// PlayerID is recorded for attribution only.
type SetBlock struct {
	PlayerID uint32
	X, Y, Z  int
	Value    byte
	Mode     byte
}

type MovePlayer struct {
	ID         uint32
	X, Y, Z    uint16
	Yaw, Pitch uint8
}

type RemovePlayer struct {
	ID uint32
}

type PlayerMessage struct {
	ID   uint32
	Text string
}

type SystemMessage struct {
	Text string
}

type Save struct{}

func (AddPlayer) command()     {}
func (SetBlock) command()      {}
func (MovePlayer) command()    {}
func (RemovePlayer) command()  {}
func (PlayerMessage) command() {}
func (SystemMessage) command() {}
func (Save) command()          {}
