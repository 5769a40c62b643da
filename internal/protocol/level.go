package protocol

import (
	"bytes"
	"errors"
	"fmt"
)

// SplitLevel cuts a compressed level payload into LevelDataChunk messages of
// at most BlockLen bytes each. Percent is the share of payload bytes sent once
// the chunk has been delivered.
func SplitLevel(payload []byte) []*LevelDataChunk {
	total := len(payload)
	out := make([]*LevelDataChunk, 0, (total+BlockLen-1)/BlockLen)
	for off := 0; off < total; off += BlockLen {
		end := off + BlockLen
		if end > total {
			end = total
		}
		out = append(out, &LevelDataChunk{
			Length:  uint16(end - off),
			Data:    payload[off:end],
			Percent: uint8(end * 100 / total),
		})
	}
	return out
}

// LevelSequence is the full level transfer in send order: LevelInitialize,
// the data chunks, then LevelFinalize with the grid dimensions.
func LevelSequence(payload []byte, sizeX, sizeY, sizeZ uint16) []Packet {
	chunks := SplitLevel(payload)
	seq := make([]Packet, 0, len(chunks)+2)
	seq = append(seq, &LevelInitialize{})
	for _, c := range chunks {
		seq = append(seq, c)
	}
	seq = append(seq, &LevelFinalize{SizeX: sizeX, SizeY: sizeY, SizeZ: sizeZ})
	return seq
}

var ErrLevelSequence = errors.New("protocol: level transfer out of order")

// LevelAssembler rebuilds a compressed level payload from a received level
// transfer. Feed it every clientbound message; non-level messages are ignored.
type LevelAssembler struct {
	buf      bytes.Buffer
	started  bool
	done     bool
	finalize LevelFinalize
	percent  uint8
}

// Feed consumes one message and reports whether the transfer is complete.
func (a *LevelAssembler) Feed(p Packet) (bool, error) {
	switch m := p.(type) {
	case *LevelInitialize:
		a.buf.Reset()
		a.started = true
		a.done = false
		a.percent = 0
	case *LevelDataChunk:
		if !a.started || a.done {
			return false, fmt.Errorf("%w: data chunk outside transfer", ErrLevelSequence)
		}
		a.buf.Write(m.Data)
		a.percent = m.Percent
	case *LevelFinalize:
		if !a.started || a.done {
			return false, fmt.Errorf("%w: finalize outside transfer", ErrLevelSequence)
		}
		a.finalize = *m
		a.done = true
	}
	return a.done, nil
}

func (a *LevelAssembler) Done() bool { return a.done }

// Percent is the progress reported by the last chunk.
func (a *LevelAssembler) Percent() uint8 { return a.percent }

// Payload returns the assembled compressed bytes.
func (a *LevelAssembler) Payload() []byte { return a.buf.Bytes() }

// Size returns the dimensions announced by LevelFinalize.
func (a *LevelAssembler) Size() (x, y, z uint16) {
	return a.finalize.SizeX, a.finalize.SizeY, a.finalize.SizeZ
}
