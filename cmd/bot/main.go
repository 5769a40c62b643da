package main

import (
	"errors"
	"flag"
	"log"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"time"

	"classicraft.net/internal/persistence/level"
	"classicraft.net/internal/protocol"
)

func main() {
	var (
		addr  = flag.String("addr", "127.0.0.1:25565", "server tcp address")
		name  = flag.String("name", "bot", "player name")
		every = flag.Duration("every", 2*time.Second, "action interval after the level arrives")
		block = flag.Int("block", 1, "block id to place")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := send(conn, &protocol.Identification{ProtocolVersion: protocol.Version, Username: *name}); err != nil {
		logger.Fatalf("send identification: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	b := &bot{conn: conn, logger: logger, block: byte(*block), rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	dec := protocol.NewDecoder(conn, protocol.Clientbound)
	var asm protocol.LevelAssembler
	var ticker *time.Ticker
	for {
		m, err := dec.Next()
		if err != nil {
			var de *protocol.DecodeError
			if errors.As(err, &de) {
				logger.Printf("skip: %v", err)
				continue
			}
			logger.Printf("disconnected: %v", err)
			return
		}
		if !asm.Done() {
			done, err := asm.Feed(m)
			if err != nil {
				logger.Fatalf("level: %v", err)
			}
			if done {
				b.levelReady(&asm)
				ticker = time.NewTicker(*every)
				defer ticker.Stop()
				go b.act(ticker.C)
			}
		}
		b.handle(m)
	}
}

type bot struct {
	conn   net.Conn
	logger *log.Logger
	block  byte
	rng    *rand.Rand

	sx, sy, sz uint16
}

func (b *bot) levelReady(asm *protocol.LevelAssembler) {
	b.sx, b.sy, b.sz = asm.Size()
	voxels, err := level.Decode(asm.Payload())
	if err != nil {
		b.logger.Fatalf("decode level: %v", err)
	}
	solid := 0
	for _, v := range voxels {
		if v != 0 {
			solid++
		}
	}
	b.logger.Printf("level %dx%dx%d: %d voxels, %d solid", b.sx, b.sy, b.sz, len(voxels), solid)
}

func (b *bot) handle(m protocol.Packet) {
	switch v := m.(type) {
	case *protocol.ServerIdentification:
		b.logger.Printf("server %q motd=%q", v.Name, v.MOTD)
	case *protocol.SpawnPlayer:
		b.logger.Printf("spawn id=%d name=%s at %d,%d,%d", v.PlayerID, v.Name, v.X, v.Y, v.Z)
	case *protocol.DespawnPlayer:
		b.logger.Printf("despawn id=%d", v.PlayerID)
	case *protocol.SetBlock:
		b.logger.Printf("block %d,%d,%d = %d", v.X, v.Y, v.Z, v.BlockID)
	case *protocol.Message:
		b.logger.Printf("chat: %s", v.Text)
	}
}

// act cycles through chat, move and set-block until a write fails.
func (b *bot) act(tick <-chan time.Time) {
	if err := send(b.conn, &protocol.ChatMessage{Unused: protocol.SelfID, Text: "hello"}); err != nil {
		return
	}
	for i := 0; ; i++ {
		if _, ok := <-tick; !ok {
			return
		}
		x := uint16(b.rng.Intn(int(b.sx)))
		z := uint16(b.rng.Intn(int(b.sz)))
		var err error
		if i%2 == 0 {
			err = send(b.conn, &protocol.PositionOrientation{
				PlayerID: protocol.SelfID,
				X:        x*32 + 16, Y: 2*32 + 51, Z: z*32 + 16,
				Yaw: uint8(b.rng.Intn(256)),
			})
		} else {
			err = send(b.conn, &protocol.PlayerSetBlock{X: x, Y: 1, Z: z, Mode: 1, BlockID: b.block})
		}
		if err != nil {
			b.logger.Printf("send: %v", err)
			return
		}
	}
}

func send(conn net.Conn, m protocol.Packet) error {
	_, err := conn.Write(protocol.Encode(m))
	return err
}
