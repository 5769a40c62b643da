package tcp

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"classicraft.net/internal/protocol"
	"classicraft.net/internal/sim/bus"
	"classicraft.net/internal/sim/world"
)

// Server accepts connections and runs one Handler per connection. Player ids
// start at 1 and are never reused within a process.
type Server struct {
	out          *bus.Producer[world.Command]
	log          *log.Logger
	writeTimeout time.Duration

	nextID atomic.Uint32

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

// NewServer takes ownership of out; Serve closes it once every handler is done.
func NewServer(out *bus.Producer[world.Command], writeTimeout time.Duration, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		out:          out,
		log:          logger,
		writeTimeout: writeTimeout,
		conns:        map[net.Conn]struct{}{},
	}
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.out.Close()
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts until ctx is done or the listener fails. On return the
// listener and all connections are closed, every handler has enqueued its
// RemovePlayer, and the server's producer is closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Printf("listening on %s", ln.Addr())
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = ln.Close()
		s.closeAll()
	}()

	var serveErr error
	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else if tempDelay *= 2; tempDelay > time.Second {
					tempDelay = time.Second
				}
				s.log.Printf("accept: %v; retrying in %v", err, tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			serveErr = err
			break
		}
		tempDelay = 0

		out := s.out.Clone()
		if out == nil || !s.track(conn) {
			_ = conn.Close()
			if out != nil {
				out.Close()
			}
			continue
		}
		id := s.nextID.Add(1)
		s.wg.Add(1)
		go s.handle(id, conn, out)
	}

	close(stop)
	s.wg.Wait()
	s.out.Close()
	return serveErr
}

func (s *Server) handle(id uint32, conn net.Conn, out *bus.Producer[world.Command]) {
	defer s.wg.Done()
	defer out.Close()
	defer s.untrack(conn)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	s.log.Printf("conn %d: accepted from %s", id, remote)
	sink := &connSink{conn: conn, timeout: s.writeTimeout}
	h := NewHandler(id, sink, remote, out, s.log)
	if err := h.Run(protocol.NewDecoder(conn, protocol.Serverbound)); err != nil {
		s.log.Printf("conn %d: closed: %v", id, err)
		return
	}
	s.log.Printf("conn %d: closed by peer", id)
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	for c := range s.conns {
		_ = c.Close()
	}
}

// ActiveConns is the number of open connections.
func (s *Server) ActiveConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
