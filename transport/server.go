// Package transport is the connection-per-client I/O loop and notifier
// task: a raw line-delimited TCP listener handing batches of input lines
// to the dispatcher and forwarding its notifications back out, built
// directly over net/bufio. See DESIGN.md for its grounding.
package transport

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/ABMatrix/electrs/electrum"
	"github.com/ABMatrix/electrs/utils"
)

// maxLineSize bounds one JSON-RPC line; well above any realistic request
// or batch while still catching a runaway client.
const maxLineSize = 1 << 20

// Server listens for Electrum TCP connections, running one execution
// context per client plus a shared notifier goroutine that periodically
// calls UpdateClient for every connected client.
type Server struct {
	addr       string
	dispatcher *electrum.Dispatcher
	log        utils.SimpleLogger
	interval   time.Duration

	mu      sync.Mutex
	clients map[*session]struct{}
}

// New returns a Server that will dispatch through d and re-evaluate every
// connected client's subscriptions every interval.
func New(addr string, d *electrum.Dispatcher, log utils.SimpleLogger, interval time.Duration) *Server {
	return &Server{
		addr:       addr,
		dispatcher: d,
		log:        log,
		interval:   interval,
		clients:    make(map[*session]struct{}),
	}
}

// session pairs a net.Conn with its Electrum client state and the mutex
// enforcing a per-client exclusivity rule: at most one of the read loop
// (dispatcher) or the notifier may touch the client at a time.
type session struct {
	conn   net.Conn
	client *electrum.Client
	mu     sync.Mutex
	writeMu sync.Mutex
}

// Run listens on s.addr until ctx is cancelled, accepting connections and
// starting the shared notifier loop. It blocks until the listener closes.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	go s.notifyLoop(ctx)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				if s.log != nil {
					s.log.Warnw("accept failed", "error", err)
				}
				continue
			}
		}
		sess := &session{conn: conn, client: electrum.NewClient()}
		s.addSession(sess)
		go s.serve(ctx, sess)
	}
}

func (s *Server) addSession(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[sess] = struct{}{}
}

func (s *Server) removeSession(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, sess)
}

// serve is one client's execution context: every inbound line is handed
// to the dispatcher as a single-line batch and the response written
// back, newline-terminated, before reading the next.
func (s *Server) serve(ctx context.Context, sess *session) {
	defer sess.conn.Close()
	defer s.removeSession(sess)

	scanner := bufio.NewScanner(sess.conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}

		sess.mu.Lock()
		out := s.dispatcher.HandleRequests(ctx, sess.client, [][]byte{line})
		sess.mu.Unlock()

		if err := sess.writeLines(out); err != nil {
			if s.log != nil {
				s.log.Warnw("write failed, dropping client", "error", err)
			}
			return
		}
	}
}

func (sess *session) writeLines(lines [][]byte) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	for _, line := range lines {
		if _, err := sess.conn.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// notifyLoop is the notifier task: on every tick, every connected
// client's subscriptions are re-evaluated under its own exclusive lock
// and any resulting notification lines written out. A client whose
// update fails is dropped.
func (s *Server) notifyLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Server) tick(ctx context.Context) {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.clients))
	for sess := range s.clients {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.mu.Lock()
		lines, err := s.dispatcher.UpdateClient(ctx, sess.client)
		sess.mu.Unlock()

		if err != nil {
			if s.log != nil {
				s.log.Warnw("client update failed, dropping", "error", err)
			}
			sess.conn.Close()
			continue
		}
		if len(lines) == 0 {
			continue
		}
		if err := sess.writeLines(lines); err != nil {
			if s.log != nil {
				s.log.Warnw("notification write failed, dropping client", "error", err)
			}
			sess.conn.Close()
		}
	}
}
