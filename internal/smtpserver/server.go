// Package smtpserver implements the inbound mail listener: a line-oriented
// SMTP state machine run independently for every accepted connection,
// feeding parsed messages into the mailbox store.
package smtpserver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"syscall"

	"github.io/infrasutra/openmail/internal/metrics"
	"github.io/infrasutra/openmail/internal/sse"
	"github.io/infrasutra/openmail/internal/store"
)

type Server struct {
	store  *store.Store
	hub    *sse.Hub
	logger *slog.Logger
	addr   string
	domain string

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

func New(st *store.Store, hub *sse.Hub, logger *slog.Logger, addr, domain string) *Server {
	return &Server{
		store:  st,
		hub:    hub,
		logger: logger,
		addr:   addr,
		domain: domain,
	}
}

func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.addr, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return listener.Close()
	}
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("smtp server listening", "addr", s.addr, "domain", s.domain)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept connection", "error", err)
			continue
		}
		go s.handleConn(conn)
	}
}

// Addr returns the bound listener address, or "" before ListenAndServe has
// bound one. Useful when listening on port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsCurrent.Inc()
	defer metrics.ConnectionsCurrent.Dec()

	sess := newSession(s.store, s.hub, s.logger, s.domain, conn)
	sess.greet()

	chunk := make([]byte, 4096)
	for !sess.closed() {
		n, err := conn.Read(chunk)
		if n > 0 {
			sess.feed(chunk[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !isBrokenPipe(err) {
				s.logger.Error("smtp socket error", "error", err, "remote", conn.RemoteAddr())
			}
			return
		}
	}
}

// Broken pipes just mean the peer went away mid-conversation; expected on
// disconnect and not worth logging.
func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed)
}
