package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"yegnachat/db"
	"yegnachat/images"
	"yegnachat/protocol"
)

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxLineBytes int
	SessionTTL   time.Duration
}

// Server accepts TCP clients and runs one read loop per connection. All
// shared state lives in the registry and the session store; the dispatcher
// is stateless per request.
type Server struct {
	cfg        Config
	db         *db.DB
	reg        *Registry
	sessions   *SessionStore
	dispatcher *Dispatcher
	log        *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	closing  bool
	conns    map[*Conn]struct{}
}

func New(cfg Config, database *db.DB, imgs *images.Store, log *zap.Logger) *Server {
	reg := NewRegistry()
	sessions := NewSessionStore(database, cfg.SessionTTL, log)
	return &Server{
		cfg:        cfg,
		db:         database,
		reg:        reg,
		sessions:   sessions,
		dispatcher: NewDispatcher(database, reg, sessions, imgs, log),
		log:        log,
		conns:      make(map[*Conn]struct{}),
	}
}

// Start blocks in the accept loop until Shutdown closes the listener.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		listener.Close()
		return errors.New("server already shut down")
	}
	s.listener = listener
	s.mu.Unlock()

	s.log.Info("chat server listening", zap.String("addr", s.cfg.Addr))

	for {
		nc, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return nil
			}
			s.log.Warn("accept failed", zap.Error(err))
			continue
		}
		go s.handleConnection(nc)
	}
}

// Shutdown stops accepting, notifies authenticated clients and closes every
// live connection.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closing = true
	listener := s.listener
	open := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		open = append(open, c)
	}
	s.mu.Unlock()

	if listener != nil {
		listener.Close()
	}

	// Best-effort farewell, the way clients already parse bare-string
	// payloads on error frames.
	if frame, err := protocol.Encode("server_shutdown", "Server shutting down"); err == nil {
		s.reg.Broadcast(frame)
	}

	for _, c := range open {
		c.Close()
	}
}

// Stats reports the live counters the control socket exposes.
func (s *Server) Stats() (connections, authenticated int) {
	s.mu.Lock()
	connections = len(s.conns)
	s.mu.Unlock()
	return connections, s.reg.Count()
}

func (s *Server) track(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// handleConnection is the per-client read loop. One goroutine per socket:
// read a line, route it, write the direct response. Fan-out to other clients
// happens inside handlers through the registry.
func (s *Server) handleConnection(nc net.Conn) {
	c := newConn(nc, s.reg, s.cfg.WriteTimeout, s.cfg.MaxLineBytes)
	if !s.track(c) {
		c.Close()
		return
	}

	remote := c.RemoteAddr()
	s.log.Info("client connected", zap.String("remote", remote))

	defer func() {
		c.Close()
		s.untrack(c)
		s.log.Info("client disconnected", zap.String("remote", remote))
	}()

	for {
		if s.cfg.ReadTimeout > 0 {
			nc.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}

		line, err := c.fr.NextLine()
		if err != nil {
			// An idle expiry or peer hangup both end the connection the
			// same way.
			if err != io.EOF && !isTimeout(err) {
				s.log.Debug("read failed", zap.String("remote", remote), zap.Error(err))
			}
			if errors.Is(err, protocol.ErrLineTooLong) {
				c.WriteFrame(protocol.ErrorFrame("Message too long"))
			}
			return
		}
		if len(line) == 0 {
			continue
		}

		response := s.dispatcher.Route(line, c)
		if response != nil {
			if err := c.WriteFrame(response); err != nil {
				return
			}
		}

		// A handler that declared a binary payload and failed before
		// draining it leaves the stream unparseable.
		if c.fr.Desynced() {
			s.log.Warn("stream desynchronized, dropping connection", zap.String("remote", remote))
			return
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
