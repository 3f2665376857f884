package server

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"yegnachat/models"
	"yegnachat/protocol"
)

type connState int32

const (
	stateConnecting connState = iota
	stateUnauthenticated
	stateAuthenticated
	stateClosing
	stateClosed
)

// Conn is the live handle for one client socket. It owns the framed input
// cursor, the current session reference and the serialized write path; it is
// the value stored in the Registry.
type Conn struct {
	nc           net.Conn
	fr           *protocol.Framer
	reg          *Registry
	writeTimeout time.Duration

	state atomic.Int32

	// writeMu serializes outbound frames; sequential sends from one handler
	// reach the peer in call order.
	writeMu sync.Mutex

	// sessMu serializes SetSession, ClearSession and Close so a registry
	// entry can neither outlive its handle nor be clobbered mid-swap.
	sessMu  sync.Mutex
	session *models.Session
	closed  bool
}

func newConn(nc net.Conn, reg *Registry, writeTimeout time.Duration, maxLineBytes int) *Conn {
	c := &Conn{
		nc:           nc,
		fr:           protocol.NewFramer(nc, maxLineBytes),
		reg:          reg,
		writeTimeout: writeTimeout,
	}
	c.state.Store(int32(stateUnauthenticated))
	return c
}

func (c *Conn) Session() *models.Session {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	return c.session
}

// SetSession swaps the connection's session, atomically removing the old
// registry mapping before installing the new one. Re-authentication on a live
// connection replaces, never duplicates. Swapping in a new record for the
// same user leaves the registry entry in place the whole time.
func (c *Conn) SetSession(s *models.Session) {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()

	if c.closed {
		return
	}

	if c.session != nil && (s == nil || s.UserID != c.session.UserID) {
		c.reg.Unregister(c.session.UserID, c)
	}
	c.session = s
	if s != nil {
		c.reg.Register(s.UserID, c)
		c.state.Store(int32(stateAuthenticated))
	} else {
		c.state.Store(int32(stateUnauthenticated))
	}
}

func (c *Conn) ClearSession() {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()

	if c.session != nil {
		c.reg.Unregister(c.session.UserID, c)
		c.session = nil
	}
	if !c.closed {
		c.state.Store(int32(stateUnauthenticated))
	}
}

// WriteFrame writes one newline-terminated frame under the write lock.
func (c *Conn) WriteFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')
	_, err := c.nc.Write(buf)
	return err
}

// ReadExact exposes the bounded binary reader to handlers that declared an
// in-stream payload.
func (c *Conn) ReadExact(n int64) io.Reader {
	return c.fr.ReadExact(n)
}

// Close runs connection teardown: deregister, then close the stream.
// Idempotent; safe to call from the read loop and from handlers.
func (c *Conn) Close() {
	c.sessMu.Lock()
	if c.closed {
		c.sessMu.Unlock()
		return
	}
	c.closed = true
	c.state.Store(int32(stateClosing))
	if c.session != nil {
		c.reg.Unregister(c.session.UserID, c)
		c.session = nil
	}
	c.sessMu.Unlock()

	c.nc.Close()
	c.state.Store(int32(stateClosed))
}

func (c *Conn) RemoteAddr() string {
	if addr := c.nc.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}
