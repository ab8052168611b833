// Package transport owns the single TCP connection a session machine
// uses at any one time: it reads length-prefixed frames off the wire,
// serializes writes, and reports disconnection exactly once (§4.3).
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Transport is the Frame Transport's public surface. A *Conn is the
// only implementation; it is exported as an interface so the session
// machine can be driven against a mock in tests.
type Transport interface {
	// Send writes one already-framed buffer to the wire, as produced by
	// proto.EncodeFrame/EncodeRequest. Safe to call from any producer;
	// writes are serialized internally.
	Send(frame []byte) error
	// Frames returns the channel of inbound frame bodies, delivered in
	// server-send order. The channel is closed when the transport closes.
	Frames() <-chan []byte
	// Closed returns a channel that is closed once, the first time the
	// transport transitions to closed for any reason.
	Closed() <-chan struct{}
	// Err returns the error that caused the transport to close, if any.
	// Valid only after Closed() has fired.
	Err() error
	// SetDeadline extends the underlying connection's read deadline;
	// used by the session machine's liveness timer.
	SetDeadline(t time.Time) error
	Close(reason error) error
}

// Conn is a Transport backed by one net.Conn. Dial opens the connection;
// the caller owns calling Close exactly once (Close is idempotent too).
type Conn struct {
	nc     net.Conn
	log    *zap.Logger
	frames chan []byte
	closed chan struct{}

	closeOnce sync.Once
	writeMu   sync.Mutex

	mu  sync.Mutex
	err error
}

// Dial opens a TCP connection to addr and starts the background reader.
func Dial(addr string, dialTimeout time.Duration, log *zap.Logger) (*Conn, error) {
	nc, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	c := &Conn{
		nc:     nc,
		log:    log,
		frames: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) Frames() <-chan []byte   { return c.frames }
func (c *Conn) Closed() <-chan struct{} { return c.closed }

func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) SetDeadline(t time.Time) error {
	return c.nc.SetReadDeadline(t)
}

// Send writes one already-framed buffer (length prefix plus body, per
// proto.EncodeFrame) to the wire as-is. Writes to one connection are
// mutually exclusive; this mutex is the serialization point §5 requires.
func (c *Conn) Send(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.nc.Write(frame); err != nil {
		c.fail(err)
		return err
	}
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.frames)
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(c.nc, lenBuf[:]); err != nil {
			c.fail(err)
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		body := make([]byte, n)
		if _, err := io.ReadFull(c.nc, body); err != nil {
			c.fail(err)
			return
		}
		select {
		case c.frames <- body:
		case <-c.closed:
			return
		}
	}
}

// fail transitions the transport to closed, surfacing err exactly once.
func (c *Conn) fail(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		_ = c.nc.Close()
		close(c.closed)
		if c.log != nil {
			c.log.Debug("transport closed", zap.Error(err))
		}
	})
}

// Close is idempotent and cancels all readers/writers.
func (c *Conn) Close(reason error) error {
	c.fail(reason)
	return nil
}
