// Package transport provides the raw byte stream the frame protocol runs on: a single
// outbound TCP connection for senders, and a listener for the receiving side.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
)

// ErrTransportFailure marks connect and write failures. They are fatal to a session.
var ErrTransportFailure = errors.New("transport failure")

// Conn is a stream connection whose Close is safe to call more than once.
// Only the first call closes the underlying connection.
type Conn struct {
	conn      net.Conn
	closeOnce sync.Once
	closeErr  error
}

// Wrap turns an existing net.Conn into a Conn
func Wrap(c net.Conn) *Conn {
	return &Conn{conn: c}
}

// Dial opens a single outbound connection. There is no reconnection.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransportFailure, addr, err)
	}
	return Wrap(c), nil
}

// Read reads from the connection
func (c *Conn) Read(p []byte) (int, error) {
	return c.conn.Read(p)
}

// Write writes to the connection, tagging failures as ErrTransportFailure
func (c *Conn) Write(p []byte) (int, error) {
	n, err := c.conn.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	return n, nil
}

// Close releases the connection. Later calls return the first result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the peer address
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Listener accepts framed-stream connections
type Listener struct {
	ln net.Listener
}

// Listen binds addr for incoming connections
func Listen(ctx context.Context, addr string) (*Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %w", ErrTransportFailure, addr, err)
	}
	return &Listener{ln: ln}, nil
}

// Addr returns the bound address
func (l *Listener) Addr() string {
	return l.ln.Addr().String()
}

// Accept waits for one connection. Cancelling ctx closes the listener.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		l.ln.Close()
	})
	defer stop()

	c, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: accept: %w", ErrTransportFailure, err)
	}
	return Wrap(c), nil
}

// Close stops listening
func (l *Listener) Close() error {
	return l.ln.Close()
}
