package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// ErrTransportClosed is returned by Accept after Close.
var ErrTransportClosed = errors.New("remote: transport closed")

// Transport produces one peer connection at a time. Accept blocks until a
// peer is available, ctx is done or the transport is closed.
type Transport interface {
	Accept(ctx context.Context) (io.ReadWriteCloser, error)
	Close() error
	String() string
}

// DefaultSerialReadTimeout bounds each read on a serial link.
const DefaultSerialReadTimeout = 200 * time.Millisecond

// SerialTransport treats a bound RFCOMM tty (e.g. /dev/rfcomm0) as the
// listening socket: the device can only be opened while a peer is bound, so
// Accept retries the open until it succeeds.
type SerialTransport struct {
	Path        string
	Options     PortOptions
	Open        SerialPortOpener
	RetryDelay  time.Duration
	ReadTimeout time.Duration

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewSerialTransport returns a transport on path using go.bug.st/serial.
func NewSerialTransport(path string, opts PortOptions) *SerialTransport {
	return &SerialTransport{
		Path:        path,
		Options:     opts,
		Open:        OpenSerialPort,
		RetryDelay:  time.Second,
		ReadTimeout: DefaultSerialReadTimeout,
		done:        make(chan struct{}),
	}
}

func (t *SerialTransport) String() string { return "serial:" + t.Path }

func (t *SerialTransport) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	if _, err := t.Options.Normalize(); err != nil {
		return nil, err
	}
	for {
		t.mu.Lock()
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return nil, ErrTransportClosed
		}

		port, err := t.Open(t.Path, t.Options)
		if err == nil {
			if tp, ok := port.(TimeoutSerialPorter); ok && t.ReadTimeout > 0 {
				if err := tp.SetReadTimeout(t.ReadTimeout); err != nil {
					port.Close()
					return nil, fmt.Errorf("set read timeout on %s: %w", t.Path, err)
				}
			}
			return port, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.done:
			return nil, ErrTransportClosed
		case <-time.After(t.RetryDelay):
		}
	}
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.done)
	}
	return nil
}

// TCPTransport listens on a TCP address and serves one peer at a time. It
// speaks the same byte protocol as the RFCOMM link and is used for bench runs.
type TCPTransport struct {
	addr string

	mu     sync.Mutex
	ln     net.Listener
	closed bool
}

// NewTCPTransport binds addr immediately so configuration errors surface at
// startup.
func NewTCPTransport(addr string) (*TCPTransport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &TCPTransport{addr: addr, ln: ln}, nil
}

// Addr returns the bound address.
func (t *TCPTransport) Addr() net.Addr { return t.ln.Addr() }

func (t *TCPTransport) String() string { return "tcp:" + t.ln.Addr().String() }

func (t *TCPTransport) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := t.ln.Accept()
		ch <- result{c, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if closed {
				return nil, ErrTransportClosed
			}
			return nil, r.err
		}
		return r.conn, nil
	case <-ctx.Done():
		// The pending Accept is released when the listener closes.
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.ln.Close()
}

// IdleTransport never produces a peer. Commands reach a channel built on it
// only through Inject.
type IdleTransport struct {
	once sync.Once
	done chan struct{}
}

// NewIdleTransport returns an IdleTransport.
func NewIdleTransport() *IdleTransport {
	return &IdleTransport{done: make(chan struct{})}
}

func (t *IdleTransport) String() string { return "none" }

func (t *IdleTransport) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, ErrTransportClosed
	}
}

func (t *IdleTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}
