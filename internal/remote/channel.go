package remote

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/HansolSon1113/MakerProject/internal/latest"
	"github.com/HansolSon1113/MakerProject/internal/monitoring"
)

// ErrNotConnected is returned by Send when no peer is connected.
var ErrNotConnected = errors.New("remote: no peer connected")

const readBufSize = 1024

// Channel is the non-blocking command link used by the control loop.
type Channel struct {
	transport  Transport
	retryDelay time.Duration

	cmds latest.Cell[Command]

	connMu sync.Mutex
	conn   io.ReadWriteCloser

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewChannel wraps t. Call Start to begin listening.
func NewChannel(t Transport) *Channel {
	return &Channel{transport: t, retryDelay: time.Second}
}

// Start runs the accept/pump supervisor in the background until ctx is done
// or Close is called.
func (c *Channel) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.supervise(ctx)
	}()
	go func() {
		<-ctx.Done()
		c.dropConn()
	}()
}

func (c *Channel) supervise(ctx context.Context) {
	monitoring.Logf("remote: waiting for peer on %s", c.transport)
	for ctx.Err() == nil {
		conn, err := c.transport.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrTransportClosed) {
				return
			}
			monitoring.Logf("remote: accept on %s failed: %v", c.transport, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay):
			}
			continue
		}

		if !c.setConn(ctx, conn) {
			return
		}
		monitoring.Logf("remote: peer connected on %s", c.transport)

		err = c.pump(ctx, conn)
		c.dropConn()
		if ctx.Err() != nil {
			return
		}
		monitoring.Logf("remote: peer disconnected (%v), re-listening", err)
	}
}

// pump reads until the connection fails and stores every decoded command.
func (c *Channel) pump(ctx context.Context, conn io.Reader) error {
	buf := make([]byte, readBufSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if cmd := Decode(buf[:n]); cmd != None {
				monitoring.Debugf("remote: received %v", cmd)
				c.cmds.Store(cmd)
			}
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// setConn installs conn unless ctx is already done. The check happens under
// connMu so the shutdown path always sees and closes an installed conn.
func (c *Channel) setConn(ctx context.Context, conn io.ReadWriteCloser) bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if ctx.Err() != nil {
		conn.Close()
		return false
	}
	c.conn = conn
	return true
}

func (c *Channel) dropConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// TryReceive returns the latest unconsumed command. It never blocks and
// never fails: no data, no peer and a broken link all read as (None, false).
func (c *Channel) TryReceive() (Command, bool) {
	cmd, ok := c.cmds.Take()
	if !ok || cmd == None {
		return None, false
	}
	return cmd, true
}

// Inject queues cmd as if the peer had sent it.
func (c *Channel) Inject(cmd Command) {
	if cmd != None {
		c.cmds.Store(cmd)
	}
}

// Connected reports whether a peer is attached.
func (c *Channel) Connected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn != nil
}

// Send writes one status byte to the peer.
func (c *Channel) Send(b byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if _, err := c.conn.Write([]byte{b}); err != nil {
		// The pump sees the closed conn and re-listens.
		c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// Close stops the supervisor and releases the link. It is safe to call more
// than once and before Start.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		err = c.transport.Close()
		c.dropConn()
		c.wg.Wait()
	})
	return err
}
