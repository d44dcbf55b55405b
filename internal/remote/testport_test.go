package remote

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// testablePort is a SerialPorter with scriptable reads for tests.
type testablePort struct {
	mu sync.Mutex

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer

	ReadError   error
	WriteError  error
	Closed      bool
	ReadTimeout time.Duration

	readCond *sync.Cond
}

func newTestablePort() *testablePort {
	p := &testablePort{}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

// Read blocks until data is added, an error is scripted or the port closes.
func (p *testablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.Closed && p.readBuf.Len() == 0 && p.ReadError == nil {
		p.readCond.Wait()
	}
	if p.Closed {
		return 0, errors.New("serial port closed")
	}
	if p.ReadError != nil {
		err := p.ReadError
		p.ReadError = nil
		return 0, err
	}
	return p.readBuf.Read(b)
}

func (p *testablePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Closed {
		return 0, errors.New("serial port closed")
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}
	return p.writeBuf.Write(b)
}

func (p *testablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	p.readCond.Broadcast()
	return nil
}

func (p *testablePort) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReadTimeout = d
	return nil
}

func (p *testablePort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readBuf.Write(data)
	p.readCond.Signal()
}

// FailRead makes the next Read return err.
func (p *testablePort) FailRead(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReadError = err
	p.readCond.Broadcast()
}

func (p *testablePort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.writeBuf.Bytes()...)
}

func (p *testablePort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Closed
}

// portQueue hands out ports in order from an opener.
type portQueue struct {
	mu    sync.Mutex
	ports []*testablePort
	opens []string
	err   error
}

func (q *portQueue) open(path string, _ PortOptions) (SerialPorter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.opens = append(q.opens, path)
	if q.err != nil || len(q.ports) == 0 {
		return nil, errors.New("no such device")
	}
	p := q.ports[0]
	q.ports = q.ports[1:]
	return p, nil
}

func (q *portQueue) openCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.opens)
}
