package remote

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/HansolSon1113/MakerProject/internal/monitoring"
	"github.com/HansolSon1113/MakerProject/internal/sensors"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func TestDecode(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{"", None},
		{"0", PowerOff},
		{"1", PowerOn},
		{"2", QueryLoadStatus},
		{"1\r\n", PowerOn},
		{"  2 ", QueryLoadStatus},
		{"9", None},
		{"hello", None},
		{"\xff\xfe1", PowerOn},
		{"12", QueryLoadStatus},
		{"0\n1\n", PowerOn},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Decode([]byte(tt.in)), "Decode(%q)", tt.in)
	}
}

func TestParseCommand(t *testing.T) {
	for _, c := range []Command{PowerOff, PowerOn, QueryLoadStatus} {
		got, err := ParseCommand(string(c.Token()))
		require.NoError(t, err)
		assert.Equal(t, c, got)

		got, err = ParseCommand(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseCommand("reboot")
	assert.Error(t, err)
}

func TestAckForLoad(t *testing.T) {
	const nearlyFull = 3.0
	tests := []struct {
		load sensors.Distance
		want byte
	}{
		{1.2, AckFull},
		{2.999, AckFull},
		{3.0, AckHasRoom},
		{25, AckHasRoom},
		{0, AckHasRoom},
		{sensors.NoReading, AckHasRoom},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AckForLoad(tt.load, nearlyFull), "load %v", tt.load)
	}
}

func TestPortOptions_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr bool
	}{
		{"defaults", PortOptions{}, PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "N"}, false},
		{"even", PortOptions{BaudRate: 115200, Parity: "even"}, PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "E"}, false},
		{"bad data bits", PortOptions{DataBits: 9}, PortOptions{}, true},
		{"bad stop bits", PortOptions{StopBits: 3}, PortOptions{}, true},
		{"bad parity", PortOptions{Parity: "mark"}, PortOptions{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, 9600, mode.BaudRate)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.OddParity, mode.Parity)

	mode, err = PortOptions{}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
}

func TestChannel_AbsenceNeverBlocks(t *testing.T) {
	ch := NewChannel(&SerialTransport{Path: "/dev/null", Open: (&portQueue{}).open, done: make(chan struct{})})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			cmd, ok := ch.TryReceive()
			assert.False(t, ok)
			assert.Equal(t, None, cmd)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("TryReceive blocked")
	}

	assert.ErrorIs(t, ch.Send(AckFull), ErrNotConnected)
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
}

func TestChannel_InjectIsConsumedOnce(t *testing.T) {
	ch := NewChannel(&SerialTransport{Open: (&portQueue{}).open, done: make(chan struct{})})
	ch.Inject(PowerOn)
	ch.Inject(None)

	cmd, ok := ch.TryReceive()
	require.True(t, ok)
	assert.Equal(t, PowerOn, cmd)

	_, ok = ch.TryReceive()
	assert.False(t, ok)
}

func receive(t *testing.T, ch *Channel) Command {
	t.Helper()
	var got Command
	require.Eventually(t, func() bool {
		cmd, ok := ch.TryReceive()
		got = cmd
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestChannel_SerialPeerLifecycle(t *testing.T) {
	first, second := newTestablePort(), newTestablePort()
	q := &portQueue{ports: []*testablePort{first, second}}
	tr := NewSerialTransport("/dev/rfcomm0", PortOptions{})
	tr.Open = q.open
	tr.RetryDelay = 5 * time.Millisecond

	ch := NewChannel(tr)
	ch.retryDelay = 5 * time.Millisecond
	ch.Start(context.Background())
	defer ch.Close()

	require.Eventually(t, ch.Connected, time.Second, time.Millisecond)
	assert.Equal(t, DefaultSerialReadTimeout, first.ReadTimeout)

	first.AddReadData([]byte("1\n"))
	assert.Equal(t, PowerOn, receive(t, ch))

	require.NoError(t, ch.Send(AckHasRoom))
	assert.Equal(t, []byte{AckHasRoom}, first.Written())

	// Peer drops: the channel re-opens the device and keeps serving.
	first.FailRead(io.EOF)
	require.Eventually(t, func() bool { return q.openCount() >= 2 && ch.Connected() }, 2*time.Second, time.Millisecond)
	assert.True(t, first.IsClosed())

	second.AddReadData([]byte("2"))
	assert.Equal(t, QueryLoadStatus, receive(t, ch))
	require.NoError(t, ch.Send(AckFull))
	assert.Equal(t, []byte{AckFull}, second.Written())

	require.NoError(t, ch.Close())
	assert.True(t, second.IsClosed())
	assert.False(t, ch.Connected())
}

func TestChannel_SendFailureDropsPeer(t *testing.T) {
	port := newTestablePort()
	q := &portQueue{ports: []*testablePort{port}}
	tr := NewSerialTransport("/dev/rfcomm0", PortOptions{})
	tr.Open = q.open
	tr.RetryDelay = 5 * time.Millisecond

	ch := NewChannel(tr)
	ch.Start(context.Background())
	defer ch.Close()
	require.Eventually(t, ch.Connected, time.Second, time.Millisecond)

	port.mu.Lock()
	port.WriteError = io.ErrClosedPipe
	port.mu.Unlock()

	assert.Error(t, ch.Send(AckFull))
	assert.True(t, port.IsClosed())

	cmd, ok := ch.TryReceive()
	assert.False(t, ok)
	assert.Equal(t, None, cmd)
}

func TestChannel_TCP(t *testing.T) {
	tr, err := NewTCPTransport("127.0.0.1:0")
	require.NoError(t, err)

	ch := NewChannel(tr)
	ctx, cancel := context.WithCancel(context.Background())
	ch.Start(ctx)

	dial := func() net.Conn {
		c, err := net.Dial("tcp", tr.Addr().String())
		require.NoError(t, err)
		return c
	}

	client := dial()
	require.Eventually(t, ch.Connected, time.Second, time.Millisecond)

	_, err = client.Write([]byte("0"))
	require.NoError(t, err)
	assert.Equal(t, PowerOff, receive(t, ch))

	require.NoError(t, ch.Send(AckFull))
	buf := make([]byte, 1)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second)))
	_, err = io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, AckFull, buf[0])

	// Reconnect after the peer goes away.
	client.Close()
	require.Eventually(t, func() bool { return !ch.Connected() }, time.Second, time.Millisecond)
	client = dial()
	defer client.Close()
	require.Eventually(t, ch.Connected, time.Second, time.Millisecond)
	_, err = client.Write([]byte("1"))
	require.NoError(t, err)
	assert.Equal(t, PowerOn, receive(t, ch))

	cancel()
	closed := make(chan error, 1)
	go func() { closed <- ch.Close() }()
	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}

func TestChannel_IdleTransportOnlyInjects(t *testing.T) {
	tr := NewIdleTransport()
	ch := NewChannel(tr)
	ch.Start(context.Background())

	_, ok := ch.TryReceive()
	assert.False(t, ok)
	assert.False(t, ch.Connected())
	assert.ErrorIs(t, ch.Send(AckHasRoom), ErrNotConnected)

	ch.Inject(PowerOn)
	cmd, ok := ch.TryReceive()
	require.True(t, ok)
	assert.Equal(t, PowerOn, cmd)

	done := make(chan struct{})
	go func() {
		assert.NoError(t, ch.Close())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on idle transport")
	}
}
