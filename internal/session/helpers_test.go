package session

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"firestige.xyz/eeglink/internal/decoder"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeConn records writes and never yields data.
type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func (c *fakeConn) Read([]byte) (int, error) { return 0, io.EOF }

func (c *fakeConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) LocalAddr() net.Addr              { return &net.TCPAddr{} }
func (c *fakeConn) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (c *fakeConn) SetDeadline(time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

func (c *fakeConn) Written() string {
	return string(bytes.Join(c.Writes(), nil))
}

// events collects notifications from every channel.
type events struct {
	mu         sync.Mutex
	connection []ConnectionStatus
	recording  []RecordingStatus
	frames     []*decoder.Frame
}

func (ev *events) subscriptions() Subscriptions {
	return Subscriptions{
		Connection: func(s ConnectionStatus) {
			ev.mu.Lock()
			ev.connection = append(ev.connection, s)
			ev.mu.Unlock()
		},
		Recording: func(s RecordingStatus) {
			ev.mu.Lock()
			ev.recording = append(ev.recording, s)
			ev.mu.Unlock()
		},
		Frame: func(f *decoder.Frame) {
			ev.mu.Lock()
			ev.frames = append(ev.frames, f)
			ev.mu.Unlock()
		},
	}
}

func (ev *events) Connection() []ConnectionStatus {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return append([]ConnectionStatus(nil), ev.connection...)
}

func (ev *events) Recording() []RecordingStatus {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return append([]RecordingStatus(nil), ev.recording...)
}

func (ev *events) Frames() int {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return len(ev.frames)
}
