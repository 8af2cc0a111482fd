package chat

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory net.Conn. Frames pushed with send are returned
// one per Read; everything written is recorded line by line.
type fakeConn struct {
	mu         sync.Mutex
	written    strings.Builder
	closed     bool
	failWrites bool
	frames     chan []byte
	done       chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
}

func (c *fakeConn) send(frame string)                { c.frames <- []byte(frame) }

func (c *fakeConn) Read(p []byte) (int, error) {
	select {
	case f := <-c.frames:
		return copy(p, f), nil
	case <-c.done:
		return 0, io.EOF
	}
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	if c.failWrites {
		return 0, errors.New("write: connection reset")
	}
	c.written.Write(p)
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	c.closed = true
	close(c.done)
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) setFailWrites(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWrites = v
}

// lines returns every complete line written so far.
func (c *fakeConn) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.written.String()
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func (c *fakeConn) LocalAddr() net.Addr              { return fakeAddr{} }
func (c *fakeConn) RemoteAddr() net.Addr             { return fakeAddr{} }
func (c *fakeConn) SetDeadline(time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

type fakeAddr struct{}

func (fakeAddr) Network() string { return "fake" }
func (fakeAddr) String() string  { return "fake:0" }

func newTestRegistry(t *testing.T, capacity int) *Registry {
	t.Helper()
	reg, err := NewRegistry(RegistryOptions{Capacity: capacity, MaxNameLen: DefaultMaxNameLen})
	require.NoError(t, err)
	return reg
}

// connect allocates a fake connection and returns its client handle.
func connect(t *testing.T, reg *Registry) (*Client, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	idx, err := reg.Allocate(conn)
	require.NoError(t, err)
	return &Client{ID: "test", Slot: idx, Conn: conn, Addr: "fake:0"}, conn
}

// checkInvariants asserts that no slot carries a name without a connection.
func checkInvariants(t *testing.T, reg *Registry) {
	t.Helper()
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for i, s := range reg.slots {
		if s.registered {
			require.NotNil(t, s.conn, "slot %d registered without a connection", i)
		}
		if !s.registered {
			require.Empty(t, s.name, "slot %d keeps a stale name", i)
		}
	}
}
