package chat

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tcpClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func startServer(t *testing.T, opts Options) *Server {
	t.Helper()
	opts.Addr = "127.0.0.1:0"
	srv, err := NewServer(opts)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func dial(t *testing.T, srv *Server) *tcpClient {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &tcpClient{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *tcpClient) send(t *testing.T, frame string) {
	t.Helper()
	_, err := c.conn.Write([]byte(frame))
	require.NoError(t, err)
}

func (c *tcpClient) readLine(t *testing.T) string {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := c.reader.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimRight(line, "\n")
}

func waitStats(t *testing.T, srv *Server, want Stats) {
	t.Helper()
	require.Eventually(t, func() bool { return srv.Registry().Stats() == want }, 2*time.Second, 5*time.Millisecond)
}

func TestServer_ChatRoundTrip(t *testing.T) {
	srv := startServer(t, Options{Capacity: 4, Version: "relay e2e"})

	alice := dial(t, srv)
	bob := dial(t, srv)
	waitStats(t, srv, Stats{Capacity: 4, Occupied: 2})

	alice.send(t, "JOIN alice\n")
	waitStats(t, srv, Stats{Capacity: 4, Occupied: 2, Registered: 1})
	bob.send(t, "JOIN bob\n")
	assert.Equal(t, "bob has joined the chat", alice.readLine(t))

	alice.send(t, "hello\n")
	assert.Equal(t, "[alice] hello", bob.readLine(t))

	bob.send(t, "WHO\n")
	assert.Equal(t, "alice", bob.readLine(t))
	assert.Equal(t, "bob", bob.readLine(t))

	bob.send(t, "VERSION\n")
	assert.Equal(t, "relay e2e", bob.readLine(t))

	bob.send(t, "LEAVE\n")
	assert.Equal(t, "bob has left the chat", alice.readLine(t))
	waitStats(t, srv, Stats{Capacity: 4, Occupied: 1, Registered: 1})

	_, err := bob.reader.ReadString('\n')
	assert.Error(t, err, "server closes the connection after LEAVE")
}

func TestServer_RejectsWhenFull(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	srv := startServer(t, Options{Capacity: 1, Metrics: m})

	first := dial(t, srv)
	waitStats(t, srv, Stats{Capacity: 1, Occupied: 1})

	second := dial(t, srv)
	require.NoError(t, second.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := second.reader.ReadByte()
	assert.Error(t, err, "overflow connection is closed")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectedConnections))

	require.NoError(t, first.conn.Close())
	waitStats(t, srv, Stats{Capacity: 1})

	third := dial(t, srv)
	third.send(t, "JOIN carol\n")
	waitStats(t, srv, Stats{Capacity: 1, Occupied: 1, Registered: 1})
}

func TestServer_StopDisconnectsClients(t *testing.T) {
	srv, err := NewServer(Options{Addr: "127.0.0.1:0", Capacity: 2})
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	c := dial(t, srv)
	waitStats(t, srv, Stats{Capacity: 2, Occupied: 1})

	require.NoError(t, srv.Stop())
	assert.Equal(t, Stats{Capacity: 2}, srv.Registry().Stats())

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = c.reader.ReadByte()
	assert.Error(t, err)
}

func TestServer_ServeOverPipe(t *testing.T) {
	srv := startServer(t, Options{Capacity: 2})

	member := dial(t, srv)
	member.send(t, "JOIN member\n")
	waitStats(t, srv, Stats{Capacity: 2, Occupied: 1, Registered: 1})

	server, client := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- srv.Serve(server) }()

	_, err := client.Write([]byte("JOIN piped"))
	require.NoError(t, err)
	assert.Equal(t, "piped has joined the chat", member.readLine(t))

	require.NoError(t, client.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after the peer closed")
	}
}
