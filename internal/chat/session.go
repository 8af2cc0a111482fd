package chat

import (
	"context"
	"log/slog"
)

const DefaultMaxMessageSize = 512

// Session drives one connection: read a frame, echo it, dispatch it, repeat.
// A single read is treated as a single message; nothing is reassembled and
// input longer than the buffer is split across reads.
type Session struct {
	client     *Client
	reg        *Registry
	dispatcher *Dispatcher
	console    Console
	bufSize    int
	logger     *slog.Logger
}

func NewSession(c *Client, reg *Registry, d *Dispatcher, console Console, bufSize int, logger *slog.Logger) *Session {
	if console == nil {
		console = NopConsole{}
	}
	if bufSize <= 0 {
		bufSize = DefaultMaxMessageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		client:     c,
		reg:        reg,
		dispatcher: d,
		console:    console,
		bufSize:    bufSize,
		logger:     logger,
	}
}

// Run blocks until the peer disconnects, the client sends LEAVE, or ctx is
// cancelled. The slot is always released on return.
func (s *Session) Run(ctx context.Context) {
	c := s.client
	defer s.reg.ReleaseConn(c.Slot, c.Conn)

	stop := context.AfterFunc(ctx, func() {
		s.reg.ReleaseConn(c.Slot, c.Conn)
	})
	defer stop()

	buf := make([]byte, s.bufSize)
	for {
		n, err := c.Conn.Read(buf)
		if n > 0 {
			frame := buf[:n]
			name, registered := s.reg.LookupName(c.Slot)
			s.console.Echo(name, registered, frame)

			if s.dispatcher.Dispatch(c, frame) == ResultLeave {
				s.logger.Info("client left", "slot", c.Slot, "conn_id", c.ID, "addr", c.Addr)
				return
			}
			clear(buf[:n])
		}
		if err != nil {
			if isExpectedCloseError(err) {
				s.logger.Info("client disconnected", "slot", c.Slot, "conn_id", c.ID, "addr", c.Addr)
			} else {
				s.logger.Warn("read failed", "slot", c.Slot, "conn_id", c.ID, "addr", c.Addr, "error", err)
			}
			return
		}
	}
}
