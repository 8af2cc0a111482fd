package chat

import (
	"errors"
	"io"
	"net"
	"strings"
	"time"
)

// writeLine sends line plus a terminator in a single Write so that a
// message-framed transport (WebSocket) sees one message per line.
func writeLine(conn net.Conn, line string, timeout time.Duration) error {
	if timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	_, err := conn.Write(buf)
	return err
}

// isExpectedCloseError reports errors produced by a peer hanging up or by our
// own Close racing a pending read or write.
func isExpectedCloseError(err error) bool {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "StatusNormalClosure") ||
		strings.Contains(msg, "StatusGoingAway")
}
