package chat

import (
	"io"
	"sync"
)

// Console receives a copy of every inbound frame.
type Console interface {
	Echo(name string, registered bool, frame []byte)
}

// WriterConsole prints frames to w, prefixed with "[name] " when the sender
// has joined. Frames from concurrent sessions are never interleaved.
type WriterConsole struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterConsole(w io.Writer) *WriterConsole {
	return &WriterConsole{w: w}
}

func (c *WriterConsole) Echo(name string, registered bool, frame []byte) {
	buf := make([]byte, 0, len(name)+len(frame)+4)
	if registered {
		buf = append(buf, '[')
		buf = append(buf, name...)
		buf = append(buf, "] "...)
	}
	buf = append(buf, frame...)
	if len(frame) == 0 || frame[len(frame)-1] != '\n' {
		buf = append(buf, '\n')
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.w.Write(buf)
}

type NopConsole struct{}

func (NopConsole) Echo(string, bool, []byte) {}
