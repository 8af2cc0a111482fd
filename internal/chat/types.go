package chat

import "net"

// Client is one accepted connection bound to its registry slot for the
// lifetime of its session.
type Client struct {
	ID   string
	Slot int
	Conn net.Conn
	Addr string
}

type Command int

const (
	CommandBroadcast Command = iota
	CommandJoin
	CommandWho
	CommandLeave
	CommandVersion
)

func (c Command) String() string {
	switch c {
	case CommandJoin:
		return "join"
	case CommandWho:
		return "who"
	case CommandLeave:
		return "leave"
	case CommandVersion:
		return "version"
	default:
		return "broadcast"
	}
}

// Result tells the session loop whether to keep reading after a frame.
type Result int

const (
	ResultContinue Result = iota
	ResultLeave
)

var (
	ErrRegistryFull      = errorString("registry full")
	ErrSlotOutOfRange    = errorString("slot out of range")
	ErrSlotVacant        = errorString("slot vacant")
	ErrAlreadyRegistered = errorString("slot already registered")
	ErrNotRegistered     = errorString("slot not registered")
	ErrInvalidCapacity   = errorString("invalid registry capacity")
	ErrInvalidNameLen    = errorString("invalid max name length")
)

type errorString string

func (e errorString) Error() string { return string(e) }
