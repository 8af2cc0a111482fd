package chat

import (
	"bytes"
	"log/slog"
	"time"
)

const DefaultVersion = "Simple Go Chat Server v0.1"

type DispatcherOptions struct {
	Version string
	Logger  *slog.Logger
	Metrics *Metrics
}

// Dispatcher routes one inbound frame to its command handler. It keeps no
// per-connection state; everything it knows about a client lives in the
// registry.
type Dispatcher struct {
	reg     *Registry
	version string
	logger  *slog.Logger
	metrics *Metrics
}

func NewDispatcher(reg *Registry, opts DispatcherOptions) *Dispatcher {
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	return &Dispatcher{
		reg:     reg,
		version: opts.Version,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

func (d *Dispatcher) Dispatch(c *Client, frame []byte) Result {
	start := time.Now()
	cmd := ParseCommand(frame)
	defer func() {
		d.metrics.MessagesTotal.WithLabelValues(cmd.String()).Inc()
		d.metrics.EventProcessingDuration.WithLabelValues(cmd.String()).Observe(time.Since(start).Seconds())
	}()

	switch cmd {
	case CommandJoin:
		d.handleJoin(c, frame)
	case CommandWho:
		d.handleWho(c)
	case CommandLeave:
		return d.handleLeave(c)
	case CommandVersion:
		d.handleVersion(c)
	default:
		d.handleBroadcast(c, frame)
	}
	return ResultContinue
}

// handleJoin ignores a second JOIN from a registered client and a JOIN
// without a name.
func (d *Dispatcher) handleJoin(c *Client, frame []byte) {
	if d.reg.IsRegistered(c.Slot) {
		return
	}
	_, name := FirstTwoWords(frame)
	name = TruncateName(name, d.reg.MaxNameLen())
	if name == "" {
		return
	}
	if err := d.reg.SetName(c.Slot, name); err != nil {
		d.logger.Debug("join rejected", "slot", c.Slot, "conn_id", c.ID, "error", err)
		return
	}

	d.logger.Info("user joined", "slot", c.Slot, "conn_id", c.ID, "name", name)
	d.reg.DeliverTo(name+" has joined the chat", c.Slot)
}

func (d *Dispatcher) handleWho(c *Client) {
	if !d.reg.IsRegistered(c.Slot) {
		return
	}
	if _, err := d.reg.ReplyNames(c.Slot); err != nil && err != ErrNotRegistered {
		d.logger.Debug("who reply failed", "slot", c.Slot, "conn_id", c.ID, "error", err)
	}
}

func (d *Dispatcher) handleLeave(c *Client) Result {
	if name, ok := d.reg.LookupName(c.Slot); ok {
		d.logger.Info("user left", "slot", c.Slot, "conn_id", c.ID, "name", name)
		d.reg.DeliverTo(name+" has left the chat", c.Slot)
	}
	d.reg.ReleaseConn(c.Slot, c.Conn)
	return ResultLeave
}

func (d *Dispatcher) handleVersion(c *Client) {
	if !d.reg.IsRegistered(c.Slot) {
		return
	}
	if err := d.reg.DeliverToSingle(d.version, c.Slot); err != nil {
		d.logger.Debug("version reply failed", "slot", c.Slot, "conn_id", c.ID, "error", err)
	}
}

func (d *Dispatcher) handleBroadcast(c *Client, frame []byte) {
	d.reg.BroadcastFrom(c.Slot, string(trimLineEnd(frame)))
}

// trimLineEnd strips one trailing "\n" or "\r\n"; the broadcast engine
// appends its own terminator.
func trimLineEnd(frame []byte) []byte {
	frame = bytes.TrimSuffix(frame, []byte("\n"))
	return bytes.TrimSuffix(frame, []byte("\r"))
}
