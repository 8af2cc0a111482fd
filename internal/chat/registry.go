package chat

import (
	"errors"
	"iter"
	"log/slog"
	"net"
	"sync"
	"time"
)

// MaxCapacity bounds the slot table. Capacity is configurable but must stay
// finite and is checked when the registry is built.
const MaxCapacity = 1024

const (
	DefaultCapacity   = 20
	DefaultMaxNameLen = 20
)

type RegistryOptions struct {
	Capacity     int
	MaxNameLen   int
	WriteTimeout time.Duration
	Logger       *slog.Logger
	Metrics      *Metrics
}

// slot pairs a connection with an optional name. A name is only ever set
// while conn is non-nil, and both are cleared together.
type slot struct {
	conn       net.Conn
	name       string
	registered bool
}

func (s *slot) occupied() bool { return s.conn != nil }

// Registry is the fixed-capacity table of client slots shared by every
// session. One mutex guards the whole table; every exported method is a
// single atomic operation with respect to the others.
type Registry struct {
	mu           sync.Mutex
	slots        []slot
	maxNameLen   int
	writeTimeout time.Duration
	logger       *slog.Logger
	metrics      *Metrics
}

// Stats is a point-in-time view of registry occupancy.
type Stats struct {
	Capacity   int `json:"capacity"`
	Occupied   int `json:"occupied"`
	Registered int `json:"registered"`
}

func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.Capacity < 1 || opts.Capacity > MaxCapacity {
		return nil, ErrInvalidCapacity
	}
	if opts.MaxNameLen < 1 {
		return nil, ErrInvalidNameLen
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	return &Registry{
		slots:        make([]slot, opts.Capacity),
		maxNameLen:   opts.MaxNameLen,
		writeTimeout: opts.WriteTimeout,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
	}, nil
}

func (r *Registry) Capacity() int { return len(r.slots) }

func (r *Registry) MaxNameLen() int { return r.maxNameLen }

// Allocate claims the lowest-indexed free slot for conn.
func (r *Registry) Allocate(conn net.Conn) (int, error) {
	if conn == nil {
		return -1, errors.New("allocate: nil connection")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.slots {
		if !r.slots[i].occupied() {
			r.slots[i] = slot{conn: conn}
			r.metrics.ConnectedClients.Inc()
			return i, nil
		}
	}
	return -1, ErrRegistryFull
}

func (r *Registry) LookupName(i int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nameLocked(i)
}

func (r *Registry) nameLocked(i int) (string, bool) {
	if i < 0 || i >= len(r.slots) || !r.slots[i].registered {
		return "", false
	}
	return r.slots[i].name, true
}

func (r *Registry) IsRegistered(i int) bool {
	_, ok := r.LookupName(i)
	return ok
}

// SetName registers name at an occupied, unregistered slot. The name is
// truncated to the configured maximum length.
func (r *Registry) SetName(i int, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i < 0 || i >= len(r.slots) {
		return ErrSlotOutOfRange
	}
	s := &r.slots[i]
	if !s.occupied() {
		return ErrSlotVacant
	}
	if s.registered {
		return ErrAlreadyRegistered
	}
	s.name = TruncateName(name, r.maxNameLen)
	s.registered = true
	r.metrics.RegisteredClients.Inc()
	return nil
}

type registeredEntry struct {
	index int
	name  string
}

// Registered yields (index, name) for every registered slot in index order.
// The table is copied under the lock before the first value is yielded, so
// the sequence reflects one point in time.
func (r *Registry) Registered() iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		for _, e := range r.snapshot() {
			if !yield(e.index, e.name) {
				return
			}
		}
	}
}

func (r *Registry) snapshot() []registeredEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]registeredEntry, 0, len(r.slots))
	for i := range r.slots {
		if r.slots[i].registered {
			entries = append(entries, registeredEntry{index: i, name: r.slots[i].name})
		}
	}
	return entries
}

// Release clears slot i and closes its connection. Releasing a free slot is
// a no-op and reports false.
func (r *Registry) Release(i int) bool {
	r.mu.Lock()
	conn, ok := r.releaseLocked(i, nil)
	r.mu.Unlock()
	if ok {
		r.closeConn(i, conn)
	}
	return ok
}

// ReleaseConn releases slot i only while it still holds conn. A session uses
// it on exit so that a slot already freed and handed to a new connection is
// left alone.
func (r *Registry) ReleaseConn(i int, conn net.Conn) bool {
	if conn == nil {
		return false
	}
	r.mu.Lock()
	old, ok := r.releaseLocked(i, conn)
	r.mu.Unlock()
	if ok {
		r.closeConn(i, old)
	}
	return ok
}

// ReleaseAll frees every occupied slot. Used on shutdown to unblock session
// reads.
func (r *Registry) ReleaseAll() int {
	r.mu.Lock()
	conns := make(map[int]net.Conn)
	for i := range r.slots {
		if conn, ok := r.releaseLocked(i, nil); ok {
			conns[i] = conn
		}
	}
	r.mu.Unlock()

	for i, conn := range conns {
		r.closeConn(i, conn)
	}
	return len(conns)
}

func (r *Registry) releaseLocked(i int, want net.Conn) (net.Conn, bool) {
	if i < 0 || i >= len(r.slots) {
		return nil, false
	}
	s := &r.slots[i]
	if !s.occupied() || (want != nil && s.conn != want) {
		return nil, false
	}
	conn := s.conn
	if s.registered {
		r.metrics.RegisteredClients.Dec()
	}
	r.metrics.ConnectedClients.Dec()
	*s = slot{}
	return conn, true
}

func (r *Registry) closeConn(i int, conn net.Conn) {
	if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
		r.logger.Debug("close connection", "slot", i, "error", err)
	}
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{Capacity: len(r.slots)}
	for i := range r.slots {
		if r.slots[i].occupied() {
			st.Occupied++
		}
		if r.slots[i].registered {
			st.Registered++
		}
	}
	return st
}
