package chat

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"
)

type Options struct {
	Addr           string
	Capacity       int
	MaxNameLen     int
	MaxMessageSize int
	Version        string
	WriteTimeout   time.Duration
	// AcceptRate limits new connections per second; zero means unlimited.
	AcceptRate  float64
	AcceptBurst int
	Console     Console
	Logger      *slog.Logger
	Metrics     *Metrics
}

type Server struct {
	addr       string
	logger     *slog.Logger
	metrics    *Metrics
	reg        *Registry
	dispatcher *Dispatcher
	console    Console
	bufSize    int
	limiter    *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu       sync.Mutex
	listener net.Listener
}

func NewServer(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Capacity == 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.MaxNameLen == 0 {
		opts.MaxNameLen = DefaultMaxNameLen
	}
	reg, err := NewRegistry(RegistryOptions{
		Capacity:     opts.Capacity,
		MaxNameLen:   opts.MaxNameLen,
		WriteTimeout: opts.WriteTimeout,
		Logger:       opts.Logger,
		Metrics:      opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if opts.AcceptRate > 0 {
		limit = rate.Limit(opts.AcceptRate)
	}
	if opts.AcceptBurst < 1 {
		opts.AcceptBurst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    opts.Addr,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		reg:     reg,
		dispatcher: NewDispatcher(reg, DispatcherOptions{
			Version: opts.Version,
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
		}),
		console: opts.Console,
		bufSize: opts.MaxMessageSize,
		limiter: rate.NewLimiter(limit, opts.AcceptBurst),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

func (s *Server) Registry() *Registry { return s.reg }

// Addr returns the bound listener address once Start has succeeded.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go s.acceptLoop(ln)

	s.logger.Info("server started", "addr", ln.Addr().String(), "capacity", s.reg.Capacity())
	return nil
}

// Stop closes the listener, releases every slot and waits for all sessions
// to return.
func (s *Server) Stop() error {
	s.logger.Info("shutting down")
	s.cancel()

	var err error
	s.mu.Lock()
	if s.listener != nil {
		if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	s.mu.Unlock()

	released := s.reg.ReleaseAll()
	s.wg.Wait()

	s.logger.Info("shutdown complete", "released", released)
	return err
}

// Serve admits conn into the registry and runs its session until it ends.
// It is the entry point for transports other than the TCP listener.
func (s *Server) Serve(conn net.Conn) error {
	sess, err := s.admit(conn)
	if err != nil {
		return err
	}
	done := make(chan struct{})
	s.wg.Go(func() {
		defer close(done)
		sess.Run(s.ctx)
	})
	<-done
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		if err := s.limiter.Wait(s.ctx); err != nil {
			return
		}
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Error("accept failed", "error", err)
			}
			return
		}

		sess, err := s.admit(conn)
		if err != nil {
			continue
		}
		s.wg.Go(func() { sess.Run(s.ctx) })
	}
}

func (s *Server) admit(conn net.Conn) (*Session, error) {
	addr := conn.RemoteAddr().String()
	if s.ctx.Err() != nil {
		_ = conn.Close()
		return nil, net.ErrClosed
	}

	idx, err := s.reg.Allocate(conn)
	if err != nil {
		s.metrics.RejectedConnections.Inc()
		s.logger.Warn("connection rejected", "addr", addr, "error", err)
		_ = conn.Close()
		return nil, err
	}

	c := &Client{
		ID:   uuid.NewString(),
		Slot: idx,
		Conn: conn,
		Addr: addr,
	}
	s.logger.Info("client connected", "slot", idx, "conn_id", c.ID, "addr", addr)
	return NewSession(c, s.reg, s.dispatcher, s.console, s.bufSize, s.logger), nil
}
