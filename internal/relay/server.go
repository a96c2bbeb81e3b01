package relay

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/echorelay/backend/internal/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTickInterval is how often the idle check runs when the session has
// no timeout configured.
const DefaultTickInterval = 300 * time.Second

const tracerName = "github.com/echorelay/backend/internal/relay"

// Server accepts player connections for a single session run. A Server is
// used once: call Run, and discard it (and its session.State) afterwards.
type Server struct {
	addr             string
	state            *session.State
	silent           bool
	handshakeTimeout time.Duration
	logger           *slog.Logger
	stats            Stats
	tracer           trace.Tracer

	ready     chan struct{}
	readyOnce sync.Once

	preset   net.Listener
	mu       sync.Mutex
	listener net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithSilent disables logging of relayed bytes.
func WithSilent(silent bool) Option {
	return func(s *Server) { s.silent = silent }
}

// WithHandshakeTimeout bounds how long a peer may take to send its token.
// Zero (the default) waits indefinitely.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Server) { s.handshakeTimeout = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithStats(stats Stats) Option {
	return func(s *Server) {
		if stats != nil {
			s.stats = stats
		}
	}
}

// WithListener makes Run serve on ln instead of binding addr. Run closes ln
// when it returns.
func WithListener(ln net.Listener) Option {
	return func(s *Server) { s.preset = ln }
}

// WithTracerProvider sets the provider for per-connection spans. Defaults to
// the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewServer creates a server that will listen on addr (host:port) and
// record membership in state.
func NewServer(addr string, state *session.State, opts ...Option) *Server {
	s := &Server{
		addr:   addr,
		state:  state,
		logger: slog.Default(),
		stats:  nopStats{},
		tracer: otel.Tracer(tracerName),
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ready is closed once the listener is bound and the session has begun.
// It is never closed if Run fails to bind, so callers should also watch
// Run's result.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listener address, or nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run binds the listener and serves until the session idles out or ctx is
// cancelled. Cancellation is the shutdown signal: Run returns nil without
// invoking EndSession. Connections still open when Run returns are not
// closed; they drain as their peers disconnect.
//
// Run returns a *BindError if the address cannot be bound and an
// *AcceptError if the listener fails while serving.
func (s *Server) Run(ctx context.Context) error {
	ln := s.preset
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.addr)
		if err != nil {
			return &BindError{Addr: s.addr, Err: err}
		}
	}
	defer ln.Close()

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	logger := s.logger.With("session", s.state.ID())
	logger.Info("listening", "addr", ln.Addr().String())

	logger.Info("starting session")
	s.state.Begin(ctx)
	s.readyOnce.Do(func() { close(s.ready) })

	interval := s.state.Timeout()
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	conns := make(chan net.Conn)
	acceptErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go acceptLoop(ln, conns, acceptErr, done)

	// Connection handlers outlive shutdown, so they must not inherit its
	// cancellation.
	connCtx := context.WithoutCancel(ctx)

	for {
		select {
		case conn := <-conns:
			logger.Info("new connection", "remote", conn.RemoteAddr().String())
			s.stats.ConnectionOpened()
			go s.serveConn(connCtx, conn)

		case err := <-acceptErr:
			return &AcceptError{Err: err}

		case <-ticker.C:
			if s.state.EndIfIdle(ctx) {
				logger.Info("session timed out, exiting")
				return nil
			}

		case <-ctx.Done():
			logger.Info("received shutdown, exiting")
			s.state.Shutdown()
			return nil
		}
	}
}

// acceptLoop feeds accepted connections to Run until the listener fails or
// done is closed.
func acceptLoop(ln net.Listener, conns chan<- net.Conn, errc chan<- error, done <-chan struct{}) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case errc <- err:
			case <-done:
			}
			return
		}

		select {
		case conns <- conn:
		case <-done:
			conn.Close()
			return
		}
	}
}
