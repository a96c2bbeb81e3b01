package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/echorelay/backend/internal/orchestrator"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

const shutdownTimeout = 5 * time.Second

// HealthChecker reports the relay's health for /healthz.
type HealthChecker interface {
	Check(ctx context.Context) orchestrator.HealthReport
}

type ServerOptions struct {
	AllowedOrigins []string
	// AuthToken guards /ws and /api/session. Empty disables auth.
	AuthToken string
	Health    HealthChecker
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Reserve, when set, backs POST /api/reservations.
	Reserve func() string
	Logger  *slog.Logger
}

// Server exposes the session status feed over HTTP and websocket.
type Server struct {
	broadcaster    *Broadcaster
	health         HealthChecker
	metrics        http.Handler
	reserve        func() string
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
	logger         *slog.Logger
}

func NewServer(broadcaster *Broadcaster, opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		broadcaster:    broadcaster,
		health:         opts.Health,
		metrics:        opts.Metrics,
		reserve:        opts.Reserve,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      opts.AuthToken,
		logger:         logger,
	}

	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// Routes builds the status router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/ws", s.handleWS)
	r.Get("/api/session", s.handleSession)
	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	if s.reserve != nil {
		r.Post("/api/reservations", s.handleReserve)
	}
	return r
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade error", "err", err)
		return
	}

	c, err := s.broadcaster.AddClient(conn)
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		s.logger.Warn("ws client rejected", "remote", r.RemoteAddr, "err", err)
		return
	}
	s.logger.Info("ws client connected", "remote", r.RemoteAddr)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			s.logger.Info("ws client disconnected", "remote", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.broadcaster.Snapshot())
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"playerSessionId": s.reserve()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.health == nil {
		json.NewEncoder(w).Encode(map[string]bool{"healthy": true})
		return
	}

	report := s.health.Check(r.Context())
	if !report.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(report)
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Echo-Relay-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}

	if parsed.Host == r.Host {
		return true
	}

	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts
// the server down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return serve(ctx, ln, handler, logger)
}

func serve(ctx context.Context, ln net.Listener, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("status server listening", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errc
	return nil
}
