package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const relayBufferSize = 1024

// serveConn supervises one connection. Failures and panics stay here; they
// never reach the server loop.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	logger := s.logger.With("remote", conn.RemoteAddr().String())

	defer func() {
		if r := recover(); r != nil {
			logger.Error("connection handler panicked", "panic", r)
		}
	}()
	defer conn.Close()

	if err := s.handleConn(ctx, conn, logger); err != nil {
		s.stats.RelayFailed()
		logger.Warn("connection error", "err", err)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn, logger *slog.Logger) error {
	ctx, span := s.tracer.Start(ctx, "relay.connection")
	defer span.End()
	span.SetAttributes(attribute.String("net.peer.addr", conn.RemoteAddr().String()))

	token, err := s.handshake(conn)
	if err != nil {
		s.stats.HandshakeFailed()
		span.RecordError(err)
		span.SetStatus(codes.Error, "handshake failed")
		logger.Info("connection dropped", "err", err)
		return nil
	}

	logger = logger.With("token", token)
	s.state.Accept(ctx, token)
	logger.Info("accepted player")

	defer func() {
		s.state.Remove(ctx, token)
		logger.Info("removed player")
	}()

	if err := s.relay(conn, token, logger); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "relay failed")
		return err
	}
	return nil
}

func (s *Server) handshake(conn net.Conn) (string, error) {
	if s.handshakeTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.handshakeTimeout)); err != nil {
			return "", &HandshakeError{Err: err}
		}
		defer conn.SetReadDeadline(time.Time{})
	}
	return ReadToken(conn)
}

// relay echoes everything the peer sends until it closes the connection.
func (s *Server) relay(conn net.Conn, token string, logger *slog.Logger) error {
	buf := make([]byte, relayBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if !s.silent {
				logger.Info("read", "data", string(buf[:n]))
			}
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return &RelayIOError{Op: "write", Token: token, Err: werr}
			}
			s.stats.BytesRelayed(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info("connection closed")
				return nil
			}
			return &RelayIOError{Op: "read", Token: token, Err: err}
		}
	}
}
