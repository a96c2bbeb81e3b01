// Package client implements the player side of the relay protocol: it sends
// the session token handshake and then echoes input lines through the relay.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"syscall"

	"github.com/echorelay/backend/internal/relay"
	"github.com/google/uuid"
)

// ErrServerClosed is returned by Run when the relay closes the connection
// before echoing a line back.
var ErrServerClosed = errors.New("client: server closed the connection")

type Player struct {
	conn   net.Conn
	token  string
	logger *slog.Logger
	out    io.Writer
}

type Option func(*Player)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Player) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithOutput sets where echoed lines are written. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(p *Player) { p.out = w }
}

// Dial connects to the relay at addr and completes the handshake. An empty
// token is replaced by a fresh UUID.
func Dial(ctx context.Context, addr, token string, opts ...Option) (*Player, error) {
	if token == "" {
		token = uuid.NewString()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if err := relay.WriteToken(conn, token); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send token: %w", err)
	}

	p := &Player{
		conn:   conn,
		token:  token,
		logger: slog.Default(),
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("token", token, "remote", conn.RemoteAddr().String())
	p.logger.Info("connected to relay")
	return p, nil
}

func (p *Player) Token() string { return p.token }

func (p *Player) Close() error { return p.conn.Close() }

// Run sends each line of in to the relay and writes the echo to the output.
// It returns nil when in is exhausted, ErrServerClosed if the relay hangs up,
// or ctx.Err() once ctx is done. The connection is closed on return.
func (p *Player) Run(ctx context.Context, in io.Reader) error {
	defer p.conn.Close()
	stop := context.AfterFunc(ctx, func() { p.conn.Close() })
	defer stop()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read input: %w", err)
					}
				default:
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}
			if err := p.echo(line); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
		}
	}
}

func (p *Player) echo(line string) error {
	msg := []byte(line + "\n")
	if _, err := p.conn.Write(msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	buf := make([]byte, len(msg))
	if _, err := io.ReadFull(p.conn, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) {
			return ErrServerClosed
		}
		return fmt.Errorf("receive: %w", err)
	}
	p.logger.Debug("echo received", "bytes", len(buf))

	if _, err := p.out.Write(buf); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
