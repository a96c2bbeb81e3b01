// Package orchestrator connects the relay's lifecycle callbacks to the
// system that places sessions and reserves player slots.
package orchestrator

import (
	"context"
	"log/slog"

	"github.com/echorelay/backend/internal/session"
)

// Client is the orchestrator API the relay reports to. Player session ids
// are the tokens players send in their handshake.
type Client interface {
	// ActivateSession reports that the session is ready to accept players.
	ActivateSession(ctx context.Context) error
	// ProcessEnding reports that the session should be recycled.
	ProcessEnding(ctx context.Context) error
	// AcceptPlayerSession validates a player's reservation.
	AcceptPlayerSession(ctx context.Context, playerSessionID string) error
	// RemovePlayerSession releases a player's reservation.
	RemovePlayerSession(ctx context.Context, playerSessionID string) error
}

// Callbacks adapts a Client to session.Callbacks. Client errors are logged
// and counted in the call health; they never reach the relay.
type Callbacks struct {
	client Client
	logger *slog.Logger
	health *CallHealth
}

var _ session.Callbacks = (*Callbacks)(nil)

// NewCallbacks wraps client. health may be nil.
func NewCallbacks(client Client, logger *slog.Logger, health *CallHealth) *Callbacks {
	if logger == nil {
		logger = slog.Default()
	}
	if health == nil {
		health = NewCallHealth(DefaultFailureThreshold)
	}
	return &Callbacks{client: client, logger: logger, health: health}
}

func (c *Callbacks) Health() *CallHealth { return c.health }

func (c *Callbacks) BeginSession(ctx context.Context) {
	c.record("activate session", c.client.ActivateSession(ctx))
}

func (c *Callbacks) EndSession(ctx context.Context) {
	c.record("process ending", c.client.ProcessEnding(ctx))
}

func (c *Callbacks) AcceptPlayer(ctx context.Context, token string) {
	c.record("accept player session", c.client.AcceptPlayerSession(ctx, token), "token", token)
}

func (c *Callbacks) RemovePlayer(ctx context.Context, token string) {
	c.record("remove player session", c.client.RemovePlayerSession(ctx, token), "token", token)
}

func (c *Callbacks) record(op string, err error, attrs ...any) {
	if err == nil {
		c.health.recordSuccess()
		return
	}
	c.health.recordFailure(op, err)
	c.logger.Error("orchestrator call failed", append([]any{"op", op, "err", err}, attrs...)...)
}
