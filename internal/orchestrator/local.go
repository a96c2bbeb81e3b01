package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrUnknownReservation = errors.New("orchestrator: unknown player session")
	ErrPlayerNotActive    = errors.New("orchestrator: player session not active")
	ErrPlayerActive       = errors.New("orchestrator: player session already active")
	ErrSessionNotActive   = errors.New("orchestrator: game session not active")
)

type ProcessStatus string

const (
	ProcessIdle        ProcessStatus = "idle"
	ProcessActive      ProcessStatus = "active"
	ProcessTerminating ProcessStatus = "terminating"
)

// Local is an in-process orchestrator. It keeps the reservation book a
// fleet manager would keep: player session ids are issued by Reserve and
// validated when the player connects. In non-strict mode any token is
// admitted, which is what a standalone dedicated server wants.
type Local struct {
	mu       sync.Mutex
	strict   bool
	status   ProcessStatus
	reserved map[string]bool
	active   map[string]bool
	logger   *slog.Logger
}

var _ Client = (*Local)(nil)

func NewLocal(strict bool, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		strict:   strict,
		status:   ProcessIdle,
		reserved: make(map[string]bool),
		active:   make(map[string]bool),
		logger:   logger,
	}
}

// Reserve issues a new player session id.
func (l *Local) Reserve() string {
	id := "psess-" + uuid.NewString()
	l.mu.Lock()
	l.reserved[id] = true
	l.mu.Unlock()
	return id
}

func (l *Local) ActivateSession(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status != ProcessIdle {
		return fmt.Errorf("activate session: process is %s", l.status)
	}
	l.status = ProcessActive
	l.logger.Info("game session activated")
	return nil
}

func (l *Local) ProcessEnding(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = ProcessTerminating
	l.logger.Info("process ending", "active_players", len(l.active))
	return nil
}

func (l *Local) AcceptPlayerSession(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status != ProcessActive {
		return ErrSessionNotActive
	}
	if l.active[id] {
		return fmt.Errorf("%w: %s", ErrPlayerActive, id)
	}
	if l.strict && !l.reserved[id] {
		return fmt.Errorf("%w: %s", ErrUnknownReservation, id)
	}
	delete(l.reserved, id)
	l.active[id] = true
	return nil
}

func (l *Local) RemovePlayerSession(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active[id] {
		return fmt.Errorf("%w: %s", ErrPlayerNotActive, id)
	}
	delete(l.active, id)
	return nil
}

func (l *Local) Status() ProcessStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// ActivePlayers returns the accepted player session ids, sorted.
func (l *Local) ActivePlayers() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.active))
	for id := range l.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
