package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status int

const (
	Starting Status = iota
	Listening
	Ended
	Stopped
)

var statusNames = map[Status]string{
	Starting:  "starting",
	Listening: "listening",
	Ended:     "ended",
	Stopped:   "stopped",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// IsTerminal reports whether the session has finished, either by idle
// timeout or by shutdown.
func (s Status) IsTerminal() bool {
	return s == Ended || s == Stopped
}

// Snapshot is a point-in-time copy of the session state, safe to retain.
type Snapshot struct {
	ID           string        `json:"id"`
	Status       Status        `json:"status"`
	PlayerCount  int           `json:"playerCount"`
	StartedAt    time.Time     `json:"startedAt"`
	LastActivity time.Time     `json:"lastActivityAt"`
	Timeout      time.Duration `json:"timeout"`
}

// State is the shared record of one session run. Player counting and the
// accept/remove callbacks happen inside a single critical section, so the
// count can never be observed half-updated and callbacks for one session
// are serialized.
type State struct {
	mu           sync.RWMutex
	id           string
	callbacks    Callbacks
	timeout      time.Duration
	status       Status
	playerCount  int
	startedAt    time.Time
	lastActivity time.Time

	now       func() time.Time
	observers []Observer
}

// Option configures a State.
type Option func(*State)

// WithClock replaces time.Now. Used by tests to drive the idle timeout.
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// WithObservers registers observers notified of every transition.
func WithObservers(obs ...Observer) Option {
	return func(s *State) { s.observers = append(s.observers, obs...) }
}

// WithID sets the session identifier. Defaults to a random UUID.
func WithID(id string) Option {
	return func(s *State) { s.id = id }
}

// NewState creates the state for one session run. A timeout <= 0 disables
// the idle timeout. A nil callbacks value is replaced by NopCallbacks.
func NewState(callbacks Callbacks, timeout time.Duration, opts ...Option) *State {
	if callbacks == nil {
		callbacks = NopCallbacks{}
	}
	s := &State{
		callbacks: callbacks,
		timeout:   timeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	s.lastActivity = s.now()
	return s
}

func (s *State) ID() string { return s.id }

// Timeout returns the configured idle timeout, or 0 when there is none.
func (s *State) Timeout() time.Duration {
	if s.timeout <= 0 {
		return 0
	}
	return s.timeout
}

// Begin marks the session as listening and invokes BeginSession.
func (s *State) Begin(ctx context.Context) {
	s.publish(s.begin(ctx))
}

func (s *State) begin(ctx context.Context) Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callbacks.BeginSession(ctx)
	now := s.now()
	s.status = Listening
	s.startedAt = now
	s.lastActivity = now
	return s.eventLocked(EventSessionBegin, "")
}

// Accept records a player that completed the handshake. AcceptPlayer is
// awaited before the count changes; if it panics the player is not counted
// and the panic propagates with the lock released.
func (s *State) Accept(ctx context.Context, token string) {
	s.publish(s.accept(ctx, token))
}

func (s *State) accept(ctx context.Context, token string) Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callbacks.AcceptPlayer(ctx, token)
	s.playerCount++
	s.lastActivity = s.now()
	return s.eventLocked(EventPlayerJoined, token)
}

// Remove records the departure of a player previously passed to Accept.
// The count is decremented even if RemovePlayer panics.
func (s *State) Remove(ctx context.Context, token string) {
	s.publish(s.remove(ctx, token))
}

func (s *State) remove(ctx context.Context, token string) (ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if s.playerCount > 0 {
			s.playerCount--
		}
		s.lastActivity = s.now()
		ev = s.eventLocked(EventPlayerLeft, token)
	}()

	s.callbacks.RemovePlayer(ctx, token)
	return ev
}

// TimedOut reports whether the session has had no players for at least the
// idle timeout since the last count transition.
func (s *State) TimedOut() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timedOutLocked()
}

// EndIfIdle checks the idle timeout and, if it has been reached, invokes
// EndSession and marks the session ended. Check and callback share one
// critical section so no player can be accepted in between.
func (s *State) EndIfIdle(ctx context.Context) bool {
	ev, ended := s.endIfIdle(ctx)
	if ended {
		s.publish(ev)
	}
	return ended
}

func (s *State) endIfIdle(ctx context.Context) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.IsTerminal() || !s.timedOutLocked() {
		return Event{}, false
	}
	s.callbacks.EndSession(ctx)
	s.status = Ended
	return s.eventLocked(EventSessionEnd, ""), true
}

// Shutdown marks the session stopped. No callback is invoked.
func (s *State) Shutdown() {
	s.mu.Lock()
	if s.status.IsTerminal() {
		s.mu.Unlock()
		return
	}
	s.status = Stopped
	ev := s.eventLocked(EventSessionShutdown, "")
	s.mu.Unlock()

	s.publish(ev)
}

func (s *State) PlayerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playerCount
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:           s.id,
		Status:       s.status,
		PlayerCount:  s.playerCount,
		StartedAt:    s.startedAt,
		LastActivity: s.lastActivity,
		Timeout:      s.Timeout(),
	}
}

// timedOutLocked evaluates the idle condition. Caller must hold s.mu.
func (s *State) timedOutLocked() bool {
	if s.timeout <= 0 {
		return false
	}
	return s.playerCount == 0 && !s.now().Before(s.lastActivity.Add(s.timeout))
}

// eventLocked builds an event from the current state. Caller must hold s.mu.
func (s *State) eventLocked(t EventType, token string) Event {
	return Event{
		Type:        t,
		SessionID:   s.id,
		Token:       token,
		PlayerCount: s.playerCount,
		At:          s.now(),
	}
}

// AddObserver registers o for transitions published after the call.
func (s *State) AddObserver(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

func (s *State) publish(ev Event) {
	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()

	for _, o := range observers {
		o.Observe(ev)
	}
}
