package session

import (
	"encoding/json"
	"time"
)

// EventType classifies session lifecycle events.
type EventType int

const (
	EventSessionBegin    EventType = iota // listener bound, accepting players
	EventPlayerJoined                     // handshake completed, player counted
	EventPlayerLeft                       // relay loop ended, player uncounted
	EventSessionEnd                       // idle timeout reached
	EventSessionShutdown                  // stopped by the shutdown signal
)

var eventTypeNames = map[EventType]string{
	EventSessionBegin:    "session_begin",
	EventPlayerJoined:    "player_joined",
	EventPlayerLeft:      "player_left",
	EventSessionEnd:      "session_end",
	EventSessionShutdown: "session_shutdown",
}

func (t EventType) String() string {
	if s, ok := eventTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

func (t EventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Event carries a lifecycle transition to observers.
type Event struct {
	Type        EventType `json:"type"`
	SessionID   string    `json:"sessionId"`
	Token       string    `json:"token,omitempty"` // set for player events only
	PlayerCount int       `json:"playerCount"`     // count after the transition
	At          time.Time `json:"at"`
}

// Observer receives lifecycle events. Observe is called outside the state's
// critical section and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }
