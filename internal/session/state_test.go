package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recordingCallbacks counts every callback invocation.
type recordingCallbacks struct {
	mu       sync.Mutex
	begins   int
	ends     int
	accepted map[string]int
	removed  map[string]int
}

func newRecordingCallbacks() *recordingCallbacks {
	return &recordingCallbacks{
		accepted: make(map[string]int),
		removed:  make(map[string]int),
	}
}

func (r *recordingCallbacks) BeginSession(context.Context) {
	r.mu.Lock()
	r.begins++
	r.mu.Unlock()
}

func (r *recordingCallbacks) EndSession(context.Context) {
	r.mu.Lock()
	r.ends++
	r.mu.Unlock()
}

func (r *recordingCallbacks) AcceptPlayer(_ context.Context, token string) {
	r.mu.Lock()
	r.accepted[token]++
	r.mu.Unlock()
}

func (r *recordingCallbacks) RemovePlayer(_ context.Context, token string) {
	r.mu.Lock()
	r.removed[token]++
	r.mu.Unlock()
}

func TestNewStateDefaults(t *testing.T) {
	s := NewState(nil, 0)
	if s.ID() == "" {
		t.Error("ID() is empty, want generated id")
	}
	if got := s.PlayerCount(); got != 0 {
		t.Errorf("PlayerCount() = %d, want 0", got)
	}
	if got := s.Timeout(); got != 0 {
		t.Errorf("Timeout() = %v, want 0", got)
	}
	snap := s.Snapshot()
	if snap.Status != Starting {
		t.Errorf("Status = %v, want starting", snap.Status)
	}

	// Nil callbacks must behave as no-ops.
	s.Begin(context.Background())
	s.Accept(context.Background(), "a")
	s.Remove(context.Background(), "a")
}

func TestNewStateWithID(t *testing.T) {
	s := NewState(nil, time.Minute, WithID("fixed"))
	if s.ID() != "fixed" {
		t.Errorf("ID() = %q, want %q", s.ID(), "fixed")
	}
	if s.Timeout() != time.Minute {
		t.Errorf("Timeout() = %v, want 1m", s.Timeout())
	}
}

func TestAcceptAndRemove(t *testing.T) {
	cb := newRecordingCallbacks()
	s := NewState(cb, time.Minute)
	ctx := context.Background()

	s.Accept(ctx, "abc")
	if got := s.PlayerCount(); got != 1 {
		t.Fatalf("PlayerCount() after Accept = %d, want 1", got)
	}
	s.Remove(ctx, "abc")
	if got := s.PlayerCount(); got != 0 {
		t.Fatalf("PlayerCount() after Remove = %d, want 0", got)
	}

	if cb.accepted["abc"] != 1 {
		t.Errorf("AcceptPlayer(abc) called %d times, want 1", cb.accepted["abc"])
	}
	if cb.removed["abc"] != 1 {
		t.Errorf("RemovePlayer(abc) called %d times, want 1", cb.removed["abc"])
	}
}

func TestRemoveNeverGoesNegative(t *testing.T) {
	s := NewState(nil, 0)
	s.Remove(context.Background(), "ghost")
	if got := s.PlayerCount(); got != 0 {
		t.Errorf("PlayerCount() = %d, want 0", got)
	}
}

// mustPanic runs f and fails the test if it returns normally.
func mustPanic(t *testing.T, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Error("call did not panic")
		}
	}()
	f()
}

// countWithin reads PlayerCount on another goroutine so a held lock fails
// the test instead of hanging it.
func countWithin(t *testing.T, s *State) int {
	t.Helper()
	got := make(chan int, 1)
	go func() { got <- s.PlayerCount() }()
	select {
	case n := <-got:
		return n
	case <-time.After(time.Second):
		t.Fatal("PlayerCount blocked: state lock still held")
		return 0
	}
}

func TestAcceptCallbackPanic(t *testing.T) {
	cb := CallbackFuncs{OnAcceptPlayer: func(_ context.Context, token string) {
		if token == "boom" {
			panic("accept failed")
		}
	}}
	var events []EventType
	s := NewState(cb, 0, WithObservers(ObserverFunc(func(e Event) { events = append(events, e.Type) })))

	mustPanic(t, func() { s.Accept(context.Background(), "boom") })

	if n := countWithin(t, s); n != 0 {
		t.Errorf("PlayerCount() = %d after panicking accept, want 0", n)
	}
	if len(events) != 0 {
		t.Errorf("observers saw %v for a rejected player, want nothing", events)
	}

	s.Accept(context.Background(), "ok")
	if n := countWithin(t, s); n != 1 {
		t.Errorf("PlayerCount() = %d, want 1", n)
	}
}

func TestRemoveCallbackPanic(t *testing.T) {
	cb := CallbackFuncs{OnRemovePlayer: func(context.Context, string) { panic("remove failed") }}
	s := NewState(cb, 0)
	s.Accept(context.Background(), "a")

	mustPanic(t, func() { s.Remove(context.Background(), "a") })

	if n := countWithin(t, s); n != 0 {
		t.Errorf("PlayerCount() = %d after panicking remove, want 0", n)
	}
}

func TestConcurrentAcceptRemove(t *testing.T) {
	cb := newRecordingCallbacks()
	s := NewState(cb, time.Minute)
	ctx := context.Background()

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token := fmt.Sprintf("p-%d", i)
			s.Accept(ctx, token)
			s.Remove(ctx, token)
		}(i)
	}
	wg.Wait()

	if got := s.PlayerCount(); got != 0 {
		t.Errorf("PlayerCount() = %d after all removed, want 0", got)
	}
	if len(cb.accepted) != n || len(cb.removed) != n {
		t.Errorf("accepted=%d removed=%d, want %d each", len(cb.accepted), len(cb.removed), n)
	}
	for token, count := range cb.accepted {
		if count != 1 || cb.removed[token] != 1 {
			t.Errorf("token %s: accepted %d removed %d, want 1 each", token, count, cb.removed[token])
		}
	}
}

func TestTimedOut(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		players int
		elapsed time.Duration
		want    bool
	}{
		{"no timeout configured", 0, 0, time.Hour, false},
		{"negative timeout disables", -time.Second, 0, time.Hour, false},
		{"not yet elapsed", 2 * time.Second, 0, time.Second, false},
		{"exactly elapsed", 2 * time.Second, 0, 2 * time.Second, true},
		{"long elapsed", 2 * time.Second, 0, time.Minute, true},
		{"players connected", 2 * time.Second, 1, time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			s := NewState(nil, tt.timeout, WithClock(clock.Now))
			for i := 0; i < tt.players; i++ {
				s.Accept(context.Background(), fmt.Sprintf("p-%d", i))
			}
			clock.Advance(tt.elapsed)
			if got := s.TimedOut(); got != tt.want {
				t.Errorf("TimedOut() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimedOutResetByActivity(t *testing.T) {
	clock := newFakeClock()
	s := NewState(nil, 10*time.Second, WithClock(clock.Now))
	ctx := context.Background()

	clock.Advance(8 * time.Second)
	s.Accept(ctx, "a")
	clock.Advance(time.Second)
	s.Remove(ctx, "a")

	// Eligibility restarts from the removal, not from construction.
	clock.Advance(9 * time.Second)
	if s.TimedOut() {
		t.Fatal("TimedOut() = true 9s after last activity, want false")
	}
	clock.Advance(time.Second)
	if !s.TimedOut() {
		t.Fatal("TimedOut() = false 10s after last activity, want true")
	}
}

func TestEndIfIdle(t *testing.T) {
	clock := newFakeClock()
	cb := newRecordingCallbacks()
	s := NewState(cb, 2*time.Second, WithClock(clock.Now))
	ctx := context.Background()
	s.Begin(ctx)

	if s.EndIfIdle(ctx) {
		t.Fatal("EndIfIdle() = true before timeout")
	}
	clock.Advance(2 * time.Second)
	if !s.EndIfIdle(ctx) {
		t.Fatal("EndIfIdle() = false after timeout")
	}
	if s.EndIfIdle(ctx) {
		t.Error("EndIfIdle() = true on an already ended session")
	}
	if cb.ends != 1 {
		t.Errorf("EndSession called %d times, want 1", cb.ends)
	}
	if got := s.Snapshot().Status; got != Ended {
		t.Errorf("Status = %v, want ended", got)
	}
}

func TestShutdownSkipsEndSession(t *testing.T) {
	cb := newRecordingCallbacks()
	s := NewState(cb, time.Second)
	s.Begin(context.Background())
	s.Shutdown()
	s.Shutdown()

	if cb.ends != 0 {
		t.Errorf("EndSession called %d times on shutdown, want 0", cb.ends)
	}
	if got := s.Snapshot().Status; got != Stopped {
		t.Errorf("Status = %v, want stopped", got)
	}
}

func TestObserversReceiveTransitions(t *testing.T) {
	var mu sync.Mutex
	var events []Event
	obs := ObserverFunc(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	clock := newFakeClock()
	s := NewState(nil, time.Second, WithClock(clock.Now), WithObservers(obs), WithID("sess"))
	ctx := context.Background()

	s.Begin(ctx)
	s.Accept(ctx, "a")
	s.Accept(ctx, "b")
	s.Remove(ctx, "a")
	s.Remove(ctx, "b")
	clock.Advance(time.Second)
	s.EndIfIdle(ctx)

	want := []struct {
		typ   EventType
		token string
		count int
	}{
		{EventSessionBegin, "", 0},
		{EventPlayerJoined, "a", 1},
		{EventPlayerJoined, "b", 2},
		{EventPlayerLeft, "a", 1},
		{EventPlayerLeft, "b", 0},
		{EventSessionEnd, "", 0},
	}

	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i, w := range want {
		e := events[i]
		if e.Type != w.typ || e.Token != w.token || e.PlayerCount != w.count {
			t.Errorf("events[%d] = {%v %q %d}, want {%v %q %d}", i, e.Type, e.Token, e.PlayerCount, w.typ, w.token, w.count)
		}
		if e.SessionID != "sess" {
			t.Errorf("events[%d].SessionID = %q, want sess", i, e.SessionID)
		}
	}
}

func TestObserverMayReadState(t *testing.T) {
	var s *State
	var seen int
	obs := ObserverFunc(func(e Event) {
		// Observers run after the lock is released.
		seen = s.PlayerCount()
	})
	s = NewState(nil, 0, WithObservers(obs))
	s.Accept(context.Background(), "a")
	if seen != 1 {
		t.Errorf("observer saw PlayerCount %d, want 1", seen)
	}
}

func TestAddObserver(t *testing.T) {
	s := NewState(nil, 0)
	s.Accept(context.Background(), "early")

	var got []EventType
	s.AddObserver(ObserverFunc(func(e Event) { got = append(got, e.Type) }))
	s.Remove(context.Background(), "early")
	s.Shutdown()

	want := []EventType{EventPlayerLeft, EventSessionShutdown}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestStatusMarshalJSON(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{Starting, `"starting"`},
		{Listening, `"listening"`},
		{Ended, `"ended"`},
		{Stopped, `"stopped"`},
		{Status(99), `"unknown"`},
	}

	for _, tt := range tests {
		data, err := json.Marshal(tt.status)
		if err != nil {
			t.Errorf("Marshal(%v) error: %v", tt.status, err)
			continue
		}
		if string(data) != tt.expected {
			t.Errorf("Marshal(%v) = %s, want %s", tt.status, data, tt.expected)
		}
	}
}

func TestEventTypeMarshalJSON(t *testing.T) {
	data, err := json.Marshal(Event{Type: EventPlayerLeft, Token: "x"})
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["type"] != "player_left" {
		t.Errorf("type = %v, want player_left", decoded["type"])
	}
}
