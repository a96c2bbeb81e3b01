package session

import "context"

// Callbacks is the boundary to the orchestrator that owns session placement.
// The server borrows a Callbacks value for the duration of a run and awaits
// every call, but never inspects a result: integrations are expected to log
// and swallow their own failures.
type Callbacks interface {
	// BeginSession is called once, after the listener is bound and before
	// any connection is accepted.
	BeginSession(ctx context.Context)
	// EndSession is called once when the session is terminated by the idle
	// timeout. It is not called on shutdown.
	EndSession(ctx context.Context)
	// AcceptPlayer is called once per connection after a valid handshake.
	AcceptPlayer(ctx context.Context, token string)
	// RemovePlayer is called once per accepted connection when its relay
	// loop ends.
	RemovePlayer(ctx context.Context, token string)
}

// NopCallbacks ignores every lifecycle transition.
type NopCallbacks struct{}

func (NopCallbacks) BeginSession(context.Context)         {}
func (NopCallbacks) EndSession(context.Context)           {}
func (NopCallbacks) AcceptPlayer(context.Context, string) {}
func (NopCallbacks) RemovePlayer(context.Context, string) {}

// CallbackFuncs adapts plain functions to Callbacks. Nil fields are no-ops,
// so callers only set the hooks they care about.
type CallbackFuncs struct {
	OnBeginSession func(ctx context.Context)
	OnEndSession   func(ctx context.Context)
	OnAcceptPlayer func(ctx context.Context, token string)
	OnRemovePlayer func(ctx context.Context, token string)
}

func (f CallbackFuncs) BeginSession(ctx context.Context) {
	if f.OnBeginSession != nil {
		f.OnBeginSession(ctx)
	}
}

func (f CallbackFuncs) EndSession(ctx context.Context) {
	if f.OnEndSession != nil {
		f.OnEndSession(ctx)
	}
}

func (f CallbackFuncs) AcceptPlayer(ctx context.Context, token string) {
	if f.OnAcceptPlayer != nil {
		f.OnAcceptPlayer(ctx, token)
	}
}

func (f CallbackFuncs) RemovePlayer(ctx context.Context, token string) {
	if f.OnRemovePlayer != nil {
		f.OnRemovePlayer(ctx, token)
	}
}

type multiCallbacks []Callbacks

// Multi returns Callbacks that invokes each of cbs in order. Nil entries are
// skipped.
func Multi(cbs ...Callbacks) Callbacks {
	out := make(multiCallbacks, 0, len(cbs))
	for _, cb := range cbs {
		if cb != nil {
			out = append(out, cb)
		}
	}
	return out
}

func (m multiCallbacks) BeginSession(ctx context.Context) {
	for _, cb := range m {
		cb.BeginSession(ctx)
	}
}

func (m multiCallbacks) EndSession(ctx context.Context) {
	for _, cb := range m {
		cb.EndSession(ctx)
	}
}

func (m multiCallbacks) AcceptPlayer(ctx context.Context, token string) {
	for _, cb := range m {
		cb.AcceptPlayer(ctx, token)
	}
}

func (m multiCallbacks) RemovePlayer(ctx context.Context, token string) {
	for _, cb := range m {
		cb.RemovePlayer(ctx, token)
	}
}
