package relay

import (
	"errors"
	"fmt"
)

// ErrTokenTooLong is returned by WriteToken for tokens that do not fit the
// one-byte length prefix.
var ErrTokenTooLong = errors.New("relay: session token longer than 255 bytes")

// BindError means the listener could not be bound. It is fatal to Run.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string { return fmt.Sprintf("bind %s: %v", e.Addr, e.Err) }
func (e *BindError) Unwrap() error { return e.Err }

// AcceptError means the listener stopped accepting. It is fatal to Run.
type AcceptError struct {
	Err error
}

func (e *AcceptError) Error() string { return fmt.Sprintf("accept: %v", e.Err) }
func (e *AcceptError) Unwrap() error { return e.Err }

// HandshakeError means a peer did not send a well-formed session token. The
// connection is dropped without touching the session state.
type HandshakeError struct {
	Err error
}

func (e *HandshakeError) Error() string { return fmt.Sprintf("handshake: %v", e.Err) }
func (e *HandshakeError) Unwrap() error { return e.Err }

// RelayIOError is a read or write failure after the handshake. It ends the
// connection exactly like a peer-initiated close.
type RelayIOError struct {
	Op    string // "read" or "write"
	Token string
	Err   error
}

func (e *RelayIOError) Error() string {
	return fmt.Sprintf("relay %s (%s): %v", e.Op, e.Token, e.Err)
}

func (e *RelayIOError) Unwrap() error { return e.Err }
