package relay

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// MaxTokenLen is the longest token the one-byte length prefix can describe.
const MaxTokenLen = 255

var errInvalidUTF8 = errors.New("token is not valid UTF-8")

// ReadToken reads the session token a peer sends right after connecting:
// one length byte L followed by exactly L bytes of UTF-8. Any failure is
// reported as a *HandshakeError.
func ReadToken(r io.Reader) (string, error) {
	var l [1]byte
	if _, err := io.ReadFull(r, l[:]); err != nil {
		return "", &HandshakeError{Err: fmt.Errorf("read length: %w", err)}
	}

	buf := make([]byte, int(l[0]))
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", &HandshakeError{Err: fmt.Errorf("read %d-byte token: %w", len(buf), err)}
	}

	if !utf8.Valid(buf) {
		return "", &HandshakeError{Err: errInvalidUTF8}
	}
	return string(buf), nil
}

// WriteToken writes token in the handshake format read by ReadToken.
func WriteToken(w io.Writer, token string) error {
	if len(token) > MaxTokenLen {
		return ErrTokenTooLong
	}
	buf := make([]byte, 0, len(token)+1)
	buf = append(buf, byte(len(token)))
	buf = append(buf, token...)
	_, err := w.Write(buf)
	return err
}
