package relay

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestReadToken(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    string
		wantErr bool
	}{
		{name: "abc", input: []byte{0x03, 'a', 'b', 'c'}, want: "abc"},
		{name: "empty token", input: []byte{0x00}, want: ""},
		{name: "relay bytes after token are not consumed", input: []byte{0x02, 'h', 'i', 'x', 'y'}, want: "hi"},
		{name: "utf8 token", input: append([]byte{byte(len("jöß"))}, "jöß"...), want: "jöß"},
		{name: "no bytes", input: nil, wantErr: true},
		{name: "truncated token", input: []byte{0x05, 'a', 'b'}, wantErr: true},
		{name: "invalid utf8", input: []byte{0x02, 0xff, 0xfe}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadToken(bytes.NewReader(tt.input))
			if tt.wantErr {
				var hsErr *HandshakeError
				if !errors.As(err, &hsErr) {
					t.Fatalf("ReadToken error = %T %v, want *HandshakeError", err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadToken: %v", err)
			}
			if got != tt.want {
				t.Errorf("ReadToken = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadTokenLeavesPayload(t *testing.T) {
	r := bytes.NewReader([]byte{0x03, 'a', 'b', 'c', 'h', 'e', 'l', 'l', 'o'})
	token, err := ReadToken(r)
	if err != nil {
		t.Fatalf("ReadToken: %v", err)
	}
	if token != "abc" {
		t.Errorf("token = %q, want abc", token)
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read rest: %v", err)
	}
	if string(rest) != "hello" {
		t.Errorf("rest = %q, want hello", rest)
	}
}

func TestReadTokenWrapsCause(t *testing.T) {
	_, err := ReadToken(bytes.NewReader([]byte{0x04, 'a'}))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated token error = %v, want io.ErrUnexpectedEOF", err)
	}

	_, err = ReadToken(bytes.NewReader(nil))
	if !errors.Is(err, io.EOF) {
		t.Errorf("empty input error = %v, want io.EOF", err)
	}
}

func TestWriteToken(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteToken(&buf, "abc"); err != nil {
		t.Fatalf("WriteToken: %v", err)
	}
	if want := []byte{0x03, 'a', 'b', 'c'}; !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("encoded = %v, want %v", buf.Bytes(), want)
	}

	token, err := ReadToken(&buf)
	if err != nil {
		t.Fatalf("ReadToken: %v", err)
	}
	if token != "abc" {
		t.Errorf("token = %q, want abc", token)
	}
}

func TestWriteTokenLimits(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteToken(&buf, strings.Repeat("x", MaxTokenLen)); err != nil {
		t.Fatalf("WriteToken max length: %v", err)
	}
	if buf.Bytes()[0] != byte(MaxTokenLen) {
		t.Errorf("length prefix = %d, want %d", buf.Bytes()[0], MaxTokenLen)
	}

	buf.Reset()
	err := WriteToken(&buf, strings.Repeat("x", MaxTokenLen+1))
	if !errors.Is(err, ErrTokenTooLong) {
		t.Errorf("oversized token error = %v, want ErrTokenTooLong", err)
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %d bytes for an oversized token, want 0", buf.Len())
	}
}
