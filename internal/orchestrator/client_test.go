package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"
)

type failingClient struct {
	err   error
	calls []string
}

func (f *failingClient) ActivateSession(context.Context) error {
	f.calls = append(f.calls, "activate")
	return f.err
}

func (f *failingClient) ProcessEnding(context.Context) error {
	f.calls = append(f.calls, "ending")
	return f.err
}

func (f *failingClient) AcceptPlayerSession(_ context.Context, id string) error {
	f.calls = append(f.calls, "accept:"+id)
	return f.err
}

func (f *failingClient) RemovePlayerSession(_ context.Context, id string) error {
	f.calls = append(f.calls, "remove:"+id)
	return f.err
}

func TestCallbacksForwardToClient(t *testing.T) {
	client := &failingClient{}
	cb := NewCallbacks(client, quietLogger(), nil)
	ctx := context.Background()

	cb.BeginSession(ctx)
	cb.AcceptPlayer(ctx, "abc")
	cb.RemovePlayer(ctx, "abc")
	cb.EndSession(ctx)

	want := []string{"activate", "accept:abc", "remove:abc", "ending"}
	if !slices.Equal(client.calls, want) {
		t.Errorf("calls = %v, want %v", client.calls, want)
	}
	expectStatus(t, cb.Health(), StatusHealthy)
}

func TestCallbacksLogAndSwallowErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	client := &failingClient{err: errors.New("fleet unreachable")}
	cb := NewCallbacks(client, logger, NewCallHealth(2))

	cb.AcceptPlayer(context.Background(), "abc")
	for _, want := range []string{"orchestrator call failed", "accept player session", "token=abc"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log output missing %q:\n%s", want, buf.String())
		}
	}
	expectStatus(t, cb.Health(), StatusDegraded)

	cb.RemovePlayer(context.Background(), "abc")
	expectStatus(t, cb.Health(), StatusFailed)

	// A success resets the failure streak.
	client.err = nil
	cb.BeginSession(context.Background())
	expectStatus(t, cb.Health(), StatusHealthy)
}

func TestCallbacksWithLocal(t *testing.T) {
	local := NewLocal(true, quietLogger())
	cb := NewCallbacks(local, quietLogger(), nil)
	ctx := context.Background()

	cb.BeginSession(ctx)
	id := local.Reserve()
	cb.AcceptPlayer(ctx, id)
	if got := local.ActivePlayers(); !slices.Equal(got, []string{id}) {
		t.Errorf("ActivePlayers = %v, want [%s]", got, id)
	}

	cb.AcceptPlayer(ctx, "unreserved")
	expectStatus(t, cb.Health(), StatusDegraded)

	cb.RemovePlayer(ctx, id)
	if got := local.ActivePlayers(); len(got) != 0 {
		t.Errorf("ActivePlayers = %v, want none", got)
	}
}
