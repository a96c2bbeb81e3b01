package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/echorelay/backend/internal/session"
	"github.com/gorilla/websocket"
)

// ErrTooManyConnections is returned by AddClient when the observer limit is
// reached.
var ErrTooManyConnections = errors.New("ws: too many connections")

// ErrStopped is returned by AddClient once Stop has been called.
var ErrStopped = errors.New("ws: broadcaster stopped")

const clientSendBuffer = 64

// SnapshotFunc returns the current session snapshot.
type SnapshotFunc func() session.Snapshot

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

// Broadcaster fans session events and periodic snapshots out to websocket
// observers. It implements session.Observer.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	snapshot SnapshotFunc
	privacy  *session.PrivacyFilter
	maxConns int
	logger   *slog.Logger
	seq      atomic.Uint64

	snapshotTicker *time.Ticker
	stop           chan struct{}
	stopOnce       sync.Once
	stopped        bool // guarded by mu
}

// NewBroadcaster starts a broadcaster that sends a snapshot to every client
// each snapshotInterval. maxConns <= 0 means unlimited.
func NewBroadcaster(snapshot SnapshotFunc, snapshotInterval time.Duration, maxConns int, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broadcaster{
		clients:  make(map[*client]bool),
		snapshot: snapshot,
		privacy:  &session.PrivacyFilter{},
		maxConns: maxConns,
		logger:   logger,
		stop:     make(chan struct{}),
	}

	b.snapshotTicker = time.NewTicker(snapshotInterval)
	go b.snapshotLoop()

	return b
}

// SetPrivacyFilter replaces the filter applied to outgoing messages.
func (b *Broadcaster) SetPrivacyFilter(f *session.PrivacyFilter) {
	if f == nil {
		f = &session.PrivacyFilter{}
	}
	b.mu.Lock()
	b.privacy = f
	b.mu.Unlock()
}

func (b *Broadcaster) filter() *session.PrivacyFilter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.privacy
}

// Snapshot returns the current session snapshot with the privacy filter
// applied.
func (b *Broadcaster) Snapshot() session.Snapshot {
	return b.filter().ApplySnapshot(b.snapshot())
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	c := &client{
		conn: conn,
		b:    b,
		send: make(chan []byte, clientSendBuffer),
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil, ErrStopped
	}
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	b.clients[c] = true
	b.mu.Unlock()

	go c.writePump()

	// Stop or RemoveClient may have closed c.send by now.
	if data, err := b.encode(MsgSnapshot, SnapshotPayload{Session: b.Snapshot()}); err == nil {
		b.send(c, data)
	}

	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

// Observe broadcasts a lifecycle event. It never blocks on slow clients.
func (b *Broadcaster) Observe(e session.Event) {
	b.broadcast(MsgEvent, EventPayload{Event: b.filter().ApplyEvent(e)})
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.snapshotTicker.C:
			b.broadcast(MsgSnapshot, SnapshotPayload{Session: b.Snapshot()})
		case <-b.stop:
			return
		}
	}
}

func (b *Broadcaster) encode(t MessageType, payload interface{}) ([]byte, error) {
	msg := WSMessage{
		Type:    t,
		Seq:     b.seq.Add(1),
		Payload: payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("broadcast marshal error", "err", err)
		return nil, err
	}
	return data, nil
}

func (b *Broadcaster) broadcast(t MessageType, payload interface{}) {
	data, err := b.encode(t, payload)
	if err != nil {
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		b.send(c, data)
	}
}

// send queues data for c, disconnecting it if its buffer is full. The
// client may be removed concurrently, so the send is done under the read
// lock that guards close(c.send).
func (b *Broadcaster) send(c *client, data []byte) {
	b.mu.RLock()
	if !b.clients[c] {
		b.mu.RUnlock()
		return
	}
	select {
	case c.send <- data:
		b.mu.RUnlock()
	default:
		b.mu.RUnlock()
		b.logger.Warn("ws client too slow, disconnecting")
		b.RemoveClient(c)
	}
}

// Stop halts the snapshot loop and disconnects every client.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		b.snapshotTicker.Stop()
		close(b.stop)

		b.mu.Lock()
		b.stopped = true
		for c := range b.clients {
			delete(b.clients, c)
			close(c.send)
		}
		b.mu.Unlock()
	})
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
