package ws

import (
	"github.com/echorelay/backend/internal/session"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgEvent    MessageType = "event"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Seq     uint64      `json:"seq"`
	Payload interface{} `json:"payload"`
}

type SnapshotPayload struct {
	Session session.Snapshot `json:"session"`
}

type EventPayload struct {
	Event session.Event `json:"event"`
}
