package models

import (
	"time"
)

// MessageKind distinguishes how a timeline entry is rendered.
type MessageKind string

const (
	KindNarrative MessageKind = "narrative"
	KindAction    MessageKind = "action"
	KindSystem    MessageKind = "system"
)

// Message is one entry in the session timeline. Identity is the ID; the
// timeline is ordered by merge order, not strictly by CreatedAt.
type Message struct {
	ID        string      `json:"id"`
	Kind      MessageKind `json:"kind"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
	AudioURL  string      `json:"audio_url,omitempty"`
}
