package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Role is the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Choice is a candidate reply the user may send verbatim.
type Choice struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Icon string `json:"icon,omitempty"`
}

// ChoiceCount is the number of choices in a well-formed reply that offers any.
const ChoiceCount = 3

// Message is one entry of the conversation history.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Choices   []Choice  `json:"choices,omitempty"`
}

// NewMessage creates a message with a fresh unique ID.
func NewMessage(role Role, content string, now time.Time) Message {
	return Message{
		ID:      uuid.NewString(),
		Role:    role,
		Content: content,
		// Drop the monotonic clock reading so that persisted messages compare equal after a round trip.
		Timestamp: now.Round(0),
		Choices:   nil,
	}
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	m.Choices = slices.Clone(m.Choices)
	return m
}
