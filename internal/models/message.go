// Package models contains the data types shared by the aceorbit client.
package models

import (
	"fmt"
	"strings"
)

// Role identifies who produced a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Label returns the display name used by the chat panel
func (r Role) Label() string {
	if r == RoleUser {
		return "You"
	}
	return AssistantName
}

// ParseRole converts a stored role string into a Role
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return r, nil
}

// Message is one turn in the conversation. Messages are never modified
// after creation.
type Message struct {
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"ts"` // milliseconds since epoch
}

// NewMessage creates a message with the given timestamp
func NewMessage(role Role, text string, ts int64) Message {
	return Message{Role: role, Text: text, Timestamp: ts}
}

// IsUser reports whether the message was written by the user
func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

// CloneMessages returns a copy of msgs that shares no backing array
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return []Message{}
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
