// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the conversation data structures: messages, the
// per-conversation message store, and the conversation wrapper.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/morganforge/spysearch-tui/internal/transport"
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// MessageType identifies the sender of a message.
type MessageType string

const (
	MessageUser      MessageType = "user"
	MessageAssistant MessageType = "assistant"
)

// Message is a single conversation entry.
//
// User messages are immutable once created. Assistant messages are created
// empty and mutated in place as stream chunks arrive; ResponseTime is set
// exactly once, when streaming finishes.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`

	// ResponseTime is the total generation time for assistant messages.
	// Zero means streaming has not finished (or failed before finishing).
	ResponseTime time.Duration `json:"response_time_ns,omitempty"`
}

// NewUserMessage creates an immutable user message.
func NewUserMessage(content string) *Message {
	return &Message{
		ID:        generateID(),
		Type:      MessageUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates an empty assistant placeholder with a
// pre-generated id, ready to receive streamed content.
func NewAssistantMessage() *Message {
	return &Message{
		ID:        generateID(),
		Type:      MessageAssistant,
		Timestamp: time.Now(),
	}
}

// Wire converts the message to its outbound conversation-history form.
func (m *Message) Wire() transport.WireMessage {
	role := "assistant"
	if m.Type == MessageUser {
		role = "user"
	}
	return transport.WireMessage{Role: role, Content: m.Content}
}

// Preview returns a rune-safe truncated preview of the content.
func (m *Message) Preview(maxRunes int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxRunes {
		return m.Content
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// generateID creates a unique, creation-ordered-enough message id.
func generateID() string {
	return uuid.New().String()
}
