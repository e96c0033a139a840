// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sync"

	"github.com/google/uuid"
)

// =============================================================================
// CONVERSATION
// =============================================================================

// titlePreviewRunes bounds the auto-generated conversation title length.
const titlePreviewRunes = 50

// Conversation binds a message store to an identity and a display title.
//
// The title is derived from the first user message and then frozen; later
// messages never retitle a conversation.
type Conversation struct {
	ID    string
	Store *Store

	mu    sync.Mutex
	title string
}

// NewConversation creates an empty conversation with a fresh store. The
// store subscription keeps the title in sync with the first user message.
func NewConversation() *Conversation {
	c := &Conversation{
		ID:    uuid.New().String(),
		Store: NewStore(),
	}
	c.Store.Subscribe(c.updateTitle)
	return c
}

// Title returns the display title, or "New Chat" before any user message.
func (c *Conversation) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.title == "" {
		return "New Chat"
	}
	return c.title
}

// Reset clears the messages and the derived title.
func (c *Conversation) Reset() {
	c.mu.Lock()
	c.title = ""
	c.mu.Unlock()
	c.Store.Reset()
}

func (c *Conversation) updateTitle(msgs []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.title != "" {
		return
	}
	for i := range msgs {
		if msgs[i].Type == MessageUser {
			c.title = msgs[i].Preview(titlePreviewRunes)
			return
		}
	}
}
