// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sync"
	"time"

	"github.com/morganforge/spysearch-tui/internal/transport"
)

// =============================================================================
// MESSAGE STORE
// =============================================================================

// Store is an ordered, append-only-by-id message sequence for one
// conversation. Messages are never reordered or removed except by Reset.
//
// Consumers read snapshots; only the chat orchestrator writes. Listener
// delivery is synchronous and ordered, so any observed snapshot reflects a
// whole mutation: a multi-message Append is visible all-or-nothing.
type Store struct {
	mu        sync.Mutex
	messages  []*Message
	listeners []func([]Message)
}

// NewStore creates an empty message store.
func NewStore() *Store {
	return &Store{}
}

// Subscribe registers a listener invoked with a full snapshot after every
// mutation, in registration order.
func (s *Store) Subscribe(fn func([]Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Append inserts one or more messages at the end as a single observable
// mutation. A user message and its paired assistant placeholder are appended
// together so no snapshot can see one without the other.
func (s *Store) Append(msgs ...*Message) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	s.messages = append(s.messages, msgs...)
	s.mu.Unlock()
	s.notify()
}

// UpdateContent replaces the content of the assistant message with the given
// id. Updating an id the store no longer tracks, or a user message, is a
// harmless no-op returning false; a late chunk callback after a reset must
// be tolerated, not raised.
func (s *Store) UpdateContent(id, content string) bool {
	s.mu.Lock()
	msg := s.findLocked(id)
	if msg == nil || msg.Type != MessageAssistant {
		s.mu.Unlock()
		return false
	}
	msg.Content = content
	s.mu.Unlock()
	s.notify()
	return true
}

// Finalize sets the final content and stamps the response time. The response
// time is written exactly once; a second Finalize updates content only.
func (s *Store) Finalize(id, content string, responseTime time.Duration) bool {
	s.mu.Lock()
	msg := s.findLocked(id)
	if msg == nil || msg.Type != MessageAssistant {
		s.mu.Unlock()
		return false
	}
	msg.Content = content
	if msg.ResponseTime == 0 {
		msg.ResponseTime = responseTime
	}
	s.mu.Unlock()
	s.notify()
	return true
}

// Get returns a copy of the message with the given id.
func (s *Store) Get(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg := s.findLocked(id); msg != nil {
		return *msg, true
	}
	return Message{}, false
}

// Snapshot returns a copy of the current message sequence.
func (s *Store) Snapshot() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Wire returns the conversation history in outbound form.
func (s *Store) Wire() []transport.WireMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	wire := make([]transport.WireMessage, 0, len(s.messages))
	for _, msg := range s.messages {
		wire = append(wire, msg.Wire())
	}
	return wire
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Reset removes all messages. This is the only removal operation.
func (s *Store) Reset() {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
	s.notify()
}

func (s *Store) findLocked(id string) *Message {
	for _, msg := range s.messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

func (s *Store) snapshotLocked() []Message {
	out := make([]Message, len(s.messages))
	for i, msg := range s.messages {
		out[i] = *msg
	}
	return out
}

// notify delivers a snapshot to all listeners outside the lock.
func (s *Store) notify() {
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	listeners := make([]func([]Message), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}
