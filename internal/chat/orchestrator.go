// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat coordinates a single send: quota admission, the optimistic
// message pair, streaming or batch consumption, and error substitution.
package chat

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/morganforge/spysearch-tui/internal/model"
	"github.com/morganforge/spysearch-tui/internal/quota"
	"github.com/morganforge/spysearch-tui/internal/transport"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// ErrorResponseText replaces the assistant placeholder content when a send
// fails after the message pair was appended. The pair itself is never
// removed; the conversation keeps an honest record of the attempt.
const ErrorResponseText = "Sorry, I encountered an error while processing your request. Please try again."

// genericSendFailure is the notice shown when the transport error carries no
// user-presentable message of its own.
const genericSendFailure = "Failed to send message. Please check your connection and try again."

// =============================================================================
// NOTICES
// =============================================================================

// Severity classifies a notice for presentation.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notice is a transient, user-facing event raised outside the message
// sequence: quota refusals, transport failures, sign-in prompts.
type Notice struct {
	Title       string
	Description string
	Severity    Severity
}

// =============================================================================
// ERRORS
// =============================================================================

// QuotaDeniedError reports a send refused before any message was created.
type QuotaDeniedError struct {
	Decision quota.Decision
}

// Error implements the error interface.
func (e *QuotaDeniedError) Error() string {
	return e.Decision.Reason
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator runs the send pipeline for one conversation. Sends are
// serialized; the UI disables input while Loading reports true.
type Orchestrator struct {
	conv      *model.Conversation
	guard     *quota.Guard
	transport *transport.Transport

	mu          sync.Mutex
	loading     bool
	streamingID string
	listeners   []func(Notice)
}

// NewOrchestrator wires a conversation to the quota guard and transport.
func NewOrchestrator(conv *model.Conversation, guard *quota.Guard, tr *transport.Transport) *Orchestrator {
	return &Orchestrator{
		conv:      conv,
		guard:     guard,
		transport: tr,
	}
}

// Subscribe registers a notice listener.
func (o *Orchestrator) Subscribe(fn func(Notice)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, fn)
}

// Loading reports whether a send is in flight, and if so which assistant
// message is receiving the stream.
func (o *Orchestrator) Loading() (bool, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loading, o.streamingID
}

// Conversation returns the conversation this orchestrator drives.
func (o *Orchestrator) Conversation() *model.Conversation {
	return o.conv
}

// Send runs the full pipeline for one user input.
//
// Whitespace-only input is discarded silently. A quota refusal raises a
// notice and returns before any message exists. Once the pair is appended,
// every failure path lands the apology text in the placeholder instead of
// removing it.
func (o *Orchestrator) Send(ctx context.Context, text string, files []transport.Attachment, deep bool) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	decision := o.guard.Check(ctx, deep)
	if !decision.Allowed {
		o.notify(Notice{
			Title:       "Insufficient Tokens",
			Description: decision.Reason,
			Severity:    SeverityWarning,
		})
		return &QuotaDeniedError{Decision: decision}
	}

	// History is captured before the new pair joins the store; the query
	// travels in its own field, not as part of the prior turns.
	prior := o.conv.Store.Wire()

	userMsg := model.NewUserMessage(text)
	assistantMsg := model.NewAssistantMessage()
	o.conv.Store.Append(userMsg, assistantMsg)

	o.mu.Lock()
	o.loading = true
	o.streamingID = assistantMsg.ID
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.loading = false
		o.streamingID = ""
		o.mu.Unlock()
	}()

	started := time.Now()
	resp, err := o.transport.Send(ctx, prior, files, deep, text)
	if err != nil {
		o.failSend(assistantMsg.ID, err)
		return err
	}

	if deep {
		report, err := transport.ConsumeBatch(resp)
		if err != nil {
			o.failSend(assistantMsg.ID, err)
			return err
		}
		o.conv.Store.Finalize(assistantMsg.ID, report, time.Since(started))
		return nil
	}

	var last string
	err = transport.ConsumeIncremental(resp, func(accumulated string) {
		last = accumulated
		o.conv.Store.UpdateContent(assistantMsg.ID, accumulated)
	})
	if err != nil {
		o.failSend(assistantMsg.ID, err)
		return err
	}
	o.conv.Store.Finalize(assistantMsg.ID, last, time.Since(started))
	return nil
}

// failSend substitutes the apology text and raises a failure notice.
func (o *Orchestrator) failSend(assistantID string, err error) {
	log.Printf("chat: send failed: %v", err)
	o.conv.Store.UpdateContent(assistantID, ErrorResponseText)

	description := genericSendFailure
	if msg := err.Error(); msg != "" {
		description = msg
	}
	o.notify(Notice{
		Title:       "Error",
		Description: description,
		Severity:    SeverityError,
	})
}

// notify delivers a notice to all listeners outside the lock.
func (o *Orchestrator) notify(n Notice) {
	o.mu.Lock()
	listeners := make([]func(Notice), len(o.listeners))
	copy(listeners, o.listeners)
	o.mu.Unlock()
	for _, fn := range listeners {
		fn(n)
	}
}
