// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStore_AppendPairIsOneNotification(t *testing.T) {
	s := NewStore()
	var notifications [][]Message
	s.Subscribe(func(msgs []Message) {
		notifications = append(notifications, msgs)
	})

	user := NewUserMessage("hello")
	assistant := NewAssistantMessage()
	s.Append(user, assistant)

	require.Len(t, notifications, 1, "a pair append is one observable mutation")
	require.Len(t, notifications[0], 2)
	require.Equal(t, MessageUser, notifications[0][0].Type)
	require.Equal(t, MessageAssistant, notifications[0][1].Type)
}

func TestStore_UpdateContent(t *testing.T) {
	s := NewStore()
	assistant := NewAssistantMessage()
	s.Append(NewUserMessage("q"), assistant)

	require.True(t, s.UpdateContent(assistant.ID, "partial"))
	got, ok := s.Get(assistant.ID)
	require.True(t, ok)
	require.Equal(t, "partial", got.Content)
	require.Zero(t, got.ResponseTime)
}

func TestStore_UpdateContent_RejectsUserMessages(t *testing.T) {
	s := NewStore()
	user := NewUserMessage("immutable")
	s.Append(user)

	require.False(t, s.UpdateContent(user.ID, "overwritten"))
	got, _ := s.Get(user.ID)
	require.Equal(t, "immutable", got.Content)
}

func TestStore_UpdateContent_UnknownIDIsNoOp(t *testing.T) {
	s := NewStore()
	require.False(t, s.UpdateContent("missing", "late chunk"))
}

func TestStore_Finalize_StampsResponseTimeOnce(t *testing.T) {
	s := NewStore()
	assistant := NewAssistantMessage()
	s.Append(assistant)

	require.True(t, s.Finalize(assistant.ID, "done", 2*time.Second))
	got, _ := s.Get(assistant.ID)
	require.Equal(t, "done", got.Content)
	require.Equal(t, 2*time.Second, got.ResponseTime)

	// A second finalize updates content but keeps the original timing.
	require.True(t, s.Finalize(assistant.ID, "revised", 9*time.Second))
	got, _ = s.Get(assistant.ID)
	require.Equal(t, "revised", got.Content)
	require.Equal(t, 2*time.Second, got.ResponseTime)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore()
	assistant := NewAssistantMessage()
	s.Append(assistant)

	snap := s.Snapshot()
	snap[0].Content = "mutated copy"

	got, _ := s.Get(assistant.ID)
	require.Empty(t, got.Content)
}

func TestStore_WirePreservesOrderAndRoles(t *testing.T) {
	s := NewStore()
	s.Append(NewUserMessage("first"))
	a := NewAssistantMessage()
	s.Append(a)
	s.Finalize(a.ID, "second", time.Second)

	wire := s.Wire()
	require.Len(t, wire, 2)
	require.Equal(t, "user", wire[0].Role)
	require.Equal(t, "first", wire[0].Content)
	require.Equal(t, "assistant", wire[1].Role)
	require.Equal(t, "second", wire[1].Content)
}

func TestStore_Reset(t *testing.T) {
	s := NewStore()
	assistant := NewAssistantMessage()
	s.Append(NewUserMessage("q"), assistant)
	s.Reset()

	require.Zero(t, s.Len())
	// A chunk callback arriving after the reset must be a quiet no-op.
	require.False(t, s.UpdateContent(assistant.ID, "late"))
}
