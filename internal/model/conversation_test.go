// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConversation_TitleBeforeAnyMessage(t *testing.T) {
	c := NewConversation()
	require.Equal(t, "New Chat", c.Title())
	require.NotEmpty(t, c.ID)
}

func TestConversation_TitleFromFirstUserMessage(t *testing.T) {
	c := NewConversation()
	c.Store.Append(NewUserMessage("what is the capital of France?"), NewAssistantMessage())
	require.Equal(t, "what is the capital of France?", c.Title())

	// Later messages never retitle.
	c.Store.Append(NewUserMessage("and of Spain?"))
	require.Equal(t, "what is the capital of France?", c.Title())
}

func TestConversation_TitleIsTruncated(t *testing.T) {
	c := NewConversation()
	long := strings.Repeat("x", 120)
	c.Store.Append(NewUserMessage(long))

	title := c.Title()
	require.True(t, strings.HasSuffix(title, "..."))
	require.LessOrEqual(t, len([]rune(title)), titlePreviewRunes)
}

func TestConversation_ResetClearsTitle(t *testing.T) {
	c := NewConversation()
	c.Store.Append(NewUserMessage("first topic"))
	c.Reset()

	require.Zero(t, c.Store.Len())
	require.Equal(t, "New Chat", c.Title())

	c.Store.Append(NewUserMessage("second topic"))
	require.Equal(t, "second topic", c.Title())
}

func TestMessage_Preview(t *testing.T) {
	m := NewUserMessage("héllo wörld")
	require.Equal(t, "héllo wörld", m.Preview(50))
	require.Equal(t, "héllo...", m.Preview(8))
}
