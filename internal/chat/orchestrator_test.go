// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/morganforge/spysearch-tui/internal/api"
	"github.com/morganforge/spysearch-tui/internal/model"
	"github.com/morganforge/spysearch-tui/internal/quota"
	"github.com/morganforge/spysearch-tui/internal/transport"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

// harness wires an orchestrator against one httptest server that plays both
// the quota endpoint and the completion endpoints.
type harness struct {
	orch       *Orchestrator
	conv       *model.Conversation
	notices    []Notice
	streamHits *atomic.Int32
}

func newHarness(t *testing.T, remaining int, completion http.HandlerFunc) *harness {
	t.Helper()

	h := &harness{streamHits: &atomic.Int32{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/tokens/status", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"daily_tokens_remaining":%d}`, remaining)
	})
	serveCompletion := func(w http.ResponseWriter, r *http.Request) {
		h.streamHits.Add(1)
		completion(w, r)
	}
	mux.HandleFunc("/api/stream_completion", serveCompletion)
	mux.HandleFunc("/api/report", serveCompletion)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	endpoints := api.NewEndpoints(server.URL)
	tokens := staticToken("tok")
	guard := quota.NewGuard(endpoints, tokens).WithHTTPClient(http.DefaultClient)
	tr := transport.NewTransport(endpoints, tokens).WithHTTPClient(http.DefaultClient)

	h.conv = model.NewConversation()
	h.orch = NewOrchestrator(h.conv, guard, tr)
	h.orch.Subscribe(func(n Notice) { h.notices = append(h.notices, n) })
	return h
}

func streamHandler(pieces ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, p := range pieces {
			w.Write([]byte(p))
			flusher.Flush()
		}
	}
}

// =============================================================================
// SEND PIPELINE
// =============================================================================

func TestSend_StreamsIntoAssistantMessage(t *testing.T) {
	h := newHarness(t, 10, streamHandler("H", "e", "llo"))

	require.NoError(t, h.orch.Send(context.Background(), "say hello", nil, false))

	msgs := h.conv.Store.Snapshot()
	require.Len(t, msgs, 2)
	require.Equal(t, model.MessageUser, msgs[0].Type)
	require.Equal(t, "say hello", msgs[0].Content)
	require.Equal(t, model.MessageAssistant, msgs[1].Type)
	require.Equal(t, "Hello", msgs[1].Content)
	require.NotZero(t, msgs[1].ResponseTime)

	loading, id := h.orch.Loading()
	require.False(t, loading)
	require.Empty(t, id)
}

func TestSend_EmptyInputIsSilentlyDiscarded(t *testing.T) {
	h := newHarness(t, 10, streamHandler("never"))

	require.NoError(t, h.orch.Send(context.Background(), "   \n\t ", nil, false))

	require.Zero(t, h.conv.Store.Len())
	require.Zero(t, h.streamHits.Load())
	require.Empty(t, h.notices)
}

// An exhausted quota refuses the send before any message exists and before
// the completion endpoint is touched.
func TestSend_QuotaDenied_NoMessagesNoRequest(t *testing.T) {
	h := newHarness(t, 0, streamHandler("never"))

	err := h.orch.Send(context.Background(), "question", nil, false)

	var qerr *QuotaDeniedError
	require.ErrorAs(t, err, &qerr)
	require.Zero(t, h.conv.Store.Len())
	require.Zero(t, h.streamHits.Load())
	require.Len(t, h.notices, 1)
	require.Equal(t, SeverityWarning, h.notices[0].Severity)
	require.Equal(t, "You need 1 tokens for this search. You have 0 remaining.", h.notices[0].Description)
}

func TestSend_DeepUsesReportEndpoint(t *testing.T) {
	var path string
	h := newHarness(t, 5, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{"report":"deep findings"}`))
	})

	require.NoError(t, h.orch.Send(context.Background(), "investigate", nil, true))

	require.Equal(t, "/api/report", path)
	msgs := h.conv.Store.Snapshot()
	require.Len(t, msgs, 2)
	require.Equal(t, "deep findings", msgs[1].Content)
	require.NotZero(t, msgs[1].ResponseTime)
}

func TestSend_DeepOneTokenShortIsRefused(t *testing.T) {
	h := newHarness(t, 4, streamHandler("never"))

	err := h.orch.Send(context.Background(), "investigate", nil, true)

	var qerr *QuotaDeniedError
	require.ErrorAs(t, err, &qerr)
	require.Equal(t, "You need 5 tokens for this search. You have 4 remaining.", qerr.Decision.Reason)
	require.Zero(t, h.streamHits.Load())
}

// A failure after the pair was appended keeps both messages and lands the
// apology text in the placeholder.
func TestSend_MidFlightFailure_SubstitutesApology(t *testing.T) {
	h := newHarness(t, 10, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := h.orch.Send(context.Background(), "question", nil, false)
	require.Error(t, err)

	msgs := h.conv.Store.Snapshot()
	require.Len(t, msgs, 2)
	require.Equal(t, "question", msgs[0].Content)
	require.Equal(t, ErrorResponseText, msgs[1].Content)
	require.Zero(t, msgs[1].ResponseTime)

	require.Len(t, h.notices, 1)
	require.Equal(t, SeverityError, h.notices[0].Severity)

	loading, _ := h.orch.Loading()
	require.False(t, loading)
}

func TestSend_HistoryExcludesCurrentQuery(t *testing.T) {
	var requests []transport.StreamRequest
	h := newHarness(t, 10, func(w http.ResponseWriter, r *http.Request) {
		var req transport.StreamRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)
		w.Write([]byte("answer " + fmt.Sprint(len(requests))))
	})

	ctx := context.Background()
	require.NoError(t, h.orch.Send(ctx, "first", nil, false))
	require.NoError(t, h.orch.Send(ctx, "second", nil, false))

	require.Len(t, requests, 2)
	require.Equal(t, "first", requests[0].Query)
	require.Equal(t, "[]", requests[0].Messages)

	// The second request carries both prior turns, but not itself.
	require.Equal(t, "second", requests[1].Query)
	require.Contains(t, requests[1].Messages, `"first"`)
	require.Contains(t, requests[1].Messages, `"answer 1"`)
	require.NotContains(t, requests[1].Messages, `"second"`)
}

func TestSend_SetsConversationTitle(t *testing.T) {
	h := newHarness(t, 10, streamHandler("ok"))

	require.NoError(t, h.orch.Send(context.Background(), "name this chat", nil, false))
	require.Equal(t, "name this chat", h.conv.Title())
}
