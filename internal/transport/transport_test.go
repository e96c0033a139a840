// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/morganforge/spysearch-tui/internal/api"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func newTestTransport(serverURL, token string) *Transport {
	return NewTransport(api.NewEndpoints(serverURL), staticToken(token)).
		WithHTTPClient(http.DefaultClient)
}

// =============================================================================
// SEND
// =============================================================================

// A send without a bearer token must fail before any network call.
func TestSend_NoToken_FailsBeforeNetwork(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	t.Cleanup(server.Close)

	tr := newTestTransport(server.URL, "")
	_, err := tr.Send(context.Background(), nil, nil, false, "hello")

	require.ErrorIs(t, err, ErrAuthRequired)
	require.Zero(t, hits.Load())
}

func TestSend_JSONBodyShape(t *testing.T) {
	var got StreamRequest
	var path, auth, contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&got)
	}))
	t.Cleanup(server.Close)

	tr := newTestTransport(server.URL, "tok-1")
	prior := []WireMessage{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}}
	resp, err := tr.Send(context.Background(), prior, nil, false, "next question")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "/api/stream_completion", path)
	require.Equal(t, "Bearer tok-1", auth)
	require.Equal(t, "application/json", contentType)
	require.Equal(t, "next question", got.Query)
	require.Equal(t, "stream", got.API)

	// The history is itself JSON-encoded inside the messages field.
	var history []WireMessage
	require.NoError(t, json.Unmarshal([]byte(got.Messages), &history))
	require.Equal(t, prior, history)
}

func TestSend_DeepRoutesToReportEndpoint(t *testing.T) {
	var got StreamRequest
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
	}))
	t.Cleanup(server.Close)

	tr := newTestTransport(server.URL, "tok-1")
	resp, err := tr.Send(context.Background(), nil, nil, true, "investigate")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "/api/report", path)
	require.Equal(t, "report", got.API)
}

// The multipart encoding must carry the same StreamRequest as the JSON one,
// in the "request" field, plus the raw file parts.
func TestSend_MultipartEquivalence(t *testing.T) {
	var got StreamRequest
	var fileNames []string
	var fileContents []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("request")), &got))
		for _, fh := range r.MultipartForm.File["files"] {
			fileNames = append(fileNames, fh.Filename)
			f, err := fh.Open()
			require.NoError(t, err)
			data := make([]byte, fh.Size)
			f.Read(data)
			f.Close()
			fileContents = append(fileContents, string(data))
		}
	}))
	t.Cleanup(server.Close)

	tr := newTestTransport(server.URL, "tok-1")
	files := []Attachment{
		{Name: "notes.txt", Data: []byte("first")},
		{Name: "data.csv", Data: []byte("a,b")},
	}
	resp, err := tr.Send(context.Background(), []WireMessage{{Role: "user", Content: "q"}}, files, false, "with files")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "with files", got.Query)
	require.Equal(t, "stream", got.API)
	require.Equal(t, []string{"notes.txt", "data.csv"}, fileNames)
	require.Equal(t, []string{"first", "a,b"}, fileContents)
}

// =============================================================================
// INCREMENTAL CONSUMPTION
// =============================================================================

func TestConsumeIncremental_AccumulatesChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, piece := range []string{"H", "e", "llo"} {
			w.Write([]byte(piece))
			flusher.Flush()
		}
		// Connection ends with no explicit end marker.
	}))
	t.Cleanup(server.Close)

	tr := newTestTransport(server.URL, "tok-1")
	resp, err := tr.Send(context.Background(), nil, nil, false, "q")
	require.NoError(t, err)

	var snapshots []string
	require.NoError(t, ConsumeIncremental(resp, func(acc string) {
		snapshots = append(snapshots, acc)
	}))

	require.NotEmpty(t, snapshots)
	// Every snapshot is cumulative, and the last is the full content.
	require.Equal(t, "Hello", snapshots[len(snapshots)-1])
	for i := 1; i < len(snapshots); i++ {
		require.True(t, len(snapshots[i]) >= len(snapshots[i-1]))
		require.Equal(t, snapshots[i][:len(snapshots[i-1])], snapshots[i-1])
	}
}

func TestConsumeIncremental_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	tr := newTestTransport(server.URL, "tok-1")
	resp, err := tr.Send(context.Background(), nil, nil, false, "q")
	require.NoError(t, err)

	called := false
	err = ConsumeIncremental(resp, func(string) { called = true })

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, http.StatusForbidden, terr.Status)
	require.False(t, called, "no chunk callback for an error response")
}

func TestConsumeIncremental_EmptyBodyIsCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(server.Close)

	tr := newTestTransport(server.URL, "tok-1")
	resp, err := tr.Send(context.Background(), nil, nil, false, "q")
	require.NoError(t, err)
	require.NoError(t, ConsumeIncremental(resp, func(string) {}))
}

// =============================================================================
// BATCH CONSUMPTION
// =============================================================================

func TestConsumeBatch_ExtractsReport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"report":"full findings"}`))
	}))
	t.Cleanup(server.Close)

	tr := newTestTransport(server.URL, "tok-1")
	resp, err := tr.Send(context.Background(), nil, nil, true, "q")
	require.NoError(t, err)

	report, err := ConsumeBatch(resp)
	require.NoError(t, err)
	require.Equal(t, "full findings", report)
}

func TestConsumeBatch_MissingReportFieldFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	tr := newTestTransport(server.URL, "tok-1")
	resp, err := tr.Send(context.Background(), nil, nil, true, "q")
	require.NoError(t, err)

	report, err := ConsumeBatch(resp)
	require.NoError(t, err)
	require.Equal(t, "No report generated", report)
}

func TestConsumeBatch_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	tr := newTestTransport(server.URL, "tok-1")
	resp, err := tr.Send(context.Background(), nil, nil, true, "q")
	require.NoError(t, err)

	_, err = ConsumeBatch(resp)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, http.StatusBadGateway, terr.Status)
}
