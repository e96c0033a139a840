// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport builds and issues completion requests against the
// SpySearch backend and consumes the two response shapes it produces:
// an incrementally delivered text stream, or a single batch report payload.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/morganforge/spysearch-tui/internal/api"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// WireMessage is one prior conversation turn in the serialized history.
type WireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamRequest is the payload accepted by both completion endpoints.
// Messages holds the JSON-encoded prior-turn list; the double encoding is
// part of the server contract.
type StreamRequest struct {
	Query    string `json:"query"`
	Messages string `json:"messages"`
	API      string `json:"api"` // "stream" or "report"
}

// Attachment is a file sent alongside a completion request.
type Attachment struct {
	Name string
	Data []byte
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrAuthRequired indicates a send was attempted without a bearer token.
// This is checked before any network call; the server is never relied on
// to reject an unauthenticated request.
var ErrAuthRequired = errors.New("authentication required, please sign in first")

// TransportError represents a non-2xx HTTP response.
type TransportError struct {
	Status int
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed (HTTP %d)", e.Status)
}

// TokenProvider supplies the current bearer token. Satisfied by
// *auth.Manager.
type TokenProvider interface {
	Token() string
}

// =============================================================================
// TRANSPORT
// =============================================================================

// Transport issues completion requests. A single Transport is shared by all
// conversations; each Send produces an independent response handle.
type Transport struct {
	endpoints api.Endpoints
	tokens    TokenProvider
	client    *http.Client

	// limiter paces outbound completion requests so rapid sends cannot
	// flood the backend.
	limiter *rate.Limiter
}

// NewTransport creates a transport using the shared streaming HTTP client.
func NewTransport(endpoints api.Endpoints, tokens TokenProvider) *Transport {
	return &Transport{
		endpoints: endpoints,
		tokens:    tokens,
		client:    api.SharedStreamingClient,
		limiter:   rate.NewLimiter(rate.Limit(5), 5),
	}
}

// WithHTTPClient overrides the HTTP client, primarily for tests.
func (t *Transport) WithHTTPClient(client *http.Client) *Transport {
	t.client = client
	return t
}

// WithLimiter overrides the request pacing limiter.
func (t *Transport) WithLimiter(l *rate.Limiter) *Transport {
	t.limiter = l
	return t
}

// Send issues a completion request and returns the raw response for one of
// the Consume functions to drain.
//
// Deep requests go to the batch report endpoint, standard requests to the
// incremental stream endpoint. With attachments the request is encoded as
// multipart with the StreamRequest serialized into one field; without, as a
// plain JSON body. Both encodings are semantically identical server-side.
func (t *Transport) Send(ctx context.Context, prior []WireMessage, files []Attachment, deep bool, query string) (*http.Response, error) {
	token := t.tokens.Token()
	if token == "" {
		return nil, ErrAuthRequired
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	apiMode := "stream"
	endpoint := t.endpoints.StreamCompletion()
	if deep {
		apiMode = "report"
		endpoint = t.endpoints.Report()
	}

	if prior == nil {
		prior = []WireMessage{}
	}
	history, err := json.Marshal(prior)
	if err != nil {
		return nil, fmt.Errorf("failed to encode history: %w", err)
	}
	streamReq := StreamRequest{
		Query:    query,
		Messages: string(history),
		API:      apiMode,
	}

	var req *http.Request
	if len(files) > 0 {
		req, err = t.newMultipartRequest(ctx, endpoint, streamReq, files)
	} else {
		req, err = t.newJSONRequest(ctx, endpoint, streamReq)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// newJSONRequest encodes the StreamRequest as a plain JSON body.
func (t *Transport) newJSONRequest(ctx context.Context, endpoint string, streamReq StreamRequest) (*http.Request, error) {
	body, err := json.Marshal(streamReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// newMultipartRequest encodes the StreamRequest as the "request" form field
// plus one "files" part per attachment.
func (t *Transport) newMultipartRequest(ctx context.Context, endpoint string, streamReq StreamRequest, files []Attachment) (*http.Request, error) {
	reqJSON, err := json.Marshal(streamReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("request", string(reqJSON)); err != nil {
		return nil, fmt.Errorf("failed to write request field: %w", err)
	}
	for _, f := range files {
		part, err := writer.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("failed to write file %s: %w", f.Name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}

// =============================================================================
// INCREMENTAL CONSUMPTION
// =============================================================================

// ConsumeIncremental drains a streaming response, invoking onChunk with the
// full accumulated content after every decoded segment. The callback always
// receives the complete content to date, never a delta, so a consumer that
// assigns the last value it saw stays correct even if segments coalesce.
//
// A connection that ends without an explicit end marker is treated as normal
// completion. The response body is released on every exit path.
func ConsumeIncremental(resp *http.Response, onChunk func(accumulated string)) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, api.MaxResponseSize))
		return &TransportError{Status: resp.StatusCode}
	}

	var accumulated strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			accumulated.Write(buf[:n])
			onChunk(accumulated.String())
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("stream read failed: %w", err)
		}
	}
}

// =============================================================================
// BATCH CONSUMPTION
// =============================================================================

// reportFallback is returned when the report payload carries no report field.
const reportFallback = "No report generated"

// ConsumeBatch awaits the full report payload and extracts its report field.
// A payload without one yields a literal fallback string rather than an
// error; the request itself succeeded.
func ConsumeBatch(resp *http.Response) (string, error) {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, api.MaxResponseSize))
		return "", &TransportError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, api.MaxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read report: %w", err)
	}

	var payload struct {
		Report string `json:"report"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("failed to parse report: %w", err)
	}
	if payload.Report == "" {
		return reportFallback, nil
	}
	return payload.Report, nil
}
