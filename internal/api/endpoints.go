// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api defines the SpySearch server contract: endpoint paths and the
// shared HTTP clients used by every component that talks to the backend.
//
// The backend is an opaque HTTP service; this package only knows its routes
// and default transport settings. Request and response shapes live with the
// components that own them (auth, quota, transport).
package api

import (
	"crypto/tls"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultBaseURL is the production SpySearch API base URL.
	DefaultBaseURL = "https://spysearch.org:8000"

	// DefaultTimeout is the timeout for non-streaming API requests.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize is the maximum allowed non-streaming response body size.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
)

// Route suffixes under the API base URL.
const (
	routeStreamCompletion = "/api/stream_completion"
	routeReport           = "/api/report"
	routeVerify           = "/api/verify"
	routeGoogleLogin      = "/api/google/login"
	routeTokenStatus      = "/api/tokens/status"
)

var (
	// SharedClient is the pooled HTTP client for request/response calls
	// (verify, login URL, quota). PERFORMANCE: Connection pooling reduces
	// TCP handshake overhead across the short-lived API calls.
	SharedClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// SharedStreamingClient is used for streaming completions. It carries no
	// client timeout; the lifetime of a stream is controlled via context.
	SharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
)

// =============================================================================
// ENDPOINT TABLE
// =============================================================================

// Endpoints resolves the SpySearch API routes against a base URL.
// The zero value is not usable; construct with NewEndpoints.
type Endpoints struct {
	baseURL string
}

// NewEndpoints creates an endpoint table for the given base URL.
// An empty base URL falls back to DefaultBaseURL.
func NewEndpoints(baseURL string) Endpoints {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return Endpoints{baseURL: strings.TrimSuffix(baseURL, "/")}
}

// BaseURL returns the configured base URL.
func (e Endpoints) BaseURL() string { return e.baseURL }

// StreamCompletion returns the incremental completion endpoint URL.
func (e Endpoints) StreamCompletion() string { return e.baseURL + routeStreamCompletion }

// Report returns the batch report endpoint URL.
func (e Endpoints) Report() string { return e.baseURL + routeReport }

// Verify returns the token verification endpoint URL.
func (e Endpoints) Verify() string { return e.baseURL + routeVerify }

// GoogleLogin returns the OAuth redirect-URL endpoint.
func (e Endpoints) GoogleLogin() string { return e.baseURL + routeGoogleLogin }

// TokenStatus returns the daily quota endpoint URL.
func (e Endpoints) TokenStatus() string { return e.baseURL + routeTokenStatus }
