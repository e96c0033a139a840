// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package quota enforces the per-day token budget before a request is sent.
//
// The budget is owned by the server; this package only queries the remaining
// balance and compares it with the cost of the request about to be issued.
// A query failure blocks the send (fail closed) rather than letting an
// unverifiable request through.
package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/morganforge/spysearch-tui/internal/api"
)

// Request costs in daily token units.
const (
	CostStandard = 1
	CostDeep     = 5
)

// TokenProvider supplies the current bearer token. Satisfied by
// *auth.Manager.
type TokenProvider interface {
	Token() string
}

// TokenStatus is the server's quota report. It is queried, never mutated
// locally.
type TokenStatus struct {
	DailyTokensRemaining int `json:"daily_tokens_remaining"`
}

// =============================================================================
// DECISION
// =============================================================================

// Decision is the outcome of a quota check, carrying the user-facing
// explanation when the send is blocked.
type Decision struct {
	Allowed   bool
	Needed    int
	Remaining int
	Reason    string // empty when Allowed
}

// =============================================================================
// GUARD
// =============================================================================

// Guard queries the daily token budget and blocks sends that cannot be paid
// for.
type Guard struct {
	endpoints api.Endpoints
	tokens    TokenProvider
	client    *http.Client
}

// NewGuard creates a budget guard.
func NewGuard(endpoints api.Endpoints, tokens TokenProvider) *Guard {
	return &Guard{
		endpoints: endpoints,
		tokens:    tokens,
		client:    api.SharedClient,
	}
}

// WithHTTPClient overrides the HTTP client, primarily for tests.
func (g *Guard) WithHTTPClient(client *http.Client) *Guard {
	g.client = client
	return g
}

// Cost returns the token cost of a request.
func Cost(deep bool) int {
	if deep {
		return CostDeep
	}
	return CostStandard
}

// Check queries the remaining daily balance and decides whether a request of
// the given depth may proceed. A balance exactly equal to the cost succeeds.
//
// Any failure to query the balance blocks the send with a generic reason:
// an unverifiable quota is treated the same as an exhausted one.
func (g *Guard) Check(ctx context.Context, deep bool) Decision {
	needed := Cost(deep)

	status, err := g.query(ctx)
	if err != nil {
		log.Printf("quota: failed to check token status: %v", err)
		return Decision{
			Allowed: false,
			Needed:  needed,
			Reason:  "Failed to check token status. Please try again.",
		}
	}

	if status.DailyTokensRemaining < needed {
		return Decision{
			Allowed:   false,
			Needed:    needed,
			Remaining: status.DailyTokensRemaining,
			Reason: fmt.Sprintf("You need %d tokens for this search. You have %d remaining.",
				needed, status.DailyTokensRemaining),
		}
	}

	return Decision{Allowed: true, Needed: needed, Remaining: status.DailyTokensRemaining}
}

// Status fetches the current server-side balance for display.
func (g *Guard) Status(ctx context.Context) (*TokenStatus, error) {
	return g.query(ctx)
}

// query fetches the current TokenStatus from the server.
func (g *Guard) query(ctx context.Context) (*TokenStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoints.TokenStatus(), nil)
	if err != nil {
		return nil, err
	}
	if token := g.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token status returned %d", resp.StatusCode)
	}

	var status TokenStatus
	if err := json.NewDecoder(io.LimitReader(resp.Body, api.MaxResponseSize)).Decode(&status); err != nil {
		return nil, fmt.Errorf("token status response malformed: %w", err)
	}
	return &status, nil
}
