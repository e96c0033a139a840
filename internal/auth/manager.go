// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/morganforge/spysearch-tui/internal/api"
	"github.com/morganforge/spysearch-tui/internal/credstore"
)

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Manager owns the authentication state machine. It is the only component
// that reads or writes the credential store; everything else obtains the
// bearer token through Token().
//
// Listener delivery is synchronous and ordered, outside the manager lock.
type Manager struct {
	mu        sync.Mutex
	store     *credstore.Store
	endpoints api.Endpoints
	client    *http.Client

	session Session
	state   State

	// consumed tracks login callbacks already processed, keyed by their
	// parameter fingerprint. Re-entering the same callback is a no-op.
	consumed map[string]bool

	listeners []func(Session)
}

// NewManager creates a session manager backed by the given credential store.
func NewManager(store *credstore.Store, endpoints api.Endpoints) *Manager {
	return &Manager{
		store:     store,
		endpoints: endpoints,
		client:    api.SharedClient,
		state:     StateUnknown,
		consumed:  make(map[string]bool),
	}
}

// WithHTTPClient overrides the HTTP client, primarily for tests.
func (m *Manager) WithHTTPClient(client *http.Client) *Manager {
	m.client = client
	return m
}

// =============================================================================
// SNAPSHOT ACCESSORS
// =============================================================================

// Session returns a copy of the current session state.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Token returns the current bearer token, or "" when anonymous.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Token
}

// IsAuthenticated reports whether a verified or optimistic session is active.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.IsAuthenticated
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a listener invoked on every session change, in
// registration order.
func (m *Manager) Subscribe(fn func(Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) snapshotLocked() Session {
	s := m.session
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// notify delivers the current session to all listeners. Must be called
// without holding the lock.
func (m *Manager) notify() {
	m.mu.Lock()
	snapshot := m.snapshotLocked()
	listeners := make([]func(Session), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

// =============================================================================
// RESTORE
// =============================================================================

// Restore loads persisted credentials and reconciles them with the server.
//
// When both token and user are stored, the session is activated optimistically
// first, then verified. Verification outcomes:
//   - success: the server's user profile replaces the cached copy
//   - confirmed 401: session and stored credentials are cleared
//   - anything else (network error, 5xx, malformed response): the optimistic
//     session is kept; a transient failure never evicts a legitimate session
//
// callbackPending signals that the process is mid-login-callback, in which
// case a stored token without a user profile is held for the callback owner
// instead of being treated as corrupt state.
func (m *Manager) Restore(ctx context.Context, callbackPending bool) error {
	m.mu.Lock()
	m.state = StateRestoring
	m.session.IsLoading = true
	m.mu.Unlock()
	m.notify()

	token, err := m.store.Get(credstore.KeyToken)
	if err != nil {
		m.settle(StateAnonymous)
		return &AuthError{Op: "restore", Err: err}
	}
	userJSON, err := m.store.Get(credstore.KeyUser)
	if err != nil {
		m.settle(StateAnonymous)
		return &AuthError{Op: "restore", Err: err}
	}

	switch {
	case token != "" && userJSON != "":
		return m.restoreFull(ctx, token, userJSON)

	case token != "" && userJSON == "":
		if callbackPending {
			// Hold the token for the callback owner without activating.
			log.Printf("auth: token without profile during login callback, holding")
			m.mu.Lock()
			m.session = Session{Token: token}
			m.state = StateAuthenticating
			m.mu.Unlock()
			m.notify()
			return nil
		}
		// Token without a profile outside a login flow is corrupt state.
		log.Printf("auth: token without profile, clearing")
		m.store.Delete(credstore.KeyToken)
		m.settle(StateAnonymous)
		return nil

	case token == "" && userJSON != "":
		// Profile without a token is corrupt state.
		log.Printf("auth: profile without token, clearing")
		m.store.Delete(credstore.KeyUser)
		m.settle(StateAnonymous)
		return nil

	default:
		m.settle(StateAnonymous)
		return nil
	}
}

// restoreFull handles the stored-token-and-profile case: optimistic
// activation followed by server verification.
func (m *Manager) restoreFull(ctx context.Context, token, userJSON string) error {
	var cached User
	if err := json.Unmarshal([]byte(userJSON), &cached); err != nil {
		// Trust in the cached profile is void; clear everything.
		log.Printf("auth: %v, clearing session", ErrMalformedCredential)
		m.store.Clear()
		m.settle(StateAnonymous)
		return &AuthError{Op: "restore", Err: ErrMalformedCredential}
	}

	// Phase one: optimistic activation from the cache.
	m.mu.Lock()
	m.session = Session{Token: token, User: &cached, IsAuthenticated: true, IsLoading: true}
	m.state = StateAuthenticated
	m.mu.Unlock()
	m.notify()

	// Phase two: verify against the server.
	user, err := m.verifyToken(ctx, token)
	switch {
	case err == nil:
		// Server profile is the source of truth over the cached copy.
		m.mu.Lock()
		m.session.User = user
		m.session.IsLoading = false
		m.mu.Unlock()
		m.notify()
		return nil

	case isUnauthorized(err):
		log.Printf("auth: token rejected (401), clearing session")
		m.store.Clear()
		m.settle(StateAnonymous)
		return nil

	default:
		// VerificationAmbiguous: swallowed, logged, session preserved.
		log.Printf("auth: verification inconclusive (%v), keeping session", err)
		m.mu.Lock()
		m.session.IsLoading = false
		m.mu.Unlock()
		m.notify()
		return nil
	}
}

// settle clears the in-memory session and records the terminal state.
func (m *Manager) settle(state State) {
	m.mu.Lock()
	m.session = Session{}
	m.state = state
	m.mu.Unlock()
	m.notify()
}

// =============================================================================
// LOGIN
// =============================================================================

// LoginWithGoogle requests the OAuth redirect URL from the server. The server
// owns the entire OAuth exchange; the caller's only job is to navigate the
// user to the returned URL.
func (m *Manager) LoginWithGoogle(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoints.GoogleLogin(), nil)
	if err != nil {
		return "", &AuthError{Op: "login", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", &AuthError{Op: "login", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{Op: "login", Err: fmt.Errorf("failed to get auth URL: status %d", resp.StatusCode)}
	}

	var payload struct {
		AuthURL string `json:"auth_url"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, api.MaxResponseSize)).Decode(&payload); err != nil {
		return "", &AuthError{Op: "login", Err: fmt.Errorf("failed to parse auth URL response: %w", err)}
	}
	if payload.AuthURL == "" {
		return "", &AuthError{Op: "login", Err: fmt.Errorf("server returned empty auth URL")}
	}

	m.mu.Lock()
	m.state = StateAuthenticating
	m.mu.Unlock()
	m.notify()

	return payload.AuthURL, nil
}

// CompleteLoginFromCallback consumes an OAuth redirect's parameters: persists
// the token, verifies it, persists the returned profile, and activates the
// session. Consuming the same callback twice is a no-op after the first pass.
//
// On an error-status callback, or any verification failure during login, all
// partial state is cleared and the server-supplied message is surfaced.
func (m *Manager) CompleteLoginFromCallback(ctx context.Context, cb Callback) error {
	if cb.IsZero() {
		return nil
	}

	m.mu.Lock()
	if m.consumed[cb.fingerprint()] {
		m.mu.Unlock()
		return nil
	}
	m.consumed[cb.fingerprint()] = true
	m.mu.Unlock()

	if cb.Status == "error" || cb.Message != "" {
		m.store.Clear()
		m.settle(StateAnonymous)
		msg := cb.Message
		if msg == "" {
			msg = "authentication failed"
		}
		return &AuthError{Op: "callback", Err: fmt.Errorf("%s", msg)}
	}

	if cb.Status != "success" || cb.Token == "" {
		return nil
	}

	// Persist the token immediately, then verify it.
	if err := m.store.Set(credstore.KeyToken, cb.Token); err != nil {
		return &AuthError{Op: "callback", Err: err}
	}

	user, err := m.verifyToken(ctx, cb.Token)
	if err != nil {
		// A login that cannot be verified has nothing to fall back on.
		log.Printf("auth: callback verification failed: %v", err)
		m.store.Clear()
		m.settle(StateAnonymous)
		return &AuthError{Op: "callback", Err: err}
	}

	userJSON, err := json.Marshal(user)
	if err != nil {
		m.store.Clear()
		m.settle(StateAnonymous)
		return &AuthError{Op: "callback", Err: err}
	}
	if err := m.store.Set(credstore.KeyUser, string(userJSON)); err != nil {
		return &AuthError{Op: "callback", Err: err}
	}

	m.mu.Lock()
	m.session = Session{Token: cb.Token, User: user, IsAuthenticated: true}
	m.state = StateAuthenticated
	m.mu.Unlock()
	m.notify()

	log.Printf("auth: login complete for token %s", tokenFingerprint(cb.Token))
	return nil
}

// =============================================================================
// LOGOUT
// =============================================================================

// Logout clears the persisted credentials and the in-memory session.
// It is synchronous and idempotent.
func (m *Manager) Logout() {
	if err := m.store.Clear(); err != nil {
		log.Printf("auth: failed to clear credential store on logout: %v", err)
	}
	m.settle(StateAnonymous)
}

// =============================================================================
// VERIFICATION
// =============================================================================

// verifyToken asks the server to validate a bearer token and return the
// associated user profile.
//
// Only a 401 maps to ErrUnauthorized. Every other failure mode (network
// error, 5xx, malformed body) is returned as an ordinary error so the caller
// can treat it as ambiguous rather than a confirmed rejection.
func (m *Manager) verifyToken(ctx context.Context, token string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoints.Verify(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("verify: %w", ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verify returned status %d", resp.StatusCode)
	}

	var payload struct {
		User *User `json:"user"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, api.MaxResponseSize)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("verify response malformed: %w", err)
	}
	if payload.User == nil {
		return nil, fmt.Errorf("verify response missing user")
	}
	return payload.User, nil
}

// isUnauthorized reports whether err is a confirmed 401 rejection.
func isUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// tokenFingerprint returns a SHA-256 prefix of the token for logging.
// SECURITY: Never log token fragments; use a fingerprint instead.
func tokenFingerprint(token string) string {
	if token == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:4])
}
