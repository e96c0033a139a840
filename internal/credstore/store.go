// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package credstore provides the durable credential store for the SpySearch
// client: a synchronous key-value store that survives restarts and holds
// exactly two entries, the bearer token and the serialized user profile.
//
// The store is pure persistence. It performs no validation or parsing of
// the values it holds; session logic lives in the auth package.
package credstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Keys for the two persisted entries.
const (
	KeyToken = "auth_token"
	KeyUser  = "user_data"
)

// =============================================================================
// STORE
// =============================================================================

// Store is a SQLite-backed credential store. All operations are synchronous
// and serialized; the store is safe for use from multiple goroutines.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (or creates) the credential store at the given path.
// Parent directories are created as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create credstore directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open credstore: %w", err)
	}

	// Single writer; the store is tiny and contention-free.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS credentials (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize credstore schema: %w", err)
	}

	return &Store{db: db}, nil
}

// OpenDefault opens the store at ~/.spysearch/credentials.db.
func OpenDefault() (*Store, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return Open(filepath.Join(homeDir, ".spysearch", "credentials.db"))
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// =============================================================================
// GET / SET / CLEAR
// =============================================================================

// Get returns the stored value for key, or "" if absent.
func (s *Store) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM credentials WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("credstore read failed: %w", err)
	}
	return value, nil
}

// Set stores value under key, replacing any existing entry.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO credentials (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("credstore write failed: %w", err)
	}
	return nil
}

// Delete removes the entry for key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM credentials WHERE key = ?`, key); err != nil {
		return fmt.Errorf("credstore delete failed: %w", err)
	}
	return nil
}

// Clear removes both credential entries in one transaction, so a crash can
// never leave the token without its user profile or vice versa.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("credstore clear failed: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM credentials WHERE key IN (?, ?)`, KeyToken, KeyUser); err != nil {
		tx.Rollback()
		return fmt.Errorf("credstore clear failed: %w", err)
	}
	return tx.Commit()
}
