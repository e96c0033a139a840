// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package credstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "credentials.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_GetAbsentKey(t *testing.T) {
	store := openTestStore(t)

	value, err := store.Get(KeyToken)
	require.NoError(t, err)
	require.Empty(t, value)
}

func TestStore_SetGetRoundTrip(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Set(KeyToken, "tok-abc123"))
	require.NoError(t, store.Set(KeyUser, `{"email":"a@b.c","name":"A"}`))

	token, err := store.Get(KeyToken)
	require.NoError(t, err)
	require.Equal(t, "tok-abc123", token)

	user, err := store.Get(KeyUser)
	require.NoError(t, err)
	require.Equal(t, `{"email":"a@b.c","name":"A"}`, user)
}

func TestStore_SetOverwrites(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Set(KeyToken, "first"))
	require.NoError(t, store.Set(KeyToken, "second"))

	token, err := store.Get(KeyToken)
	require.NoError(t, err)
	require.Equal(t, "second", token)
}

func TestStore_ClearRemovesBothKeys(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Set(KeyToken, "tok"))
	require.NoError(t, store.Set(KeyUser, "{}"))
	require.NoError(t, store.Clear())

	token, err := store.Get(KeyToken)
	require.NoError(t, err)
	require.Empty(t, token)

	user, err := store.Get(KeyUser)
	require.NoError(t, err)
	require.Empty(t, user)
}

func TestStore_DeleteAbsentKeyIsNoError(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Delete(KeyUser))
}

// TestStore_SurvivesReopen verifies the durability contract: values written
// before a close are visible after reopening the same path.
func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(KeyToken, "persisted"))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	token, err := reopened.Get(KeyToken)
	require.NoError(t, err)
	require.Equal(t, "persisted", token)
}
