// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	require.Equal(t, "dark", cfg.UI.Theme)
	require.Empty(t, cfg.Server.BaseURL)
	require.False(t, cfg.Search.DeepByDefault)
}

func TestLoadFromPath_ReadsTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
version = "1.0.0"

[server]
base_url = "https://staging.example.org:8000"

[search]
deep_by_default = true

[ui]
theme = "light"
`), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, "https://staging.example.org:8000", cfg.Server.BaseURL)
	require.True(t, cfg.Search.DeepByDefault)
	require.Equal(t, "light", cfg.UI.Theme)
}

func TestLoadFromPath_RejectsBadTheme(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[ui]\ntheme = \"sepia\"\n"), 0600))

	_, err := LoadFromPath(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ui.theme")
}

func TestLoadFromPath_RejectsBadBaseURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nbase_url = \"ftp://nope\"\n"), 0600))

	_, err := LoadFromPath(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "server.base_url")
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SPYSEARCH_BASE_URL", "http://localhost:9999")
	t.Setenv("SPYSEARCH_DEEP", "true")
	t.Setenv("SPYSEARCH_THEME", "auto")

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	require.Equal(t, "http://localhost:9999", cfg.Server.BaseURL)
	require.True(t, cfg.Search.DeepByDefault)
	require.Equal(t, "auto", cfg.UI.Theme)
}

func TestSaveToPath_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.Server.BaseURL = "https://spysearch.org:8000"
	cfg.Search.DeepByDefault = true
	require.NoError(t, SaveToPath(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Server.BaseURL, loaded.Server.BaseURL)
	require.True(t, loaded.Search.DeepByDefault)
}
