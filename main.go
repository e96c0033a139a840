// spysearch TUI - A terminal client for the SpySearch research backend.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/morganforge/spysearch-tui/internal/api"
	"github.com/morganforge/spysearch-tui/internal/auth"
	"github.com/morganforge/spysearch-tui/internal/chat"
	"github.com/morganforge/spysearch-tui/internal/cli"
	"github.com/morganforge/spysearch-tui/internal/config"
	"github.com/morganforge/spysearch-tui/internal/credstore"
	"github.com/morganforge/spysearch-tui/internal/model"
	"github.com/morganforge/spysearch-tui/internal/quota"
	"github.com/morganforge/spysearch-tui/internal/transport"
	"github.com/morganforge/spysearch-tui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "print version and exit")
		baseURL     = flag.String("base-url", "", "override the backend base URL")
		deep        = flag.Bool("deep", false, "start in deep research mode")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("spysearch %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(*baseURL, *deep); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(baseURLFlag string, deepFlag bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if baseURLFlag != "" {
		cfg.Server.BaseURL = baseURLFlag
	}
	if deepFlag {
		cfg.Search.DeepByDefault = true
	}
	styles.ApplyTheme(cfg.UI.Theme)

	store, err := openCredentials(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	endpoints := api.NewEndpoints(cfg.Server.BaseURL)
	manager := auth.NewManager(store, endpoints)
	guard := quota.NewGuard(endpoints, manager)
	tr := transport.NewTransport(endpoints, manager)
	conv := model.NewConversation()
	orch := chat.NewOrchestrator(conv, guard, tr)

	ctx := context.Background()

	// Restore any persisted session before the first prompt. Verification
	// failures other than an explicit rejection keep the cached session.
	if err := manager.Restore(ctx, false); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: session restore: %v\n", err)
	}

	repl := cli.NewREPL(cfg, manager, guard, orch)

	// Hot-reload the config file so edits apply without a restart.
	if path, err := config.ConfigPath(); err == nil {
		if watcher, err := config.NewWatcher(path, repl.SetConfig); err == nil {
			if err := watcher.Watch(); err == nil {
				defer watcher.Close()
			}
		}
	}

	return repl.Run(ctx)
}

// openCredentials opens the credential store at the configured or default path.
func openCredentials(cfg *config.Config) (*credstore.Store, error) {
	if cfg.Server.CredentialsPath != "" {
		return credstore.Open(cfg.Server.CredentialsPath)
	}
	return credstore.OpenDefault()
}
