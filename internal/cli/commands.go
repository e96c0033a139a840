// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// commands.go - Slash command dispatch for the spysearch REPL.

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/morganforge/spysearch-tui/internal/auth"
	"github.com/morganforge/spysearch-tui/internal/model"
	"github.com/morganforge/spysearch-tui/internal/transport"
	"github.com/morganforge/spysearch-tui/internal/ui/styles"
	"github.com/morganforge/spysearch-tui/internal/util"
)

// maxAttachmentSize bounds a single attached file.
const maxAttachmentSize = 10 << 20

// handleCommand processes a slash command.
// Returns (shouldContinue, error) where shouldContinue=false means exit.
func (r *REPL) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		r.printHelp()
		return true, nil

	case "/login":
		return true, r.handleLogin(ctx)

	case "/logout":
		r.auth.Logout()
		fmt.Println(styles.RenderSuccess("Signed out. Stored credentials cleared."))
		return true, nil

	case "/status", "/s":
		r.printStatus(ctx)
		return true, nil

	case "/deep", "/d":
		r.deep = !r.deep
		if r.deep {
			fmt.Println(styles.DeepBadge.Render("[deep research mode on]") +
				styles.Muted.Render(" (5 tokens per search)"))
		} else {
			fmt.Println(styles.Muted.Render("[deep research mode off]"))
		}
		return true, nil

	case "/attach", "/a":
		return true, r.handleAttach(args)

	case "/detach":
		n := len(r.pending)
		r.pending = nil
		fmt.Println(styles.Muted.Render(fmt.Sprintf("[%d attachment(s) dropped]", n)))
		return true, nil

	case "/save":
		return true, r.handleSave(args)

	case "/clear", "/c":
		r.orch.Conversation().Reset()
		fmt.Println(styles.Muted.Render("[Conversation cleared]"))
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

// =============================================================================
// LOGIN FLOW
// =============================================================================

// handleLogin walks the browser sign-in flow: fetch the provider URL, have
// the user authorize in a browser, then paste the callback URL back here.
func (r *REPL) handleLogin(ctx context.Context) error {
	if r.auth.IsAuthenticated() {
		session := r.auth.Session()
		if session.User != nil {
			fmt.Println(styles.RenderInfo("Already signed in as " + session.User.Email))
		}
		return nil
	}

	authURL, err := r.auth.LoginWithGoogle(ctx)
	if err != nil {
		return fmt.Errorf("could not start sign-in: %w", err)
	}

	fmt.Println()
	fmt.Println(styles.RenderInfo("Open this URL in your browser to sign in:"))
	fmt.Println("  " + authURL)
	fmt.Println()
	fmt.Println(styles.Muted.Render("After authorizing, paste the full callback URL below."))

	raw, err := r.input.ReadInput(styles.Prompt.Render("callback> "))
	if err != nil {
		return fmt.Errorf("sign-in aborted")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("sign-in aborted")
	}

	if !auth.LooksLikeCallback(raw) {
		return fmt.Errorf("that does not look like a callback URL")
	}
	cb, _, ok := auth.ParseCallbackURL(raw)
	if !ok {
		return fmt.Errorf("callback URL carries no sign-in result")
	}

	if err := r.auth.CompleteLoginFromCallback(ctx, cb); err != nil {
		return fmt.Errorf("sign-in failed: %w", err)
	}

	session := r.auth.Session()
	if session.User != nil {
		fmt.Println(styles.RenderSuccess("Signed in as " + session.User.Email))
	} else {
		fmt.Println(styles.RenderSuccess("Signed in."))
	}
	return nil
}

// =============================================================================
// STATUS
// =============================================================================

func (r *REPL) printStatus(ctx context.Context) {
	fmt.Println()
	fmt.Println(styles.Prompt.Render("Session Status"))
	fmt.Println(styles.Muted.Render(strings.Repeat("─", 20)))

	session := r.auth.Session()
	switch {
	case session.IsLoading:
		fmt.Printf("  %s verifying...\n", styles.Muted.Render("Account:"))
	case session.IsAuthenticated && session.User != nil:
		name := session.User.Email
		if session.User.Name != "" {
			name = session.User.Name + " <" + session.User.Email + ">"
		}
		fmt.Printf("  %s %s\n", styles.Muted.Render("Account:"), name)
	default:
		fmt.Printf("  %s not signed in\n", styles.Muted.Render("Account:"))
	}

	mode := "standard"
	if r.deep {
		mode = "deep research"
	}
	fmt.Printf("  %s %s\n", styles.Muted.Render("Mode:"), mode)
	fmt.Printf("  %s %s\n", styles.Muted.Render("Conversation:"), r.orch.Conversation().Title())
	fmt.Printf("  %s %d messages\n", styles.Muted.Render("History:"), r.orch.Conversation().Store.Len())
	if len(r.pending) > 0 {
		fmt.Printf("  %s %d pending\n", styles.Muted.Render("Attachments:"), len(r.pending))
	}

	if session.IsAuthenticated {
		statusCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if status, err := r.guard.Status(statusCtx); err == nil {
			fmt.Printf("  %s %d remaining today\n",
				styles.Muted.Render("Tokens:"), status.DailyTokensRemaining)
		} else {
			fmt.Printf("  %s unavailable\n", styles.Muted.Render("Tokens:"))
		}
	}
	fmt.Println()
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// handleAttach queues a file for the next message, or lists the queue.
func (r *REPL) handleAttach(args []string) error {
	if len(args) == 0 {
		if len(r.pending) == 0 {
			fmt.Println(styles.Muted.Render("[No pending attachments]"))
			return nil
		}
		for _, f := range r.pending {
			fmt.Printf("  %s (%d bytes)\n", f.Name, len(f.Data))
		}
		return nil
	}

	path := args[0]
	att, err := loadAttachment(path)
	if err != nil {
		return err
	}
	r.pending = append(r.pending, att)
	fmt.Println(styles.RenderSuccess(fmt.Sprintf("Attached %s (%d bytes)", att.Name, len(att.Data))))
	return nil
}

// loadAttachment reads a file from disk into an outbound attachment.
func loadAttachment(path string) (transport.Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return transport.Attachment{}, fmt.Errorf("cannot attach %s: %w", path, err)
	}
	if info.IsDir() {
		return transport.Attachment{}, fmt.Errorf("cannot attach %s: is a directory", path)
	}
	if info.Size() > maxAttachmentSize {
		return transport.Attachment{}, fmt.Errorf("cannot attach %s: larger than %d MB", path, maxAttachmentSize>>20)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return transport.Attachment{}, fmt.Errorf("cannot attach %s: %w", path, err)
	}
	return transport.Attachment{Name: filepath.Base(path), Data: data}, nil
}

// =============================================================================
// EXPORT
// =============================================================================

// handleSave exports the conversation transcript as a markdown file.
func (r *REPL) handleSave(args []string) error {
	conv := r.orch.Conversation()
	if conv.Store.Len() == 0 {
		return fmt.Errorf("nothing to save yet")
	}

	path := fmt.Sprintf("spysearch-%s.md", time.Now().Format("20060102-150405"))
	if len(args) > 0 {
		path = args[0]
	}

	if err := util.AtomicWriteFile(path, []byte(formatTranscript(conv)), 0600); err != nil {
		return fmt.Errorf("save failed: %w", err)
	}
	fmt.Println(styles.RenderSuccess("Saved conversation to " + path))
	return nil
}

// formatTranscript renders the conversation as a markdown document.
func formatTranscript(conv *model.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", conv.Title())

	for _, msg := range conv.Store.Snapshot() {
		switch msg.Type {
		case model.MessageUser:
			fmt.Fprintf(&b, "## You\n\n%s\n\n", msg.Content)
		case model.MessageAssistant:
			fmt.Fprintf(&b, "## SpySearch\n\n%s\n\n", msg.Content)
		}
	}
	return b.String()
}

// =============================================================================
// HELP
// =============================================================================

func (r *REPL) printHelp() {
	fmt.Println()
	fmt.Println(styles.Prompt.Render("Available Commands"))
	fmt.Println(styles.Muted.Render(strings.Repeat("─", 20)))
	fmt.Println()

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/login", "Sign in with Google"},
		{"/logout", "Sign out and clear stored credentials"},
		{"/status, /s", "Show session and quota status"},
		{"/deep, /d", "Toggle deep research mode (5 tokens)"},
		{"/attach [path]", "Attach a file to the next message"},
		{"/detach", "Drop all pending attachments"},
		{"/save [path]", "Export the conversation as markdown"},
		{"/clear, /c", "Clear conversation history"},
		{"/quit, /q", "Exit"},
	}

	for _, c := range commands {
		fmt.Printf("  %s  %s\n",
			styles.Command.Render(util.PadRight(c.cmd, 16)),
			styles.Muted.Render(c.desc))
	}

	fmt.Println()
	fmt.Println(styles.Muted.Render("Tip: Ctrl+D exits"))
	fmt.Println()
}
