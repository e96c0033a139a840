// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// repl.go - Interactive REPL for the spysearch CLI.
//
// USABILITY: Markdown rendering and history for better CLI experience
//
// Interactive Commands:
//   /help, /h           Show available commands
//   /login              Sign in with Google
//   /logout             Sign out and clear stored credentials
//   /status, /s         Show session and quota status
//   /deep               Toggle deep research mode
//   /attach [path]      Attach a file to the next message (no arg: list)
//   /detach             Drop all pending attachments
//   /save [path]        Export the conversation as markdown
//   /clear, /c          Clear conversation history
//   /quit, /q           Exit
//   Ctrl+D              Exit
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/peterh/liner"

	"github.com/morganforge/spysearch-tui/internal/auth"
	"github.com/morganforge/spysearch-tui/internal/chat"
	"github.com/morganforge/spysearch-tui/internal/config"
	"github.com/morganforge/spysearch-tui/internal/model"
	"github.com/morganforge/spysearch-tui/internal/quota"
	"github.com/morganforge/spysearch-tui/internal/transport"
	"github.com/morganforge/spysearch-tui/internal/ui/styles"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// InputCLI provides input history and line editing for the REPL.
// USABILITY: Supports arrow keys for history navigation and line editing.
type InputCLI struct {
	line        *liner.State
	historyFile string
}

// NewInputCLI creates an InputCLI with input history support.
func NewInputCLI() *InputCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &InputCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.loadHistory()
	return c
}

func (c *InputCLI) loadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *InputCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// saveHistory persists command history with secure permissions.
func (c *InputCLI) saveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *InputCLI) Close() {
	c.saveHistory()
	c.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

// REPL drives the interactive session: reading input, dispatching slash
// commands, and displaying streamed responses.
type REPL struct {
	auth  *auth.Manager
	guard *quota.Guard
	orch  *chat.Orchestrator
	input *InputCLI

	cfgMu sync.RWMutex
	cfg   *config.Config

	// per-send display state
	deep        bool
	pending     []transport.Attachment
	useMarkdown bool
	streamedLen int
}

// NewREPL wires a REPL over the assembled engine.
func NewREPL(cfg *config.Config, authMgr *auth.Manager, guard *quota.Guard, orch *chat.Orchestrator) *REPL {
	r := &REPL{
		auth:  authMgr,
		guard: guard,
		orch:  orch,
		cfg:   cfg,
		deep:  cfg.Search.DeepByDefault,
		input: NewInputCLI(),
	}

	orch.Subscribe(r.showNotice)
	orch.Conversation().Store.Subscribe(r.streamSnapshot)
	return r
}

// SetConfig swaps in a freshly reloaded configuration.
func (r *REPL) SetConfig(cfg *config.Config) {
	r.cfgMu.Lock()
	r.cfg = cfg
	r.cfgMu.Unlock()
	styles.ApplyTheme(cfg.UI.Theme)
}

func (r *REPL) config() *config.Config {
	r.cfgMu.RLock()
	defer r.cfgMu.RUnlock()
	return r.cfg
}

// Run enters the REPL loop and blocks until the user exits.
func (r *REPL) Run(ctx context.Context) error {
	defer r.input.Close()

	r.printWelcome()

	for {
		input, err := r.input.ReadInput(r.prompt())
		if err != nil {
			// Ctrl+C, Ctrl+D, or closed input all exit gracefully.
			fmt.Println()
			fmt.Println(styles.Muted.Render("Goodbye!"))
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			cont, err := r.handleCommand(ctx, input)
			if err != nil {
				fmt.Fprintln(os.Stderr, styles.RenderError(err.Error()))
			}
			if !cont {
				fmt.Println(styles.Muted.Render("Goodbye!"))
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			fmt.Println(styles.Muted.Render("Goodbye!"))
			return nil
		}

		r.sendMessage(ctx, input)
	}
}

// prompt renders the input prompt, marking deep mode and anonymous sessions.
func (r *REPL) prompt() string {
	marker := "spysearch> "
	if r.deep {
		return styles.DeepBadge.Render("[deep] ") + styles.Prompt.Render(marker)
	}
	return styles.Prompt.Render(marker)
}

// =============================================================================
// MESSAGE SENDING
// =============================================================================

// sendMessage runs one send through the orchestrator and displays the result.
func (r *REPL) sendMessage(ctx context.Context, text string) {
	cfg := r.config()
	r.useMarkdown = cfg.UI.RenderMarkdown && IsStdoutTTY()
	r.streamedLen = 0

	files := r.pending
	r.pending = nil

	fmt.Println()
	fmt.Print(styles.AssistantLabel.Render("spysearch: "))
	if r.useMarkdown || r.deep {
		fmt.Println()
	}

	err := r.orch.Send(ctx, text, files, r.deep)
	if err != nil {
		// The notice listener has already shown the failure.
		fmt.Println()
		return
	}

	msgs := r.orch.Conversation().Store.Snapshot()
	final := msgs[len(msgs)-1]
	if r.useMarkdown || r.deep {
		displayResponse(final.Content)
	}
	fmt.Println()

	if cfg.UI.ShowTiming && final.ResponseTime > 0 {
		fmt.Println(styles.Muted.Render(
			fmt.Sprintf("[%s]", final.ResponseTime.Round(time.Millisecond))))
	}
	fmt.Println()
}

// streamSnapshot prints the newly arrived tail of the streaming message.
// Markdown mode collects instead and renders once at the end.
func (r *REPL) streamSnapshot(msgs []model.Message) {
	if r.useMarkdown {
		return
	}
	loading, id := r.orch.Loading()
	if !loading || id == "" {
		return
	}
	for i := range msgs {
		if msgs[i].ID != id {
			continue
		}
		content := msgs[i].Content
		if content == chat.ErrorResponseText {
			return
		}
		if len(content) > r.streamedLen {
			fmt.Print(content[r.streamedLen:])
			r.streamedLen = len(content)
		}
		return
	}
}

// showNotice prints an orchestrator notice to stderr.
func (r *REPL) showNotice(n chat.Notice) {
	line := n.Description
	if n.Title != "" {
		line = n.Title + ": " + n.Description
	}
	switch n.Severity {
	case chat.SeverityError:
		fmt.Fprintln(os.Stderr, styles.RenderError(line))
	case chat.SeverityWarning:
		fmt.Fprintln(os.Stderr, styles.RenderWarning(line))
	default:
		fmt.Fprintln(os.Stderr, styles.RenderInfo(line))
	}
}

// =============================================================================
// WELCOME
// =============================================================================

func (r *REPL) printWelcome() {
	fmt.Println()
	fmt.Println(styles.AssistantLabel.Render("spysearch interactive search"))
	fmt.Println(styles.Muted.Render(strings.Repeat("─", 30)))

	session := r.auth.Session()
	if session.IsAuthenticated && session.User != nil {
		fmt.Printf("%s %s\n",
			styles.Muted.Render("Signed in:"),
			styles.RenderSuccess(session.User.Email))
	} else {
		fmt.Printf("%s %s\n",
			styles.Muted.Render("Signed in:"),
			styles.RenderWarning("no (use /login)"))
	}
	if r.deep {
		fmt.Printf("%s %s\n",
			styles.Muted.Render("Mode:"),
			styles.DeepBadge.Render("deep research"))
	}

	fmt.Println()
	fmt.Println(styles.Muted.Render("Type your query and press Enter. Commands: /help, /quit"))
	fmt.Println()
}
