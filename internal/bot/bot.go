// Package bot is the Shipmate core: the command supervisor that runs at
// most one external process at a time, and the conversational state
// machine that turns inbound chat events into multi-step guided dialogs.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/shipmatebot/shipmate/internal/chat"
	"github.com/shipmatebot/shipmate/internal/store"
)

// BranchLister supplies remote branch names for branch-prompt quick-picks.
type BranchLister interface {
	Branches(ctx context.Context) ([]string, error)
}

// maxBranchPicks caps the number of quick-pick rows on a branch prompt.
const maxBranchPicks = 5

// Daemon is the main bot process. It connects a chat adapter, dispatches
// inbound events through the dialog state machine, and runs the
// connectivity watchdog.
type Daemon struct {
	store    *store.Store
	adapter  chat.Adapter
	sup      *Supervisor
	branches BranchLister
	probe    time.Duration
	out      io.Writer

	dialogs dialogSet
}

// DaemonOpts holds parameters for creating a Daemon.
type DaemonOpts struct {
	Store      *store.Store
	Adapter    chat.Adapter
	Supervisor *Supervisor
	Branches   BranchLister  // optional; enables remote branch quick-picks
	Probe      time.Duration // watchdog probe interval; defaults to DefaultProbeInterval
	Out        io.Writer     // defaults to os.Stdout
}

// NewDaemon creates a Daemon.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("bot: store is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: adapter is required")
	}
	if opts.Supervisor == nil {
		return nil, fmt.Errorf("bot: supervisor is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Daemon{
		store:    opts.Store,
		adapter:  opts.Adapter,
		sup:      opts.Supervisor,
		branches: opts.Branches,
		probe:    opts.Probe,
		out:      out,
	}, nil
}

// Run connects the adapter, starts the watchdog, and pumps inbound events
// until the context is cancelled or the adapter closes its channel.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "Shipmate connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("bot: connect: %w", err)
	}

	if reg, ok := d.adapter.(chat.CommandRegistrar); ok {
		if err := reg.RegisterCommands(ctx, MenuCommands()); err != nil {
			log.Printf("bot: register commands: %v", err)
		}
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: listen: %w", err)
	}

	watchdog := NewWatchdog(WatchdogOpts{Adapter: d.adapter, Interval: d.probe})
	go watchdog.Run(ctx)

	fmt.Fprintf(d.out, "Shipmate online\n")

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Shipmate shutting down...\n")
			if err := d.adapter.Close(); err != nil {
				log.Printf("bot: close adapter: %v", err)
			}
			return nil
		case ev, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "Shipmate inbound channel closed\n")
				return nil
			}
			d.OnEvent(ctx, ev)
		}
	}
}

// OnEvent is the single dispatch entry point. It routes the event to at
// most one dialog and never propagates automation failures back to the
// transport.
func (d *Daemon) OnEvent(ctx context.Context, ev chat.Event) {
	// A known command token starts a fresh dialog, replacing any stale
	// one for the same user, after the availability gate.
	if ev.Type == chat.EventMessage {
		if kind, ok := Parse(strings.TrimSpace(ev.Text)); ok {
			available, err := d.store.UserAvailable(ev.UserID, ev.Username)
			if err != nil {
				log.Printf("bot: user gate: %v", err)
				return
			}
			if !available {
				d.send(ctx, ev.UserID, "Wait for confirmation", nil)
				return
			}
			d.advance(ctx, &Dialog{Command: Command{Kind: kind}, UserID: ev.UserID}, ev)
			return
		}
	}

	// Otherwise the event continues an existing dialog: poll results
	// match on poll identity, messages on user identity. Events that
	// belong to no active flow are dropped silently.
	var dlg *Dialog
	switch ev.Type {
	case chat.EventPoll:
		dlg = d.dialogs.byPoll(ev.PollID)
	case chat.EventMessage:
		dlg = d.dialogs.byUser(ev.UserID)
	}
	if dlg == nil {
		return
	}
	d.advance(ctx, dlg, ev)
}

// advance executes one step of the dialog's command.
func (d *Daemon) advance(ctx context.Context, dlg *Dialog, ev chat.Event) {
	switch dlg.Command.Kind {
	case KindStart, KindHelp:
		d.send(ctx, dlg.UserID, HelpText(), nil)
	case KindGetConfig:
		d.send(ctx, dlg.UserID, ConfigText(d.store.ProjectConfig()), nil)
	case KindSetConfig:
		d.advanceSetConfig(ctx, dlg, ev)
	case KindGitCheckout, KindGitFetch, KindGitPull, KindGitStatus, KindGitDiscardAll:
		d.runGit(ctx, dlg.UserID, dlg.Command)
	case KindUpload:
		d.advanceUpload(ctx, dlg, ev)
	case KindTerminal:
		d.advanceTerminal(ctx, dlg, ev)
	case KindStatus:
		d.reportStatus(ctx, dlg.UserID)
	case KindCancel:
		d.handleCancel(ctx, dlg.UserID)
	}
}

// advanceSetConfig drives the set-config flow: phone share, project path,
// target list, persist.
func (d *Daemon) advanceSetConfig(ctx context.Context, dlg *Dialog, ev chat.Event) {
	switch dlg.Step {
	case 0:
		dlg.Step = 1
		d.dialogs.replace(dlg)
		kb := &chat.Keyboard{Rows: [][]chat.Button{{
			{Text: "Share your phone number", RequestContact: true},
		}}}
		d.send(ctx, dlg.UserID, "Share your phone number for authorization", kb)
	case 1:
		// Platforms without native contact sharing render the button as a
		// plain one; the user types the number instead.
		if ev.ContactPhone == "" && !looksLikePhone(ev.Text) {
			return
		}
		dlg.Step = 2
		d.send(ctx, dlg.UserID, "Enter the path to the project:", nil)
	case 2:
		if ev.Text == "" {
			return
		}
		dlg.Command.ProjectPath = ev.Text
		dlg.Step = 3
		d.send(ctx, dlg.UserID, "Enter the names of the targets, separating them with commas:", nil)
	case 3:
		if ev.Text == "" {
			return
		}
		dlg.Command.Targets = ParseTargets(ev.Text)
		cfg := store.ProjectConfig{
			ProjectPath: dlg.Command.ProjectPath,
			Targets:     dlg.Command.Targets,
		}
		if err := d.store.SetProjectConfig(cfg); err != nil {
			log.Printf("bot: persist config: %v", err)
		}
		d.dialogs.remove(dlg)
		d.send(ctx, dlg.UserID, HelpText(), nil)
	default:
		d.send(ctx, dlg.UserID, userText(ErrInternal), nil)
	}
}

// advanceUpload drives the upload flow: branch, target poll, version,
// confirm, execute.
func (d *Daemon) advanceUpload(ctx context.Context, dlg *Dialog, ev chat.Event) {
	if busy := d.sup.Busy(); busy != "" {
		d.send(ctx, dlg.UserID, userText(&BusyError{Command: busy}), nil)
		return
	}
	switch dlg.Step {
	case 0:
		dlg.Step = 1
		d.dialogs.replace(dlg)
		d.send(ctx, dlg.UserID, "Enter a branch", d.branchKeyboard(ctx))
	case 1:
		if ev.Text == "" {
			return
		}
		dlg.Command.Branch = ev.Text
		cfg := d.store.ProjectConfig()
		pollID, err := d.adapter.SendPoll(ctx, dlg.UserID, chat.Poll{
			Question:      "Select the targets you want to upload",
			Options:       cfg.Targets,
			AllowMultiple: true,
			Keyboard:      chat.SingleRow("All targets"),
		})
		if err != nil {
			log.Printf("bot: send poll: %v", err)
			return
		}
		dlg.Step = 2
		dlg.PollID = pollID
		dlg.PollOptions = cfg.Targets
	case 2:
		var targets []string
		switch {
		case ev.Type == chat.EventPoll:
			for _, i := range ev.Selected {
				if i >= 0 && i < len(dlg.PollOptions) {
					targets = append(targets, dlg.PollOptions[i])
				}
			}
		case ev.Text == "All targets":
			targets = d.store.ProjectConfig().Targets
		}
		if len(targets) == 0 {
			return
		}
		dlg.Command.Targets = targets
		dlg.Step = 3
		var kb *chat.Keyboard
		if next := NextVersion(d.store.BotSettings().LastVersion); next != "" {
			kb = chat.SingleRow(next)
		}
		d.send(ctx, dlg.UserID, "Enter the version and build. Example: 1.0 1", kb)
	case 3:
		if ev.Text == "" {
			return
		}
		dlg.Command.Version = ev.Text
		dlg.Step = 4
		d.send(ctx, dlg.UserID, UploadSummary(dlg.Command.Targets, dlg.Command.Version), nil)
		d.advance(ctx, dlg, ev)
	case 4:
		d.dialogs.remove(dlg)
		d.runShell(ctx, dlg.UserID, dlg.Command)
	}
}

// advanceTerminal drives the terminal-command flow: prompt, capture,
// execute verbatim with no further confirmation.
func (d *Daemon) advanceTerminal(ctx context.Context, dlg *Dialog, ev chat.Event) {
	if busy := d.sup.Busy(); busy != "" {
		d.send(ctx, dlg.UserID, userText(&BusyError{Command: busy}), nil)
		return
	}
	switch dlg.Step {
	case 0:
		dlg.Step = 1
		d.dialogs.replace(dlg)
		d.send(ctx, dlg.UserID, "Enter the command", nil)
	case 1:
		if ev.Text == "" {
			return
		}
		dlg.Command.Raw = ev.Text
		dlg.Step = 2
		d.advance(ctx, dlg, ev)
	case 2:
		d.dialogs.remove(dlg)
		d.runShell(ctx, dlg.UserID, dlg.Command)
	}
}

// handleCancel removes any dialog for the user, cancels the running
// command if there is one, and confirms.
func (d *Daemon) handleCancel(ctx context.Context, userID int64) {
	d.dialogs.remove(&Dialog{UserID: userID})
	if err := d.sup.Cancel(); err != nil && !errors.Is(err, ErrNoProcesses) {
		log.Printf("bot: cancel: %v", err)
	}
	d.send(ctx, userID, "Local processes have been canceled", nil)
}

// reportStatus reports the busy token, or "No processes found". A pure
// read: it never errors the caller's flow.
func (d *Daemon) reportStatus(ctx context.Context, userID int64) {
	if busy, ok := d.sup.Status(); ok {
		d.send(ctx, userID, userText(&BusyError{Command: busy}), nil)
		return
	}
	d.send(ctx, userID, userText(ErrNoProcesses), nil)
}

// runGit executes a git command against the configured project on the
// last-used branch and reports the outcome asynchronously.
func (d *Daemon) runGit(ctx context.Context, userID int64, cmd Command) {
	cfg := d.store.ProjectConfig()
	branch := d.store.BotSettings().LastBranch
	resCh, err := d.sup.ExecuteGit(ctx, cmd, cfg.ProjectPath, branch)
	if err != nil {
		d.send(ctx, userID, userText(err), nil)
		return
	}
	d.send(ctx, userID, StartMessage(cmd.Kind.Token()), nil)
	// Receive inside the goroutine: the dispatch loop must stay free to
	// take /cancel while the command runs.
	go func() {
		d.deliverResult(ctx, userID, <-resCh)
	}()
}

// runShell executes a shell command against the configured project and
// reports the outcome asynchronously. An upload that succeeds persists
// its branch and version as the new last-used settings.
func (d *Daemon) runShell(ctx context.Context, userID int64, cmd Command) {
	cfg := d.store.ProjectConfig()
	resCh, err := d.sup.ExecuteShell(ctx, cmd, cfg.ProjectPath)
	if err != nil {
		d.send(ctx, userID, userText(err), nil)
		return
	}
	d.send(ctx, userID, StartMessage(cmd.Kind.Token()), nil)
	go func() {
		res := <-resCh
		if cmd.Kind == KindUpload && res.Outcome.Success() {
			bs := store.BotSettings{LastBranch: cmd.Branch, LastVersion: cmd.Version}
			if err := d.store.SetBotSettings(bs); err != nil {
				log.Printf("bot: persist settings: %v", err)
			}
		}
		d.deliverResult(ctx, userID, res)
	}()
}

// deliverResult sends the formatted result message and any log attachments.
func (d *Daemon) deliverResult(ctx context.Context, userID int64, res Result) {
	text, docs := FormatResult(res)
	d.send(ctx, userID, text, nil)
	for _, doc := range docs {
		if err := d.adapter.SendDocument(ctx, userID, doc); err != nil {
			log.Printf("bot: send document %s: %v", doc.Filename, err)
		}
	}
}

// branchKeyboard builds the quick-pick keyboard for a branch prompt: the
// last-used branch first, then remote branches when a lister is wired.
func (d *Daemon) branchKeyboard(ctx context.Context) *chat.Keyboard {
	var rows [][]chat.Button
	last := d.store.BotSettings().LastBranch
	if last != "" {
		rows = append(rows, []chat.Button{{Text: last}})
	}
	if d.branches != nil {
		bctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		names, err := d.branches.Branches(bctx)
		if err != nil {
			log.Printf("bot: list branches: %v", err)
		}
		for _, name := range names {
			if name == last {
				continue
			}
			rows = append(rows, []chat.Button{{Text: name}})
			if len(rows) >= maxBranchPicks {
				break
			}
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return &chat.Keyboard{Rows: rows}
}

// send delivers a text message, logging failures instead of surfacing
// them: outbound trouble must never break the dispatch path.
func (d *Daemon) send(ctx context.Context, userID int64, text string, kb *chat.Keyboard) {
	if err := d.adapter.SendText(ctx, userID, text, kb); err != nil {
		log.Printf("bot: send message: %v", err)
	}
}

// ParseTargets splits a comma-separated target list, collapsing internal
// whitespace and dropping empty tokens.
func ParseTargets(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		t := condenseWhitespace(part)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// condenseWhitespace trims and collapses all whitespace runs to single
// spaces.
func condenseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// looksLikePhone reports whether s is plausibly a typed phone number: at
// least five digits and nothing but digits, spaces, and +-() separators.
func looksLikePhone(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == '-' || r == '(' || r == ')' || r == ' ':
		default:
			return false
		}
	}
	return digits >= 5
}
