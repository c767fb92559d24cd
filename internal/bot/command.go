package bot

import (
	"fmt"
	"strings"

	"github.com/shipmatebot/shipmate/internal/chat"
)

// Kind identifies one command variant.
type Kind int

const (
	// KindNone is the zero Kind: no command.
	KindNone Kind = iota

	// Interactive dialog commands.
	KindStart
	KindHelp
	KindSetConfig
	KindGetConfig

	// Git operations, parameterized by a branch.
	KindGitCheckout
	KindGitFetch
	KindGitPull
	KindGitStatus
	KindGitDiscardAll

	// Shell operations.
	KindUpload
	KindStatus
	KindCancel
	KindTerminal
)

// tokens maps every declared Kind to its canonical chat token. The mapping
// is a bijection: Parse inverts it exactly.
var tokens = map[Kind]string{
	KindStart:         "/start",
	KindHelp:          "/help",
	KindSetConfig:     "/setconfig",
	KindGetConfig:     "/getconfig",
	KindGitCheckout:   "/gitcheckout",
	KindGitFetch:      "/gitfetch",
	KindGitPull:       "/gitpull",
	KindGitStatus:     "/gitstatus",
	KindGitDiscardAll: "/gitdiscardall",
	KindUpload:        "/upload",
	KindStatus:        "/status",
	KindCancel:        "/cancel",
	KindTerminal:      "/terminalcommand",
}

// Token returns the canonical chat token for k, or "" for KindNone.
func (k Kind) Token() string {
	return tokens[k]
}

// IsGit reports whether k is a git operation.
func (k Kind) IsGit() bool {
	switch k {
	case KindGitCheckout, KindGitFetch, KindGitPull, KindGitStatus, KindGitDiscardAll:
		return true
	}
	return false
}

// IsShell reports whether k is a shell operation.
func (k Kind) IsShell() bool {
	switch k {
	case KindUpload, KindStatus, KindCancel, KindTerminal:
		return true
	}
	return false
}

// Parse maps a chat token to its Kind. Git tokens match case-insensitively;
// all others match exactly. Unknown tokens yield (KindNone, false).
func Parse(text string) (Kind, bool) {
	for k, tok := range tokens {
		if text == tok {
			return k, true
		}
		if k.IsGit() && strings.EqualFold(text, tok) {
			return k, true
		}
	}
	return KindNone, false
}

// Command is one parsed command plus the parameters accumulated across
// dialog steps.
type Command struct {
	Kind        Kind
	Branch      string   // git operations, upload
	Targets     []string // upload, set-config
	Version     string   // upload: "version build"
	ProjectPath string   // set-config
	Raw         string   // terminal: verbatim command text
}

// GitScript returns the shell script for a git command, or false when the
// kind is not a git operation. Interpolated values are substituted as-is:
// paths and branch names are NOT shell-escaped.
func (c Command) GitScript(projectPath, branch string) (string, bool) {
	switch c.Kind {
	case KindGitCheckout:
		return fmt.Sprintf("cd %s; git checkout %s;", projectPath, branch), true
	case KindGitFetch:
		return fmt.Sprintf("cd %s; git fetch origin %s;", projectPath, branch), true
	case KindGitPull:
		return fmt.Sprintf("cd %s; git pull origin %s;", projectPath, branch), true
	case KindGitStatus:
		return fmt.Sprintf("cd %s; git status;", projectPath), true
	case KindGitDiscardAll:
		return fmt.Sprintf("cd %s; git restore .;", projectPath), true
	}
	return "", false
}

// ShellScript returns the shell script for a shell command, or false when
// the variant has no executable mapping (status, cancel). Every script is
// prefixed with the wake command so the host stays awake from the first
// moment of execution.
func (c Command) ShellScript(projectPath, wakeCommand string) (string, bool) {
	switch c.Kind {
	case KindUpload:
		targets := strings.Join(c.Targets, " ")
		return fmt.Sprintf("%s; cd %s/ci_scripts; sh ci_upload.sh %s %s \"%s\";",
			wakeCommand, projectPath, c.Branch, c.Version, targets), true
	case KindTerminal:
		return fmt.Sprintf("%s; %s", wakeCommand, c.Raw), true
	}
	return "", false
}

// MenuCommands is the command menu published to platforms that support one.
func MenuCommands() []chat.BotCommand {
	return []chat.BotCommand{
		{Command: "/upload", Description: "archive builds and upload them"},
		{Command: "/cancel", Description: "cancel the current process"},
		{Command: "/status", Description: "get the status of the current process"},
		{Command: "/gitpull", Description: "pull commits"},
		{Command: "/gitdiscardall", Description: "discard all changes"},
		{Command: "/gitstatus", Description: "check git status"},
		{Command: "/help", Description: "see the list of commands"},
	}
}
