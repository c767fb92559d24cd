package bot

import (
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shipmatebot/shipmate/internal/chat"
	"github.com/shipmatebot/shipmate/internal/store"
)

// userText renders an error for chat display, capitalizing the first rune.
func userText(err error) string {
	msg := err.Error()
	if msg == "" {
		return msg
	}
	r, size := utf8.DecodeRuneInString(msg)
	return string(unicode.ToUpper(r)) + msg[size:]
}

// Log attachment filenames.
const (
	outputLogName = "output_log.txt"
	errorLogName  = "error_log.txt"
)

// FormatElapsed renders a duration as "XhYmZs" wall-clock components.
func FormatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatResult renders a Result as the user-facing completion message plus
// any log attachments. Output and error captures become downloadable
// documents when non-empty.
func FormatResult(res Result) (string, []chat.Document) {
	elapsed := FormatElapsed(res.Elapsed)
	var docs []chat.Document

	if res.Outcome.Output != "" {
		docs = append(docs, newDocument(outputLogName, res.Outcome.Output))
	}

	if res.Outcome.Success() {
		var b strings.Builder
		fmt.Fprintf(&b, "The %s command was executed successfully!\n", res.Command)
		if res.Outcome.Output != "" {
			fmt.Fprintf(&b, "Attached file with logs %s\n", outputLogName)
		}
		fmt.Fprintf(&b, "-----------\nTotal time taken: %s\n-----------", elapsed)
		return b.String(), docs
	}

	var extra string
	switch {
	case res.Outcome.Cancelled:
		extra = fmt.Sprintf("The %s command was canceled!", res.Command)
		docs = nil // a cancelled run attaches nothing
	case res.Outcome.SpawnErr != nil:
		extra = res.Outcome.SpawnErr.Error()
	default:
		extra = fmt.Sprintf("Status code: %d", res.Outcome.Status)
	}

	if !res.Outcome.Cancelled && res.Outcome.Errout != "" {
		docs = append(docs, newDocument(errorLogName, res.Outcome.Errout))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The %s command was executed with an error:\n%s\n", res.Command, extra)
	for _, doc := range docs {
		fmt.Fprintf(&b, "Attached file with logs %s\n", doc.Filename)
	}
	fmt.Fprintf(&b, "-----------\nTotal time taken: %s\n-----------", elapsed)
	return b.String(), docs
}

// newDocument wraps captured text as an attachment, sniffing the MIME type.
func newDocument(filename, text string) chat.Document {
	data := []byte(text)
	return chat.Document{
		Filename: filename,
		Data:     data,
		MimeType: http.DetectContentType(data),
	}
}

// HelpText lists every command the bot understands.
func HelpText() string {
	return `List of commands:
/help, /start - see the list of commands
/setconfig - change the current config
/getconfig - display the current config

Commands for interacting with git
/gitcheckout - switch to a branch
/gitfetch - fetch commits
/gitpull - pull commits
/gitdiscardall - discard all changes
/gitstatus - check status

Commands for interacting with project processes:
/upload - archive builds and upload them
/cancel - cancel the current process
/status - get the status of the current process
/terminalcommand - execute any command in the terminal`
}

// ConfigText renders the current project config.
func ConfigText(cfg store.ProjectConfig) string {
	return fmt.Sprintf("Project config:\nPath: %s\nTargets: %s",
		cfg.ProjectPath, strings.Join(cfg.Targets, ", "))
}

// UploadSummary renders the pre-execution summary of an upload.
func UploadSummary(targets []string, version string) string {
	return fmt.Sprintf("Uploading info:\nTargets: %s\nVersion: %s",
		strings.Join(targets, ", "), version)
}

// NextVersion suggests the next "version build" string from the last-used
// one: the build number is incremented, the version part kept. Returns ""
// when last cannot be parsed.
func NextVersion(last string) string {
	parts := strings.Fields(last)
	if len(parts) != 2 {
		return ""
	}
	var build int
	if _, err := fmt.Sscanf(parts[1], "%d", &build); err != nil {
		return ""
	}
	return fmt.Sprintf("%s %d", parts[0], build+1)
}
