package bot

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to the operator as chat messages. None of them
// ever crash the daemon; the dispatch layer converts each into text.
var (
	// ErrNoProcesses is returned by status/cancel when nothing is running.
	ErrNoProcesses = errors.New("no processes found")
	// ErrNoInvocation is returned when a command variant has no shell
	// mapping (status, cancel).
	ErrNoInvocation = errors.New("no commands found for this process")
	// ErrCancelled marks an outcome produced by a manual cancellation.
	ErrCancelled = errors.New("the process has been canceled")
	// ErrInternal is the catch-all for states that should not happen.
	ErrInternal = errors.New("something went wrong")
)

// BusyError reports that a command is already executing. It carries the
// busy command's token so the user knows what to cancel.
type BusyError struct {
	Command string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("busy with the %s process. To cancel the current process, call the /cancel command", e.Command)
}
