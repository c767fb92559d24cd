package bot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Invocation describes one external process to run.
type Invocation struct {
	Interpreter string
	Args        []string
	// Secret, when non-empty, is written to the process's stdin and the
	// pipe is closed, priming tools that read a credential from stdin.
	Secret string
}

// RunOutcome is the single terminal result of a run.
type RunOutcome struct {
	Cancelled bool   // manual cancellation pre-empts the exit status
	SpawnErr  error  // non-nil when the process could not start
	Status    int    // exit status; meaningless when SpawnErr is set
	Output    string // accumulated stdout, newline-joined lines
	Errout    string // accumulated stderr, newline-joined lines
}

// Success reports whether the run completed normally with exit status 0.
func (o RunOutcome) Success() bool {
	return !o.Cancelled && o.SpawnErr == nil && o.Status == 0
}

// Err maps the outcome to the error taxonomy: nil on success, ErrCancelled,
// the wrapped spawn error, or ErrInternal for a non-zero exit.
func (o RunOutcome) Err() error {
	switch {
	case o.Cancelled:
		return ErrCancelled
	case o.SpawnErr != nil:
		return o.SpawnErr
	case o.Status != 0:
		return ErrInternal
	}
	return nil
}

// Runner spawns one external process at a time, streams its output and
// error lines into accumulators, and reports exactly one RunOutcome per
// Run call. A Runner is reusable across sequential runs; callers wanting
// concurrent runs must use separate instances.
type Runner struct {
	mu        sync.Mutex
	cmd       *exec.Cmd
	cancelled bool
}

// Run starts the process described by inv and returns a channel that
// delivers exactly one RunOutcome when the process terminates. A spawn
// failure is delivered as an outcome, not returned. If a run is already
// in flight on this Runner, the outcome carries ErrInternal as SpawnErr.
func (r *Runner) Run(ctx context.Context, inv Invocation) <-chan RunOutcome {
	out := make(chan RunOutcome, 1)

	r.mu.Lock()
	if r.cmd != nil {
		r.mu.Unlock()
		out <- RunOutcome{SpawnErr: fmt.Errorf("bot: runner already in flight: %w", ErrInternal)}
		return out
	}
	r.cancelled = false

	cmd := exec.CommandContext(ctx, inv.Interpreter, inv.Args...)

	// Use a process group so SIGTERM kills the entire tree (shell + children).
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = 10 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.mu.Unlock()
		out <- RunOutcome{SpawnErr: fmt.Errorf("bot: stdout pipe: %w", err)}
		return out
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		r.mu.Unlock()
		out <- RunOutcome{SpawnErr: fmt.Errorf("bot: stderr pipe: %w", err)}
		return out
	}

	var stdin io.WriteCloser
	if inv.Secret != "" {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			r.mu.Unlock()
			out <- RunOutcome{SpawnErr: fmt.Errorf("bot: stdin pipe: %w", err)}
			return out
		}
	}

	if err := cmd.Start(); err != nil {
		r.mu.Unlock()
		out <- RunOutcome{SpawnErr: fmt.Errorf("bot: start %s: %w", inv.Interpreter, err)}
		return out
	}
	r.cmd = cmd
	r.mu.Unlock()

	if stdin != nil {
		io.WriteString(stdin, inv.Secret+"\n")
		stdin.Close()
	}

	go func() {
		// Drain both streams fully before Wait so the terminal outcome
		// never races a final flush.
		var wg sync.WaitGroup
		var outText, errText string
		wg.Add(2)
		go func() {
			defer wg.Done()
			outText = collectLines(stdout)
		}()
		go func() {
			defer wg.Done()
			errText = collectLines(stderr)
		}()
		wg.Wait()

		status := 0
		if err := cmd.Wait(); err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				status = exitErr.ExitCode()
			} else {
				status = -1
			}
		}

		r.mu.Lock()
		cancelled := r.cancelled
		r.cmd = nil
		r.mu.Unlock()

		out <- RunOutcome{
			Cancelled: cancelled,
			Status:    status,
			Output:    outText,
			Errout:    errText,
		}
	}()

	return out
}

// Cancel marks the in-flight run as manually cancelled and signals its
// process group. The pending outcome reports Cancelled regardless of the
// exit status the process produces. A no-op when nothing is running.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil {
		return
	}
	r.cancelled = true
	if r.cmd.Process != nil {
		syscall.Kill(-r.cmd.Process.Pid, syscall.SIGTERM)
	}
}

// collectLines reads rd to EOF, trimming trailing newlines and joining
// lines with a single newline.
func collectLines(rd io.Reader) string {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var b []byte
	for scanner.Scan() {
		if len(b) > 0 {
			b = append(b, '\n')
		}
		b = append(b, scanner.Bytes()...)
	}
	return string(b)
}
