package bot

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// keepAliveSpec is the cadence of the keep-alive side-timer: while a
// command runs, the wake command fires this often to stop the host from
// idling or sleeping.
const keepAliveSpec = "@every 30s"

// Result is the terminal report of one supervised execution.
type Result struct {
	Command string // the command's display token
	Outcome RunOutcome
	Elapsed time.Duration
}

// Supervisor runs at most one external command at a time. The busy token
// is the mutual-exclusion signal: every caller that wants to test
// single-flight status reads it through Status or Busy.
type Supervisor struct {
	runner      *Runner
	interpreter string
	wakeCommand string

	mu        sync.Mutex
	busy      string // token of the executing command, "" when idle
	keepAlive *cron.Cron
}

// SupervisorOpts holds parameters for creating a Supervisor.
type SupervisorOpts struct {
	Interpreter string // defaults to /bin/zsh
	WakeCommand string // defaults to "caffeinate -u -t 1"
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(opts SupervisorOpts) *Supervisor {
	interpreter := opts.Interpreter
	if interpreter == "" {
		interpreter = "/bin/zsh"
	}
	wake := opts.WakeCommand
	if wake == "" {
		wake = "caffeinate -u -t 1"
	}
	return &Supervisor{
		runner:      &Runner{},
		interpreter: interpreter,
		wakeCommand: wake,
	}
}

// Busy returns the executing command's token, or "" when idle.
func (s *Supervisor) Busy() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Status reports the busy token. It is a read-only probe: the boolean is
// false when nothing is running.
func (s *Supervisor) Status() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy, s.busy != ""
}

// ExecuteGit runs a git command against projectPath on branch. It rejects
// with *BusyError when a command is already executing and ErrNoInvocation
// when the kind has no shell mapping. The returned channel delivers
// exactly one Result.
func (s *Supervisor) ExecuteGit(ctx context.Context, cmd Command, projectPath, branch string) (<-chan Result, error) {
	if busy := s.Busy(); busy != "" {
		return nil, &BusyError{Command: busy}
	}
	script, ok := cmd.GitScript(projectPath, branch)
	if !ok {
		return nil, ErrNoInvocation
	}
	return s.execute(ctx, cmd.Kind.Token(), script)
}

// ExecuteShell runs a shell command against projectPath. Kinds without an
// executable mapping (status, cancel) are rejected with ErrNoInvocation;
// they are status queries, not spawns.
func (s *Supervisor) ExecuteShell(ctx context.Context, cmd Command, projectPath string) (<-chan Result, error) {
	if busy := s.Busy(); busy != "" {
		return nil, &BusyError{Command: busy}
	}
	script, ok := cmd.ShellScript(projectPath, s.wakeCommand)
	if !ok {
		return nil, ErrNoInvocation
	}
	return s.execute(ctx, cmd.Kind.Token(), script)
}

// execute claims the busy token, starts the keep-alive timer, and spawns
// the script. The busy token is cleared on every terminal path, including
// failure and cancellation, so a failed run can never leave the supervisor
// permanently locked.
func (s *Supervisor) execute(ctx context.Context, token, script string) (<-chan Result, error) {
	s.mu.Lock()
	if s.busy != "" {
		busy := s.busy
		s.mu.Unlock()
		return nil, &BusyError{Command: busy}
	}
	s.busy = token
	s.startKeepAliveLocked()
	s.mu.Unlock()

	start := time.Now()
	outcomeCh := s.runner.Run(ctx, Invocation{
		Interpreter: s.interpreter,
		Args:        []string{"--login", "-c", script},
	})

	resCh := make(chan Result, 1)
	go func() {
		outcome := <-outcomeCh

		s.mu.Lock()
		s.busy = ""
		s.stopKeepAliveLocked()
		s.mu.Unlock()

		resCh <- Result{
			Command: token,
			Outcome: outcome,
			Elapsed: time.Since(start),
		}
	}()
	return resCh, nil
}

// Cancel aborts the executing command. It stops the keep-alive timer,
// signals the runner, and clears the busy token; the in-flight Result
// reports a cancelled outcome. Returns ErrNoProcesses when idle.
func (s *Supervisor) Cancel() error {
	s.mu.Lock()
	if s.busy == "" {
		s.mu.Unlock()
		return ErrNoProcesses
	}
	s.busy = ""
	s.stopKeepAliveLocked()
	s.mu.Unlock()

	s.runner.Cancel()
	return nil
}

// startKeepAliveLocked starts the keep-alive cron. Caller holds s.mu.
func (s *Supervisor) startKeepAliveLocked() {
	if s.keepAlive != nil {
		s.keepAlive.Stop()
	}
	c := cron.New()
	interpreter := s.interpreter
	wake := s.wakeCommand
	c.AddFunc(keepAliveSpec, func() {
		// A fresh Runner per tick: the supervisor's own runner is busy
		// with the supervised command.
		r := &Runner{}
		outcome := <-r.Run(context.Background(), Invocation{
			Interpreter: interpreter,
			Args:        []string{"--login", "-c", wake},
		})
		if !outcome.Success() {
			log.Printf("bot: keep-alive %q: %v", wake, outcome.Err())
		}
	})
	c.Start()
	s.keepAlive = c
}

// stopKeepAliveLocked stops the keep-alive cron. Caller holds s.mu.
func (s *Supervisor) stopKeepAliveLocked() {
	if s.keepAlive != nil {
		s.keepAlive.Stop()
		s.keepAlive = nil
	}
}

// StartMessage is the notice sent when a command begins executing.
func StartMessage(token string) string {
	return fmt.Sprintf("The %s command has started executing...", token)
}
