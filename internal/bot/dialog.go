package bot

import "sync"

// Dialog is one user's in-progress multi-step interaction: the command
// whose parameters accumulate across steps, the current step counter, and
// the correlation identities events are matched on.
type Dialog struct {
	Command Command
	Step    int
	UserID  int64

	// PollID correlates poll-result events to this dialog. Set when a
	// step posts a poll; empty otherwise.
	PollID string
	// PollOptions are the option labels of the posted poll, in order, so
	// vote indexes can be resolved back to labels.
	PollOptions []string
}

// matches reports whether d and other identify the same dialog: poll
// identity wins when both carry one; otherwise user identity decides.
// Note the poll match deliberately ignores user identity: a poll answer
// routes to the dialog that posted the poll, whoever answered it.
func (d *Dialog) matches(other *Dialog) bool {
	if d.UserID == other.UserID {
		return true
	}
	return (d.PollID != "" || other.PollID != "") && d.PollID == other.PollID
}

// dialogSet holds the in-flight dialogs. At most one dialog exists per
// user; replacing inserts the new dialog in place of any matching entry.
type dialogSet struct {
	mu    sync.Mutex
	items []*Dialog
}

// byUser returns the dialog owned by userID, or nil.
func (s *dialogSet) byUser(userID int64) *Dialog {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.items {
		if d.UserID == userID {
			return d
		}
	}
	return nil
}

// byPoll returns the dialog correlated with pollID, or nil.
func (s *dialogSet) byPoll(pollID string) *Dialog {
	if pollID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.items {
		if d.PollID == pollID {
			return d
		}
	}
	return nil
}

// replace removes any dialog matching d and appends d.
func (s *dialogSet) replace(d *Dialog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(d)
	s.items = append(s.items, d)
}

// remove deletes every dialog matching d.
func (s *dialogSet) remove(d *Dialog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(d)
}

func (s *dialogSet) removeLocked(d *Dialog) {
	kept := s.items[:0]
	for _, e := range s.items {
		if !e.matches(d) {
			kept = append(kept, e)
		}
	}
	s.items = kept
}

// len returns the number of in-flight dialogs.
func (s *dialogSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
