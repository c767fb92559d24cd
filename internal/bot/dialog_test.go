package bot

import "testing"

func TestDialogMatches_SameUser(t *testing.T) {
	a := &Dialog{UserID: 1}
	b := &Dialog{UserID: 1, PollID: "p1"}
	if !a.matches(b) {
		t.Error("dialogs with the same user should match")
	}
}

func TestDialogMatches_DifferentUserNoPoll(t *testing.T) {
	a := &Dialog{UserID: 1}
	b := &Dialog{UserID: 2}
	if a.matches(b) {
		t.Error("different users with no polls should not match")
	}
}

func TestDialogMatches_PollIdentityIgnoresUser(t *testing.T) {
	// A poll answer routes to the dialog that posted the poll, whoever
	// answered it.
	a := &Dialog{UserID: 1, PollID: "p1"}
	b := &Dialog{UserID: 2, PollID: "p1"}
	if !a.matches(b) {
		t.Error("matching poll IDs should match regardless of user")
	}
}

func TestDialogMatches_DifferentPolls(t *testing.T) {
	a := &Dialog{UserID: 1, PollID: "p1"}
	b := &Dialog{UserID: 2, PollID: "p2"}
	if a.matches(b) {
		t.Error("different polls and users should not match")
	}
}

func TestDialogSet_ByUser(t *testing.T) {
	var s dialogSet
	d := &Dialog{UserID: 7, Command: Command{Kind: KindUpload}}
	s.replace(d)

	if got := s.byUser(7); got != d {
		t.Errorf("byUser(7) = %v, want the inserted dialog", got)
	}
	if got := s.byUser(8); got != nil {
		t.Errorf("byUser(8) = %v, want nil", got)
	}
}

func TestDialogSet_ByPoll(t *testing.T) {
	var s dialogSet
	d := &Dialog{UserID: 7, PollID: "p1"}
	s.replace(d)

	if got := s.byPoll("p1"); got != d {
		t.Errorf("byPoll(p1) = %v", got)
	}
	if got := s.byPoll("p2"); got != nil {
		t.Errorf("byPoll(p2) = %v, want nil", got)
	}
	// An empty poll ID never matches, even though dialogs without polls
	// carry an empty PollID.
	s.replace(&Dialog{UserID: 8})
	if got := s.byPoll(""); got != nil {
		t.Errorf("byPoll(\"\") = %v, want nil", got)
	}
}

func TestDialogSet_ReplaceEvictsSameUser(t *testing.T) {
	var s dialogSet
	s.replace(&Dialog{UserID: 7, Command: Command{Kind: KindUpload}, Step: 2})
	s.replace(&Dialog{UserID: 7, Command: Command{Kind: KindSetConfig}})

	if s.len() != 1 {
		t.Fatalf("len = %d, want 1", s.len())
	}
	if got := s.byUser(7); got.Command.Kind != KindSetConfig {
		t.Errorf("surviving dialog kind = %v, want KindSetConfig", got.Command.Kind)
	}
}

func TestDialogSet_Remove(t *testing.T) {
	var s dialogSet
	s.replace(&Dialog{UserID: 7})
	s.replace(&Dialog{UserID: 8})

	s.remove(&Dialog{UserID: 7})
	if s.len() != 1 {
		t.Fatalf("len = %d, want 1", s.len())
	}
	if s.byUser(7) != nil {
		t.Error("removed dialog still present")
	}
	if s.byUser(8) == nil {
		t.Error("unrelated dialog was removed")
	}
}
