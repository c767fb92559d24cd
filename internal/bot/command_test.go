package bot

import (
	"strings"
	"testing"
)

func TestParse_AllTokens(t *testing.T) {
	for kind, token := range tokens {
		got, ok := Parse(token)
		if !ok {
			t.Errorf("Parse(%q) not recognized", token)
			continue
		}
		if got != kind {
			t.Errorf("Parse(%q) = %v, want %v", token, got, kind)
		}
	}
}

func TestParse_Unknown(t *testing.T) {
	for _, text := range []string{"", "/bogus", "upload", "/upload extra", "hello"} {
		if kind, ok := Parse(text); ok {
			t.Errorf("Parse(%q) = %v, want no match", text, kind)
		}
	}
}

func TestParse_GitCaseInsensitive(t *testing.T) {
	cases := map[string]Kind{
		"/GitCheckout":   KindGitCheckout,
		"/GITFETCH":      KindGitFetch,
		"/GitPull":       KindGitPull,
		"/gitStatus":     KindGitStatus,
		"/GitDiscardAll": KindGitDiscardAll,
	}
	for text, want := range cases {
		got, ok := Parse(text)
		if !ok || got != want {
			t.Errorf("Parse(%q) = %v, %t, want %v", text, got, ok, want)
		}
	}
}

func TestParse_NonGitCaseSensitive(t *testing.T) {
	for _, text := range []string{"/Upload", "/HELP", "/Cancel", "/SetConfig"} {
		if kind, ok := Parse(text); ok {
			t.Errorf("Parse(%q) = %v, want no match (non-git tokens are case-sensitive)", text, kind)
		}
	}
}

func TestToken_RoundTrip(t *testing.T) {
	for kind := range tokens {
		got, ok := Parse(kind.Token())
		if !ok || got != kind {
			t.Errorf("Parse(Token(%v)) = %v, %t", kind, got, ok)
		}
	}
	if KindNone.Token() != "" {
		t.Errorf("KindNone.Token() = %q, want empty", KindNone.Token())
	}
}

func TestGitScript(t *testing.T) {
	cases := []struct {
		kind Kind
		want string
	}{
		{KindGitCheckout, "cd /p; git checkout develop;"},
		{KindGitFetch, "cd /p; git fetch origin develop;"},
		{KindGitPull, "cd /p; git pull origin develop;"},
		{KindGitStatus, "cd /p; git status;"},
		{KindGitDiscardAll, "cd /p; git restore .;"},
	}
	for _, tc := range cases {
		got, ok := Command{Kind: tc.kind}.GitScript("/p", "develop")
		if !ok {
			t.Errorf("GitScript(%v) not ok", tc.kind)
			continue
		}
		if got != tc.want {
			t.Errorf("GitScript(%v) = %q, want %q", tc.kind, got, tc.want)
		}
	}
}

func TestGitScript_NonGit(t *testing.T) {
	if _, ok := (Command{Kind: KindUpload}).GitScript("/p", "main"); ok {
		t.Error("GitScript on /upload should not produce a script")
	}
}

func TestShellScript_Upload(t *testing.T) {
	cmd := Command{
		Kind:    KindUpload,
		Branch:  "release",
		Version: "2.1 7",
		Targets: []string{"App", "App Lite"},
	}
	got, ok := cmd.ShellScript("/proj", "true")
	if !ok {
		t.Fatal("ShellScript not ok")
	}
	want := `true; cd /proj/ci_scripts; sh ci_upload.sh release 2.1 7 "App App Lite";`
	if got != want {
		t.Errorf("ShellScript = %q, want %q", got, want)
	}
}

func TestShellScript_Terminal(t *testing.T) {
	got, ok := Command{Kind: KindTerminal, Raw: "ls -la"}.ShellScript("/proj", "true")
	if !ok {
		t.Fatal("ShellScript not ok")
	}
	if got != "true; ls -la" {
		t.Errorf("ShellScript = %q", got)
	}
}

func TestShellScript_NoMapping(t *testing.T) {
	for _, kind := range []Kind{KindStatus, KindCancel, KindHelp, KindGitPull} {
		if script, ok := (Command{Kind: kind}).ShellScript("/p", "true"); ok {
			t.Errorf("ShellScript(%v) = %q, want no mapping", kind, script)
		}
	}
}

func TestIsGitIsShell(t *testing.T) {
	if !KindGitPull.IsGit() || KindUpload.IsGit() {
		t.Error("IsGit misclassified")
	}
	if !KindUpload.IsShell() || KindGitPull.IsShell() {
		t.Error("IsShell misclassified")
	}
}

func TestMenuCommands(t *testing.T) {
	cmds := MenuCommands()
	if len(cmds) == 0 {
		t.Fatal("empty command menu")
	}
	for _, c := range cmds {
		if !strings.HasPrefix(c.Command, "/") {
			t.Errorf("menu command %q missing leading slash", c.Command)
		}
		if _, ok := Parse(c.Command); !ok {
			t.Errorf("menu command %q is not parseable", c.Command)
		}
		if c.Description == "" {
			t.Errorf("menu command %q has no description", c.Command)
		}
	}
}
