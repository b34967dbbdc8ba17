package cli

import (
	"strings"
	"testing"
)

func TestRootCommand_Subcommands(t *testing.T) {
	want := []string{"task", "start", "pause", "resume", "status", "edit", "report", "watch", "doctor", "calendar", "mcp", "version"}
	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}
	for _, name := range want {
		if !registered[name] {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	origV, origC, origD := appVersion, appCommit, appDate
	t.Cleanup(func() { SetVersionInfo(origV, origC, origD) })
	SetVersionInfo("1.2.3", "abc123", "2026-10-01")

	out := mustRun(t, versionCmd, nil)
	for _, s := range []string{"wt 1.2.3", "commit: abc123", "built:  2026-10-01"} {
		if !strings.Contains(out, s) {
			t.Errorf("version output %q missing %q", out, s)
		}
	}
}

func TestRequireTracker_Nil(t *testing.T) {
	orig := Tracker
	t.Cleanup(func() { Tracker = orig })
	Tracker = nil

	for _, cmd := range []struct {
		name string
		run  func() error
	}{
		{"status", func() error { _, err := run(t, statusCmd, nil); return err }},
		{"task list", func() error { _, err := run(t, taskListCmd, nil); return err }},
		{"edit list", func() error { _, err := run(t, editListCmd, nil); return err }},
		{"report", func() error { _, err := run(t, reportCmd, nil); return err }},
	} {
		err := cmd.run()
		if err == nil || !strings.Contains(err.Error(), "tracker not initialized") {
			t.Errorf("%s: expected tracker not initialized error, got %v", cmd.name, err)
		}
	}
}
