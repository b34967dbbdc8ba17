package cli

import (
	"strings"
	"testing"
	"time"
)

func TestStartPauseResume(t *testing.T) {
	clock := setupTracker(t)
	addTask(t, "Review", 0)

	out := mustRun(t, startCmd, nil, "Review")
	if !strings.Contains(out, "Started 1 Review at 09:00") {
		t.Errorf("unexpected start output %q", out)
	}

	clock.now = clock.now.Add(45 * time.Minute)
	out = mustRun(t, pauseCmd, nil)
	if !strings.Contains(out, "Paused 1 Review after 0:45") {
		t.Errorf("unexpected pause output %q", out)
	}
	if _, ok := Tracker.Session().Current(); ok {
		t.Error("activity still running after pause")
	}

	clock.now = clock.now.Add(15 * time.Minute)
	out = mustRun(t, resumeCmd, nil)
	if !strings.Contains(out, "Resumed 1 Review") {
		t.Errorf("unexpected resume output %q", out)
	}
	cur, ok := Tracker.Session().Current()
	if !ok || cur.Task != 1 {
		t.Fatalf("expected task 1 running after resume, got %+v (%v)", cur, ok)
	}
	if got := Tracker.Session().StartTime(cur); !got.Equal(tuesday(10, 0)) {
		t.Errorf("resumed at %s, want 10:00", got)
	}
}

func TestStart_UnknownTask(t *testing.T) {
	setupTracker(t)

	if _, err := run(t, startCmd, nil, "42"); err == nil {
		t.Fatal("expected error starting unknown task")
	}
}

func TestPause_Idle(t *testing.T) {
	setupTracker(t)

	_, err := run(t, pauseCmd, nil)
	if err == nil || err.Error() != "nothing is running" {
		t.Fatalf("expected nothing is running, got %v", err)
	}
}

func TestResume_NothingPaused(t *testing.T) {
	setupTracker(t)

	_, err := run(t, resumeCmd, nil)
	if err == nil || err.Error() != "no paused task to resume" {
		t.Fatalf("expected no paused task error, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	clock := setupTracker(t)
	addTask(t, "Review", 0)

	out := mustRun(t, statusCmd, nil)
	if !strings.Contains(out, "Idle") {
		t.Errorf("expected idle status, got %q", out)
	}

	mustRun(t, startCmd, nil, "Review")
	clock.now = clock.now.Add(90 * time.Minute)

	out = mustRun(t, statusCmd, nil)
	if !strings.Contains(out, "Running: 1 Review since 09:00 (1:30)") {
		t.Errorf("unexpected running line in %q", out)
	}
	if !strings.Contains(out, "Today: 1:30  Week 2026-W42: 1:30 of 40:00") {
		t.Errorf("unexpected totals line in %q", out)
	}

	mustRun(t, pauseCmd, nil)
	out = mustRun(t, statusCmd, nil)
	if !strings.Contains(out, "Idle: paused 1 Review") {
		t.Errorf("expected paused status, got %q", out)
	}
}
