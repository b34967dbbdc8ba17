package cli

import (
	"reflect"
	"strconv"
	"testing"

	"github.com/spf13/cobra"
)

func TestCompleteTasks(t *testing.T) {
	setupTracker(t)
	addTask(t, "Design", 0)
	done := addTask(t, "Retro", 0)
	for i := 0; i < 9; i++ {
		addTask(t, "Filler", 0)
	}
	if err := Tracker.Tasks().CompleteTask(done); err != nil {
		t.Fatal(err)
	}

	got, dir := completeTasks(false)(startCmd, nil, "1")
	want := []string{"1\tDesign", "10\tFiller", "11\tFiller"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("completions = %q, want %q", got, want)
	}
	if dir != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("directive = %v", dir)
	}

	got, _ = completeTasks(true)(taskRemoveCmd, nil, "2")
	if !reflect.DeepEqual(got, []string{"2\tRetro"}) {
		t.Errorf("completions with all = %q", got)
	}

	if got, _ := completeTasks(false)(startCmd, []string{"1"}, ""); got != nil {
		t.Errorf("second argument completed: %q", got)
	}
}

func TestCompleteActivities(t *testing.T) {
	setupTracker(t)
	addTask(t, "Design", 0)
	id := bookMorning(t, "Design")

	got, _ := completeActivities(editSplitCmd, nil, "")
	if len(got) != 1 || got[0] != strconv.Itoa(id)+"\tTue 10:00 Design" {
		t.Errorf("completions = %q", got)
	}
}
