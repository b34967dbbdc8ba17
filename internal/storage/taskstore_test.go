package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

func sampleTaskFile() models.TaskFile {
	start := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	return models.TaskFile{
		Tasks: []models.Task{
			{ID: 1, Name: "Client", BookingNumber: "4711", State: models.StateParent, Children: []int{2, 3}},
			{ID: 2, Name: "Design", State: models.StateActive, Parent: 1, AllocatedTime: 90 * time.Minute, StartDate: start},
			{ID: 3, Name: "Build", State: models.StatePending, Parent: 1, Metric: models.MetricQuantity, QuantityDone: 2, QuantityTotal: 8},
			{ID: 5, Name: "Admin", BookingNumber: "#int", State: models.StatePending, Recurring: []string{"AAMk-standup"}, Allocation: 0.5},
		},
		Recent:  []int{2, 5},
		Retired: []int{4, 6},
		Notes:   "remember the invoice",
	}
}

func TestEncodeTaskFile_NestsChildren(t *testing.T) {
	data, err := EncodeTaskFile(sampleTaskFile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := string(data)

	for _, want := range []string{
		"recent_tasks: 2 5",
		"retired_tasks: 4 6",
		"allocated: 1h30m0s",
		"start: \"2026-10-01 09:00:00\"",
		"- AAMk-standup",
		"state: Parent",
		"metric: Quantity",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("encoded file missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "name: Design") < strings.Index(out, "name: Client") {
		t.Error("child written before its parent")
	}
	if strings.Index(out, "name: Admin") < strings.Index(out, "name: Build") {
		t.Error("second root written before the first root's children")
	}
}

func TestDecodeTaskFile_RoundTrip(t *testing.T) {
	orig := sampleTaskFile()
	data, err := EncodeTaskFile(orig)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeTaskFile(data, time.UTC)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(got.Tasks) != len(orig.Tasks) {
		t.Fatalf("decoded %d tasks, want %d", len(got.Tasks), len(orig.Tasks))
	}
	for i, want := range orig.Tasks {
		g := got.Tasks[i]
		if g.ID != want.ID || g.Name != want.Name || g.Parent != want.Parent || g.State != want.State {
			t.Errorf("task %d = %+v, want %+v", i, g, want)
		}
		if g.AllocatedTime != want.AllocatedTime || !g.StartDate.Equal(want.StartDate) {
			t.Errorf("task %d times = %s %s", want.ID, g.AllocatedTime, g.StartDate)
		}
		if g.Allocation != want.Allocation || g.Metric != want.Metric || g.QuantityTotal != want.QuantityTotal {
			t.Errorf("task %d = %+v", want.ID, g)
		}
	}
	if c := got.Tasks[0].Children; len(c) != 2 || c[0] != 2 || c[1] != 3 {
		t.Errorf("Client children = %v, want [2 3]", c)
	}
	if len(got.Recent) != 2 || got.Recent[0] != 2 || got.Recent[1] != 5 {
		t.Errorf("Recent = %v", got.Recent)
	}
	if len(got.Retired) != 2 || got.Retired[0] != 4 || got.Retired[1] != 6 {
		t.Errorf("Retired = %v", got.Retired)
	}
	if got.Notes != orig.Notes {
		t.Errorf("Notes = %q", got.Notes)
	}
	if len(got.Tasks[3].Recurring) != 1 || got.Tasks[3].Recurring[0] != "AAMk-standup" {
		t.Errorf("Recurring = %v", got.Tasks[3].Recurring)
	}
}

func TestDecodeTaskFile_MissingIDsGetPlaceholders(t *testing.T) {
	data := []byte(`
task:
  - name: Parent
    state: Pending
    task:
      - name: Child
        state: Pending
  - id: 4
    name: Other
    state: Bogus
recent_tasks: "4 x -1"
`)
	got, err := DecodeTaskFile(data, time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Tasks) != 3 {
		t.Fatalf("decoded %d tasks, want 3", len(got.Tasks))
	}
	parent, child, other := got.Tasks[0], got.Tasks[1], got.Tasks[2]
	if parent.ID >= 0 || child.ID >= 0 || parent.ID == child.ID {
		t.Errorf("placeholder ids = %d, %d; want distinct negatives", parent.ID, child.ID)
	}
	if child.Parent != parent.ID {
		t.Errorf("child parent = %d, want %d", child.Parent, parent.ID)
	}
	if other.State != models.StatePending {
		t.Errorf("unknown state decoded as %s, want Pending", other.State)
	}
	if len(got.Recent) != 1 || got.Recent[0] != 4 {
		t.Errorf("Recent = %v, want [4]", got.Recent)
	}
}

func TestDecodeTaskFile_ReadsDatesAndHours(t *testing.T) {
	data := []byte(`
task:
  - id: 1
    name: A
    start: "2026-10-12 09:00:00"
    end: "2026-10-16 17:00:00"
    allocated: 2h0m0s
    estimated: 4h0m0s
`)
	file, err := DecodeTaskFile(data, time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	task := file.Tasks[0]
	if want := time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC); !task.StartDate.Equal(want) {
		t.Errorf("StartDate = %s, want %s", task.StartDate, want)
	}
	if want := time.Date(2026, 10, 16, 17, 0, 0, 0, time.UTC); !task.EndDate.Equal(want) {
		t.Errorf("EndDate = %s, want %s", task.EndDate, want)
	}
	if task.AllocatedTime != 2*time.Hour || task.EstimatedTime != 4*time.Hour {
		t.Errorf("allocated/estimated = %s/%s, want 2h/4h", task.AllocatedTime, task.EstimatedTime)
	}
}

func TestDecodeTaskFile_BadDuration(t *testing.T) {
	data := []byte("task:\n  - id: 1\n    name: A\n    state: Pending\n    allocated: soon\n")
	if _, err := DecodeTaskFile(data, time.UTC); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

func TestDecodeTaskFile_MalformedYAML(t *testing.T) {
	if _, err := DecodeTaskFile([]byte("task: [unclosed"), time.UTC); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestTaskStore_LoadMissingFile(t *testing.T) {
	store := NewTaskStore(t.TempDir(), time.UTC)
	file, err := store.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if file != nil {
		t.Fatalf("Load = %+v, want nil", file)
	}
}

func TestTaskStore_SaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	store := NewTaskStore(dir, time.UTC)

	if err := store.Save(sampleTaskFile()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("file mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Tasks) != 4 || got.Tasks[1].Name != "Design" {
		t.Fatalf("Load = %+v", got.Tasks)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only %s", len(entries), TaskFileName)
	}
}
