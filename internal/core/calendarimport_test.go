package core

import (
	"testing"
	"time"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

func TestImportCandidates(t *testing.T) {
	f := newFixture(t, at(1, 12, 0))
	design := f.task(t, "Design review")
	cands := []models.CalendarCandidate{
		{TaskHint: "design review", Start: at(0, 14, 0), End: at(0, 15, 0), ExternalID: "evt-1", Busy: true},
		{TaskHint: "Planning", Start: at(2, 10, 0), End: at(2, 11, 0), ExternalID: "evt-2", RecurringID: "series-9", Busy: true},
		{TaskHint: "Focus time", Start: at(0, 9, 0), End: at(0, 12, 0), ExternalID: "evt-3", Busy: false},
		{TaskHint: "Last week", Start: at(-3, 9, 0), End: at(-3, 10, 0), ExternalID: "evt-4", Busy: true},
		{TaskHint: "Conference", Start: at(3, 0, 0), End: at(4, 0, 0), ExternalID: "evt-5", AllDay: true, Busy: true},
	}

	res, err := f.session.ImportCandidates(cands, f.tasks, nil)
	if err != nil {
		t.Fatalf("ImportCandidates: %v", err)
	}

	if res.Created != 3 || res.Skipped != 2 || res.NewTasks != 2 {
		t.Errorf("result = %+v, want 3 created, 2 skipped, 2 new tasks", res)
	}
	if f.allocated(t, design) != time.Hour {
		t.Errorf("design allocated = %s, want 1h", f.allocated(t, design))
	}

	planning, ok := f.tasks.FindByName("Planning")
	if !ok {
		t.Fatal("Planning task not created")
	}
	if !planning.HasCorrelation("series-9") {
		t.Errorf("Planning recurring = %v, want series-9", planning.Recurring)
	}

	var conference *Activity
	for _, a := range f.session.Activities() {
		if a.OutlookID == "evt-5" {
			conference = a
		}
	}
	if conference == nil {
		t.Fatal("all-day entry not imported")
	}
	if !f.session.StartTime(conference).Equal(at(3, 9, 0)) || f.session.Duration(conference) != 8*time.Hour {
		t.Errorf("all-day = %s for %s, want 09:00 for 8h", f.session.StartTime(conference), f.session.Duration(conference))
	}
	if start, _ := f.session.Event(conference.Start); !start.Remind {
		t.Error("future entry does not remind")
	}
	f.checkInvariants(t)

	again, err := f.session.ImportCandidates(cands, f.tasks, nil)
	if err != nil {
		t.Fatalf("second ImportCandidates: %v", err)
	}
	if again.Created != 0 || again.NewTasks != 0 {
		t.Errorf("re-import = %+v, want nothing new", again)
	}
}

func TestImportCandidates_LinksExistingActivity(t *testing.T) {
	f := newFixture(t, at(1, 12, 0))
	task := f.task(t, "Standup")
	a := f.activity(t, task, at(0, 9, 0), at(0, 9, 15))

	res, err := f.session.ImportCandidates([]models.CalendarCandidate{
		{TaskHint: "Standup", Start: at(0, 9, 0), End: at(0, 9, 15), ExternalID: "evt-7", Busy: true},
	}, f.tasks, nil)
	if err != nil {
		t.Fatalf("ImportCandidates: %v", err)
	}

	if res.Linked != 1 || res.Created != 0 {
		t.Errorf("result = %+v, want 1 linked", res)
	}
	if a.OutlookID != "evt-7" {
		t.Errorf("OutlookID = %q, want evt-7", a.OutlookID)
	}
}

func TestImportCandidates_CustomMatcher(t *testing.T) {
	f := newFixture(t, at(1, 12, 0))
	meetings := f.task(t, "Meetings")
	matcher := TaskMatcherFunc(func(string) (int, bool) { return meetings, true })

	res, err := f.session.ImportCandidates([]models.CalendarCandidate{
		{TaskHint: "1:1 with lead", Start: at(0, 13, 0), End: at(0, 13, 30), ExternalID: "evt-8", Busy: true},
	}, f.tasks, matcher)
	if err != nil {
		t.Fatalf("ImportCandidates: %v", err)
	}
	if res.NewTasks != 0 || f.allocated(t, meetings) != 30*time.Minute {
		t.Errorf("result = %+v, allocated = %s", res, f.allocated(t, meetings))
	}
}
