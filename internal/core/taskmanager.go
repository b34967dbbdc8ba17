package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

var (
	// ErrTaskNotFound is returned when a task id does not resolve.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskHasTime is returned when deleting a task that has booked time.
	ErrTaskHasTime = errors.New("task has allocated time")
	// ErrCyclicParent is returned when reparenting a task into itself or one
	// of its descendants.
	ErrCyclicParent = errors.New("task cannot be its own ancestor")
)

const defaultRecentLimit = 10

// TaskUpdate lists the fields to change on a task. Nil fields are left as is.
type TaskUpdate struct {
	Name          *string
	BookingNumber *string
	Notes         *string
	Priority      *float64
	Allocation    *float64
	EstimatedTime *time.Duration
	Metric        *models.Metric
	QuantityDone  *float64
	QuantityTotal *float64
	StartDate     *time.Time
	EndDate       *time.Time
	OutlookID     *string
	Recurring     []string
}

// TaskManager owns the global task tree.
type TaskManager interface {
	CreateTask(name string, parent int) (*models.Task, error)
	GetTask(id int) (*models.Task, error)
	Roots() []int
	Children(id int) []int
	AllTasks() []*models.Task
	Update(id int, upd TaskUpdate) error
	Reparent(id, parent int) error
	Reorder(id, index int) error
	DeleteTask(id int) error
	CompleteTask(id int) error
	SetState(id int, state models.TaskState) error
	EffectiveBookingNumber(id int) string
	Billable(id int) bool
	EffectiveDates(id int) (start, end time.Time)
	Progress(id int) float64
	AddAllocatedTime(id int, delta time.Duration)
	MarkStarted(id int)
	Recent() []int
	FindByCorrelation(externalID string) (*models.Task, bool)
	FindByName(name string) (*models.Task, bool)
	Notes() string
	SetNotes(notes string)
	Snapshot() models.TaskFile
	Restore(file models.TaskFile)
	OnChange(fn func())
}

// taskManager implements TaskManager with an id-keyed arena. Parent/child
// links are ids, never pointers.
type taskManager struct {
	clock       Clock
	reporter    Reporter
	pool        *IDPool
	tasks       map[int]*models.Task
	roots       []int
	recent      []int
	retired     []int
	recentLimit int
	notes       string
	onChange    func()
}

// NewTaskManager creates an empty task tree. reporter may be nil.
func NewTaskManager(clock Clock, reporter Reporter, recentLimit int) TaskManager {
	if clock == nil {
		clock = SystemClock{}
	}
	if reporter == nil {
		reporter = nopReporter{}
	}
	if recentLimit <= 0 {
		recentLimit = defaultRecentLimit
	}
	return &taskManager{
		clock:       clock,
		reporter:    reporter,
		pool:        NewIDPool(),
		tasks:       make(map[int]*models.Task),
		recentLimit: recentLimit,
	}
}

func (tm *taskManager) OnChange(fn func()) {
	tm.onChange = fn
}

func (tm *taskManager) changed() {
	if tm.onChange != nil {
		tm.onChange()
	}
}

func (tm *taskManager) get(id int) (*models.Task, error) {
	t, ok := tm.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %d: %w", id, ErrTaskNotFound)
	}
	return t, nil
}

// siblings returns a pointer to the child list holding tasks under parent.
func (tm *taskManager) siblings(parent int) *[]int {
	if parent == 0 {
		return &tm.roots
	}
	return &tm.tasks[parent].Children
}

// CreateTask adds a new task at the end of parent's children (0 for a root
// task). The task moves from New to Pending on insertion.
func (tm *taskManager) CreateTask(name string, parent int) (*models.Task, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("creating task: name must not be empty")
	}
	if parent != 0 {
		if _, err := tm.get(parent); err != nil {
			return nil, fmt.Errorf("creating task %q: parent: %w", name, err)
		}
	}

	t := &models.Task{
		ID:         tm.pool.Allocate(),
		Name:       name,
		State:      models.StateNew,
		Allocation: 1,
	}
	tm.tasks[t.ID] = t
	tm.attach(t, parent)
	t.State = models.StatePending

	tm.changed()
	return t.Clone(), nil
}

// attach appends t to parent's children with a priority after its last
// sibling.
func (tm *taskManager) attach(t *models.Task, parent int) {
	sib := tm.siblings(parent)
	t.Priority = 1
	if n := len(*sib); n > 0 {
		t.Priority = tm.tasks[(*sib)[n-1]].Priority + 1
	}
	*sib = append(*sib, t.ID)
	t.Parent = parent
	if parent != 0 {
		p := tm.tasks[parent]
		if p.State == models.StateNew || p.State == models.StatePending {
			p.State = models.StateParent
		}
	}
}

func (tm *taskManager) detach(t *models.Task) {
	sib := tm.siblings(t.Parent)
	*sib = removeInt(*sib, t.ID)
}

func (tm *taskManager) GetTask(id int) (*models.Task, error) {
	t, err := tm.get(id)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

func (tm *taskManager) Roots() []int {
	return append([]int(nil), tm.roots...)
}

func (tm *taskManager) Children(id int) []int {
	t, ok := tm.tasks[id]
	if !ok {
		return nil
	}
	return append([]int(nil), t.Children...)
}

// AllTasks returns every task in tree order, parents before children.
func (tm *taskManager) AllTasks() []*models.Task {
	out := make([]*models.Task, 0, len(tm.tasks))
	var walk func(ids []int)
	walk = func(ids []int) {
		for _, id := range ids {
			t := tm.tasks[id]
			out = append(out, t.Clone())
			walk(t.Children)
		}
	}
	walk(tm.roots)
	return out
}

func (tm *taskManager) Update(id int, upd TaskUpdate) error {
	t, err := tm.get(id)
	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return fmt.Errorf("updating task %d: name must not be empty", id)
		}
		t.Name = name
	}
	if upd.Allocation != nil && (*upd.Allocation <= 0 || *upd.Allocation > 1) {
		return fmt.Errorf("updating task %d: allocation %.2f outside (0, 1]", id, *upd.Allocation)
	}
	if upd.BookingNumber != nil {
		t.BookingNumber = strings.TrimSpace(*upd.BookingNumber)
	}
	if upd.Notes != nil {
		t.Notes = *upd.Notes
	}
	if upd.Priority != nil {
		t.Priority = *upd.Priority
		tm.sortSiblings(t.Parent)
	}
	if upd.Allocation != nil {
		t.Allocation = *upd.Allocation
	}
	if upd.EstimatedTime != nil {
		t.EstimatedTime = *upd.EstimatedTime
	}
	if upd.Metric != nil {
		t.Metric = *upd.Metric
	}
	if upd.QuantityDone != nil {
		t.QuantityDone = *upd.QuantityDone
	}
	if upd.QuantityTotal != nil {
		t.QuantityTotal = *upd.QuantityTotal
	}
	if upd.StartDate != nil {
		t.StartDate = *upd.StartDate
	}
	if upd.EndDate != nil {
		t.EndDate = *upd.EndDate
	}
	if upd.OutlookID != nil {
		t.OutlookID = *upd.OutlookID
	}
	if upd.Recurring != nil {
		t.Recurring = append([]string(nil), upd.Recurring...)
	}
	tm.refreshProgress(id)
	tm.changed()
	return nil
}

func (tm *taskManager) sortSiblings(parent int) {
	sib := *tm.siblings(parent)
	sort.SliceStable(sib, func(i, j int) bool {
		return tm.tasks[sib[i]].Priority < tm.tasks[sib[j]].Priority
	})
}

func (tm *taskManager) isDescendant(id, of int) bool {
	for cur := id; cur != 0; cur = tm.tasks[cur].Parent {
		if cur == of {
			return true
		}
	}
	return false
}

// Reparent moves a task, with its subtree and booked time, under parent.
func (tm *taskManager) Reparent(id, parent int) error {
	t, err := tm.get(id)
	if err != nil {
		return fmt.Errorf("reparenting: %w", err)
	}
	if parent != 0 {
		if _, err := tm.get(parent); err != nil {
			return fmt.Errorf("reparenting task %d: new parent: %w", id, err)
		}
		if tm.isDescendant(parent, id) {
			return fmt.Errorf("reparenting task %d under %d: %w", id, parent, ErrCyclicParent)
		}
	}
	if t.Parent == parent {
		return nil
	}

	oldParent := t.Parent
	tm.propagateAllocated(oldParent, -t.AllocatedTime)
	tm.detach(t)
	tm.attach(t, parent)
	tm.propagateAllocated(parent, t.AllocatedTime)
	tm.refreshProgress(oldParent)
	tm.refreshProgress(parent)

	tm.changed()
	return nil
}

// Reorder moves a task to position index among its siblings. The new
// priority is the midpoint of its new neighbours; siblings are renumbered
// when the midpoint collides with a neighbour.
func (tm *taskManager) Reorder(id, index int) error {
	t, err := tm.get(id)
	if err != nil {
		return fmt.Errorf("reordering: %w", err)
	}
	sib := tm.siblings(t.Parent)
	rest := removeInt(*sib, id)
	if index < 0 {
		index = 0
	}
	if index > len(rest) {
		index = len(rest)
	}

	prio, ok := tm.midpoint(rest, index)
	if !ok {
		for i, sid := range rest {
			tm.tasks[sid].Priority = float64(i + 1)
		}
		prio, _ = tm.midpoint(rest, index)
	}
	t.Priority = prio

	ordered := make([]int, 0, len(rest)+1)
	ordered = append(ordered, rest[:index]...)
	ordered = append(ordered, id)
	ordered = append(ordered, rest[index:]...)
	*sib = ordered

	tm.changed()
	return nil
}

func (tm *taskManager) midpoint(ids []int, index int) (float64, bool) {
	switch {
	case len(ids) == 0:
		return 1, true
	case index == 0:
		return tm.tasks[ids[0]].Priority - 1, true
	case index == len(ids):
		return tm.tasks[ids[len(ids)-1]].Priority + 1, true
	}
	lo := tm.tasks[ids[index-1]].Priority
	hi := tm.tasks[ids[index]].Priority
	mid := lo + (hi-lo)/2
	if !(mid > lo && mid < hi) {
		return 0, false
	}
	return mid, true
}

// DeleteTask removes a task and its subtree. Ids of other tasks are left
// untouched so stored references stay valid, and the deleted ids stay
// reserved. Tasks with booked time are rejected.
func (tm *taskManager) DeleteTask(id int) error {
	t, err := tm.get(id)
	if err != nil {
		return fmt.Errorf("deleting: %w", err)
	}
	subtree := tm.subtree(id)
	for _, sid := range subtree {
		if tm.tasks[sid].AllocatedTime > 0 {
			return fmt.Errorf("deleting task %d (%s): %w", id, t.Name, ErrTaskHasTime)
		}
	}

	tm.detach(t)
	for _, sid := range subtree {
		tm.tasks[sid].State = models.StateDeleted
		delete(tm.tasks, sid)
		tm.retired = append(tm.retired, sid)
		tm.recent = removeInt(tm.recent, sid)
	}
	tm.refreshProgress(t.Parent)

	tm.changed()
	return nil
}

func (tm *taskManager) subtree(id int) []int {
	out := []int{id}
	for i := 0; i < len(out); i++ {
		out = append(out, tm.tasks[out[i]].Children...)
	}
	return out
}

// CompleteTask marks a task complete, stamping its end date when unset. When
// the parent has no other incomplete children, progress is recomputed up the
// tree.
func (tm *taskManager) CompleteTask(id int) error {
	t, err := tm.get(id)
	if err != nil {
		return fmt.Errorf("completing: %w", err)
	}
	t.State = models.StateComplete
	if t.EndDate.IsZero() {
		t.EndDate = tm.clock.Now()
	}
	t.Progress = 1

	if t.Parent != 0 && !tm.hasIncompleteChildren(t.Parent, id) {
		tm.refreshProgress(t.Parent)
	}

	tm.changed()
	return nil
}

func (tm *taskManager) hasIncompleteChildren(parent, except int) bool {
	for _, cid := range tm.tasks[parent].Children {
		if cid != except && tm.tasks[cid].State.Incomplete() {
			return true
		}
	}
	return false
}

func (tm *taskManager) SetState(id int, state models.TaskState) error {
	if state == models.StateComplete {
		return tm.CompleteTask(id)
	}
	if state == models.StateDeleted {
		return tm.DeleteTask(id)
	}
	t, err := tm.get(id)
	if err != nil {
		return fmt.Errorf("setting state: %w", err)
	}
	t.State = state
	tm.refreshProgress(id)
	tm.changed()
	return nil
}

// EffectiveBookingNumber returns the task's booking number, inherited from
// the nearest ancestor that has one.
func (tm *taskManager) EffectiveBookingNumber(id int) string {
	for cur := id; cur != 0; {
		t, ok := tm.tasks[cur]
		if !ok {
			return ""
		}
		if t.BookingNumber != "" {
			return t.BookingNumber
		}
		cur = t.Parent
	}
	return ""
}

// Billable reports whether booked time on the task is billable. A leading
// '#' on the effective booking number marks it non-billable.
func (tm *taskManager) Billable(id int) bool {
	bn := tm.EffectiveBookingNumber(id)
	return bn != "" && !strings.HasPrefix(bn, "#")
}

// EffectiveDates returns the task's explicit dates, or the earliest start and
// latest end among its descendants when unset.
func (tm *taskManager) EffectiveDates(id int) (time.Time, time.Time) {
	t, ok := tm.tasks[id]
	if !ok {
		return time.Time{}, time.Time{}
	}
	start, end := t.StartDate, t.EndDate
	if !start.IsZero() && !end.IsZero() {
		return start, end
	}
	var minStart, maxEnd time.Time
	for _, cid := range t.Children {
		cs, ce := tm.EffectiveDates(cid)
		if !cs.IsZero() && (minStart.IsZero() || cs.Before(minStart)) {
			minStart = cs
		}
		if !ce.IsZero() && (maxEnd.IsZero() || ce.After(maxEnd)) {
			maxEnd = ce
		}
	}
	if start.IsZero() {
		start = minStart
	}
	if end.IsZero() {
		end = maxEnd
	}
	return start, end
}

func (tm *taskManager) Progress(id int) float64 {
	t, ok := tm.tasks[id]
	if !ok {
		return 0
	}
	return t.Progress
}

func (tm *taskManager) computeProgress(t *models.Task) float64 {
	switch {
	case t.State == models.StateComplete:
		return 1
	case len(t.Children) > 0:
		sum := 0.0
		for _, cid := range t.Children {
			sum += tm.tasks[cid].Progress
		}
		return sum / float64(len(t.Children))
	case t.Metric == models.MetricQuantity:
		if t.QuantityTotal <= 0 {
			return 0
		}
		return clamp01(t.QuantityDone / t.QuantityTotal)
	case t.EstimatedTime > 0:
		return clamp01(float64(t.AllocatedTime) / float64(t.EstimatedTime))
	}
	return 0
}

// refreshProgress recomputes cached progress from id up to the root.
func (tm *taskManager) refreshProgress(id int) {
	for cur := id; cur != 0; {
		t, ok := tm.tasks[cur]
		if !ok {
			return
		}
		t.Progress = tm.computeProgress(t)
		cur = t.Parent
	}
}

// AddAllocatedTime adds delta to the task and each of its ancestors.
func (tm *taskManager) AddAllocatedTime(id int, delta time.Duration) {
	if delta == 0 {
		return
	}
	tm.propagateAllocated(id, delta)
	tm.refreshProgress(id)
}

func (tm *taskManager) propagateAllocated(id int, delta time.Duration) {
	for cur := id; cur != 0; {
		t, ok := tm.tasks[cur]
		if !ok {
			return
		}
		t.AllocatedTime += delta
		cur = t.Parent
	}
}

// MarkStarted records that an activity was started on the task: a task that
// was never worked on becomes Active, and it moves to the head of the
// recently used list.
func (tm *taskManager) MarkStarted(id int) {
	t, ok := tm.tasks[id]
	if !ok {
		return
	}
	if t.State == models.StateNew || t.State == models.StatePending {
		t.State = models.StateActive
	}
	tm.recent = append([]int{id}, removeInt(tm.recent, id)...)
	if len(tm.recent) > tm.recentLimit {
		tm.recent = tm.recent[:tm.recentLimit]
	}
}

func (tm *taskManager) Recent() []int {
	return append([]int(nil), tm.recent...)
}

func (tm *taskManager) FindByCorrelation(externalID string) (*models.Task, bool) {
	if externalID == "" {
		return nil, false
	}
	for _, t := range tm.AllTasks() {
		if t.HasCorrelation(externalID) {
			return t, true
		}
	}
	return nil, false
}

func (tm *taskManager) FindByName(name string) (*models.Task, bool) {
	name = strings.TrimSpace(name)
	for _, t := range tm.AllTasks() {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return nil, false
}

func (tm *taskManager) Notes() string {
	return tm.notes
}

func (tm *taskManager) SetNotes(notes string) {
	tm.notes = notes
	tm.changed()
}

// Snapshot returns the persisted form of the tree.
func (tm *taskManager) Snapshot() models.TaskFile {
	all := tm.AllTasks()
	tasks := make([]models.Task, len(all))
	for i, t := range all {
		tasks[i] = *t
	}
	retired := append([]int(nil), tm.retired...)
	sort.Ints(retired)
	return models.TaskFile{
		Tasks:   tasks,
		Recent:  tm.Recent(),
		Retired: retired,
		Notes:   tm.notes,
	}
}

// Restore replaces the tree with the given records. Records with a taken or
// non-positive id get a fresh id; records whose parent cannot be resolved
// become roots. Both are reported as warnings.
func (tm *taskManager) Restore(file models.TaskFile) {
	now := tm.clock.Now()
	tm.pool = NewIDPool()
	tm.tasks = make(map[int]*models.Task, len(file.Tasks))
	tm.roots = nil
	tm.recent = nil
	tm.retired = nil
	tm.notes = file.Notes

	remap := make(map[int]int, len(file.Tasks))
	var order []*models.Task
	for i := range file.Tasks {
		rec := file.Tasks[i]
		t := rec.Clone()
		t.Children = nil
		if err := tm.pool.Claim(rec.ID); err != nil {
			t.ID = tm.pool.Allocate()
			report(tm.reporter, now, models.SeverityWarning, CodeDuplicateID,
				map[string]any{"task": rec.ID, "assigned": t.ID},
				"task %q: %v; assigned id %d", rec.Name, err, t.ID)
		}
		if _, seen := remap[rec.ID]; !seen {
			remap[rec.ID] = t.ID
		}
		if t.State == models.StateDeleted {
			t.State = models.StateInactive
		}
		tm.tasks[t.ID] = t
		order = append(order, t)
	}

	for _, id := range file.Retired {
		if tm.pool.Claim(id) == nil {
			tm.retired = append(tm.retired, id)
		}
	}

	for _, t := range order {
		if t.Parent == 0 {
			continue
		}
		pid, ok := remap[t.Parent]
		if !ok || pid == t.ID {
			report(tm.reporter, now, models.SeverityWarning, CodeDanglingParent,
				map[string]any{"task": t.ID, "parent": t.Parent},
				"task %q: parent %d not found, moved to root", t.Name, t.Parent)
			pid = 0
		}
		t.Parent = pid
	}
	for _, t := range order {
		if tm.inCycle(t.ID) {
			report(tm.reporter, now, models.SeverityWarning, CodeDanglingParent,
				map[string]any{"task": t.ID, "parent": t.Parent},
				"task %q: parent chain loops, moved to root", t.Name)
			t.Parent = 0
		}
	}
	for _, t := range order {
		*tm.siblings(t.Parent) = append(*tm.siblings(t.Parent), t.ID)
	}

	for _, id := range file.Recent {
		if nid, ok := remap[id]; ok && len(tm.recent) < tm.recentLimit && !containsInt(tm.recent, nid) {
			tm.recent = append(tm.recent, nid)
		}
	}
	for _, t := range order {
		if len(t.Children) == 0 {
			tm.refreshProgress(t.ID)
		}
	}
}

// inCycle reports whether following parent links from id leads back to id.
func (tm *taskManager) inCycle(id int) bool {
	seen := map[int]bool{}
	for cur := tm.tasks[id].Parent; cur != 0; cur = tm.tasks[cur].Parent {
		if cur == id {
			return true
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func removeInt(ids []int, id int) []int {
	out := make([]int, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func containsInt(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
