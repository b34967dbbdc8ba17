package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

// TaskFileName is the name of the task tree file in the base directory.
const TaskFileName = "tasks.yaml"

// taskEntry is one task in the persisted tree. Children nest under "task"
// in their display order.
type taskEntry struct {
	ID            int         `yaml:"id"`
	Name          string      `yaml:"name"`
	BookingNumber string      `yaml:"booking_number,omitempty"`
	State         string      `yaml:"state"`
	Priority      float64     `yaml:"priority,omitempty"`
	Allocation    float64     `yaml:"allocation,omitempty"`
	AllocatedTime string      `yaml:"allocated,omitempty"`
	EstimatedTime string      `yaml:"estimated,omitempty"`
	Metric        string      `yaml:"metric,omitempty"`
	QuantityDone  float64     `yaml:"quantity_done,omitempty"`
	QuantityTotal float64     `yaml:"quantity_total,omitempty"`
	StartDate     string      `yaml:"start,omitempty"`
	EndDate       string      `yaml:"end,omitempty"`
	OutlookID     string      `yaml:"outlook_id,omitempty"`
	Recurring     []string    `yaml:"recurring,omitempty"`
	Notes         string      `yaml:"notes,omitempty"`
	Tasks         []taskEntry `yaml:"task,omitempty"`
}

// taskFileDoc is the top-level structure of tasks.yaml.
type taskFileDoc struct {
	Version     string      `yaml:"version"`
	Tasks       []taskEntry `yaml:"task"`
	RecentTasks string      `yaml:"recent_tasks,omitempty"`
	RetiredIDs  string      `yaml:"retired_tasks,omitempty"`
	Notes       string      `yaml:"notes,omitempty"`
}

// EncodeTaskFile renders the task tree as YAML. Tasks are nested under their
// parents following each parent's Children order.
func EncodeTaskFile(file models.TaskFile) ([]byte, error) {
	byID := make(map[int]*models.Task, len(file.Tasks))
	for i := range file.Tasks {
		byID[file.Tasks[i].ID] = &file.Tasks[i]
	}

	written := make(map[int]bool, len(file.Tasks))
	var build func(t *models.Task) taskEntry
	build = func(t *models.Task) taskEntry {
		written[t.ID] = true
		e := taskEntry{
			ID:            t.ID,
			Name:          t.Name,
			BookingNumber: t.BookingNumber,
			State:         t.State.String(),
			Priority:      t.Priority,
			Allocation:    t.Allocation,
			AllocatedTime: formatDuration(t.AllocatedTime),
			EstimatedTime: formatDuration(t.EstimatedTime),
			QuantityDone:  t.QuantityDone,
			QuantityTotal: t.QuantityTotal,
			StartDate:     formatTime(t.StartDate),
			EndDate:       formatTime(t.EndDate),
			OutlookID:     t.OutlookID,
			Recurring:     t.Recurring,
			Notes:         t.Notes,
		}
		if t.Metric != models.MetricTime {
			e.Metric = t.Metric.String()
		}
		for _, cid := range t.Children {
			c, ok := byID[cid]
			if !ok || written[cid] {
				continue
			}
			e.Tasks = append(e.Tasks, build(c))
		}
		return e
	}

	doc := taskFileDoc{
		Version:     "1.0",
		RecentTasks: formatIDs(file.Recent),
		RetiredIDs:  formatIDs(file.Retired),
		Notes:       file.Notes,
	}
	for i := range file.Tasks {
		t := &file.Tasks[i]
		if t.Parent != 0 && byID[t.Parent] != nil {
			continue
		}
		if !written[t.ID] {
			doc.Tasks = append(doc.Tasks, build(t))
		}
	}
	// Records only reachable through a broken parent chain are kept as roots.
	for i := range file.Tasks {
		if t := &file.Tasks[i]; !written[t.ID] {
			doc.Tasks = append(doc.Tasks, build(t))
		}
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("encoding task file: %w", err)
	}
	return data, nil
}

// DecodeTaskFile parses a task file. Hierarchy comes from nesting. Tasks
// without an id get a negative placeholder so that their children still
// resolve; the task manager replaces placeholders with fresh ids on restore.
// Unknown states fall back to Pending.
func DecodeTaskFile(data []byte, loc *time.Location) (*models.TaskFile, error) {
	loc = locOrLocal(loc)
	var doc taskFileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding task file: parsing YAML: %w", err)
	}

	file := &models.TaskFile{
		Recent:  parseIDs(doc.RecentTasks),
		Retired: parseIDs(doc.RetiredIDs),
		Notes:   doc.Notes,
	}
	placeholder := 0
	var walk func(entries []taskEntry, parent int) ([]int, error)
	walk = func(entries []taskEntry, parent int) ([]int, error) {
		var ids []int
		for _, e := range entries {
			t, err := decodeTask(e, loc)
			if err != nil {
				return nil, err
			}
			if t.ID <= 0 {
				placeholder--
				t.ID = placeholder
			}
			t.Parent = parent
			idx := len(file.Tasks)
			file.Tasks = append(file.Tasks, t)
			children, err := walk(e.Tasks, t.ID)
			if err != nil {
				return nil, err
			}
			file.Tasks[idx].Children = children
			ids = append(ids, t.ID)
		}
		return ids, nil
	}
	if _, err := walk(doc.Tasks, 0); err != nil {
		return nil, err
	}
	return file, nil
}

func decodeTask(e taskEntry, loc *time.Location) (models.Task, error) {
	t := models.Task{
		ID:            e.ID,
		Name:          strings.TrimSpace(e.Name),
		BookingNumber: e.BookingNumber,
		Priority:      e.Priority,
		Allocation:    e.Allocation,
		QuantityDone:  e.QuantityDone,
		QuantityTotal: e.QuantityTotal,
		OutlookID:     e.OutlookID,
		Recurring:     append([]string(nil), e.Recurring...),
		Notes:         e.Notes,
	}
	state, err := models.ParseTaskState(e.State)
	if err != nil {
		state = models.StatePending
	}
	t.State = state
	if t.Metric, err = models.ParseMetric(e.Metric); err != nil {
		t.Metric = models.MetricTime
	}
	if t.AllocatedTime, err = parseDuration(e.AllocatedTime); err != nil {
		return t, fmt.Errorf("decoding task %d: %w", e.ID, err)
	}
	if t.EstimatedTime, err = parseDuration(e.EstimatedTime); err != nil {
		return t, fmt.Errorf("decoding task %d: %w", e.ID, err)
	}
	if t.StartDate, err = parseTime(e.StartDate, loc); err != nil {
		return t, fmt.Errorf("decoding task %d: %w", e.ID, err)
	}
	if t.EndDate, err = parseTime(e.EndDate, loc); err != nil {
		return t, fmt.Errorf("decoding task %d: %w", e.ID, err)
	}
	return t, nil
}

// TaskStore reads and writes the task tree file.
type TaskStore interface {
	Load() (*models.TaskFile, error)
	Save(file models.TaskFile) error
	Path() string
}

type fileTaskStore struct {
	basePath string
	loc      *time.Location
}

// NewTaskStore creates a TaskStore backed by tasks.yaml in the given base
// directory. Timestamps are read in loc.
func NewTaskStore(basePath string, loc *time.Location) TaskStore {
	return &fileTaskStore{basePath: basePath, loc: loc}
}

func (s *fileTaskStore) Path() string {
	return filepath.Join(s.basePath, TaskFileName)
}

// Load returns nil when the file does not exist yet.
func (s *fileTaskStore) Load() (*models.TaskFile, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading tasks: %w", err)
	}
	file, err := DecodeTaskFile(data, s.loc)
	if err != nil {
		return nil, fmt.Errorf("loading tasks: %w", err)
	}
	return file, nil
}

func (s *fileTaskStore) Save(file models.TaskFile) error {
	unlock, err := lockDir(s.basePath)
	if err != nil {
		return fmt.Errorf("saving tasks: %w", err)
	}
	defer unlock()
	data, err := EncodeTaskFile(file)
	if err != nil {
		return fmt.Errorf("saving tasks: %w", err)
	}
	if err := writeFileAtomic(s.Path(), data); err != nil {
		return fmt.Errorf("saving tasks: writing file: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a sibling temp file and renames it over
// path so a crash never leaves a truncated file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o600); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
