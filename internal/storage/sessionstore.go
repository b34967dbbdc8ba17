package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/peterbourgon/diskv/v3"
	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

const sessionExt = ".yaml"

var actionNames = map[models.ActionKind]string{
	models.ActionDelay: "delay",
	models.ActionStart: "start",
}

type activityEntry struct {
	ID         int     `yaml:"id"`
	Task       int     `yaml:"task"`
	Start      int     `yaml:"start"`
	End        int     `yaml:"end,omitempty"`
	OutlookID  string  `yaml:"outlook_id,omitempty"`
	Allocation float64 `yaml:"allocation,omitempty"`
}

type eventEntry struct {
	ID         int    `yaml:"id"`
	Time       string `yaml:"time"`
	Label      string `yaml:"label,omitempty"`
	Remind     bool   `yaml:"remind,omitempty"`
	Action     string `yaml:"action,omitempty"`
	ActionTask int    `yaml:"action_task,omitempty"`
	Prior      string `yaml:"prior,omitempty"`
	Subsequent string `yaml:"subsequent,omitempty"`
}

// sessionDoc is the persisted form of one week.
type sessionDoc struct {
	Week            string          `yaml:"week"`
	CurrentActivity int             `yaml:"current_activity,omitempty"`
	PreviousTask    int             `yaml:"previous_task,omitempty"`
	Activities      []activityEntry `yaml:"activities"`
	Events          []eventEntry    `yaml:"events"`
}

// EncodeSessionFile renders a week's session record as YAML.
func EncodeSessionFile(weekStart time.Time, rec models.SessionRecord) ([]byte, error) {
	doc := sessionDoc{
		Week:            models.WeekKey(weekStart),
		CurrentActivity: rec.CurrentActivity,
		PreviousTask:    rec.PreviousTask,
		Activities:      make([]activityEntry, 0, len(rec.Activities)),
		Events:          make([]eventEntry, 0, len(rec.Events)),
	}
	for _, a := range rec.Activities {
		doc.Activities = append(doc.Activities, activityEntry(a))
	}
	for _, ev := range rec.Events {
		doc.Events = append(doc.Events, eventEntry{
			ID:         ev.ID,
			Time:       formatTime(ev.Time),
			Label:      ev.Label,
			Remind:     ev.Remind,
			Action:     actionNames[ev.Action],
			ActionTask: ev.ActionTask,
			Prior:      formatIDs(ev.Prior),
			Subsequent: formatIDs(ev.Subsequent),
		})
	}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("encoding session %s: %w", doc.Week, err)
	}
	return data, nil
}

// DecodeSessionFile parses a week's session record. References between
// activities and events are taken as written, dangling or not; repairing
// them is left to the engine. An event whose time is missing or unreadable
// decodes with a zero time, which the engine drops. Unknown actions decode
// as none.
func DecodeSessionFile(data []byte, loc *time.Location) (*models.SessionRecord, error) {
	loc = locOrLocal(loc)
	var doc sessionDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding session: parsing YAML: %w", err)
	}
	rec := &models.SessionRecord{
		CurrentActivity: doc.CurrentActivity,
		PreviousTask:    doc.PreviousTask,
	}
	for _, a := range doc.Activities {
		rec.Activities = append(rec.Activities, models.ActivityRecord(a))
	}
	for _, e := range doc.Events {
		// Unreadable times stay zero.
		t, _ := parseTime(e.Time, loc)
		ev := models.EventRecord{
			ID:         e.ID,
			Time:       t,
			Label:      e.Label,
			Remind:     e.Remind,
			ActionTask: e.ActionTask,
			Prior:      parseIDs(e.Prior),
			Subsequent: parseIDs(e.Subsequent),
		}
		for kind, name := range actionNames {
			if strings.EqualFold(strings.TrimSpace(e.Action), name) {
				ev.Action = kind
			}
		}
		rec.Events = append(rec.Events, ev)
	}
	return rec, nil
}

// SessionStore archives one session record per ISO week.
type SessionStore interface {
	Load(weekStart time.Time) (*models.SessionRecord, error)
	Save(weekStart time.Time, rec models.SessionRecord) error
	Delete(weekStart time.Time) error
	Weeks(ctx context.Context) []string
}

type diskvSessionStore struct {
	d        *diskv.Diskv
	loc      *time.Location
	basePath string
}

// NewSessionStore creates a SessionStore under sessions/ in the given base
// directory. Each week is a file sessions/<year>/<year>-W<week>.yaml.
func NewSessionStore(basePath string, loc *time.Location) SessionStore {
	return &diskvSessionStore{
		d: diskv.New(diskv.Options{
			BasePath:          filepath.Join(basePath, "sessions"),
			TempDir:           filepath.Join(basePath, ".tmp"),
			AdvancedTransform: weekKeyToPath,
			InverseTransform:  weekPathToKey,
			CacheSizeMax:      1024 * 1024,
			PathPerm:          0o750,
			FilePerm:          0o600,
		}),
		loc:      locOrLocal(loc),
		basePath: basePath,
	}
}

// weekKeyToPath files "2026-W42" as 2026/2026-W42.yaml.
func weekKeyToPath(key string) *diskv.PathKey {
	year, _, _ := strings.Cut(key, "-")
	return &diskv.PathKey{
		Path:     []string{year},
		FileName: key + sessionExt,
	}
}

func weekPathToKey(pk *diskv.PathKey) string {
	return strings.TrimSuffix(pk.FileName, sessionExt)
}

// Load returns nil when the week has no record.
func (s *diskvSessionStore) Load(weekStart time.Time) (*models.SessionRecord, error) {
	key := models.WeekKey(weekStart)
	if !s.d.Has(key) {
		return nil, nil
	}
	data, err := s.d.Read(key)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", key, err)
	}
	rec, err := DecodeSessionFile(data, s.loc)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", key, err)
	}
	return rec, nil
}

func (s *diskvSessionStore) Save(weekStart time.Time, rec models.SessionRecord) error {
	key := models.WeekKey(weekStart)
	data, err := EncodeSessionFile(weekStart, rec)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", key, err)
	}
	unlock, err := lockDir(s.basePath)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", key, err)
	}
	defer unlock()
	if err := s.d.Write(key, data); err != nil {
		return fmt.Errorf("saving session %s: %w", key, err)
	}
	return nil
}

func (s *diskvSessionStore) Delete(weekStart time.Time) error {
	key := models.WeekKey(weekStart)
	if !s.d.Has(key) {
		return nil
	}
	if err := s.d.Erase(key); err != nil {
		return fmt.Errorf("deleting session %s: %w", key, err)
	}
	return nil
}

// Weeks lists the archived week keys in chronological order.
func (s *diskvSessionStore) Weeks(ctx context.Context) []string {
	var keys []string
	for key := range s.d.Keys(ctx.Done()) {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
