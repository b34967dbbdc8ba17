// Package core contains the engine of weektrack: the task tree, the weekly
// event/activity graph with its consistency repairs, reminders, calendar
// import and configuration.
package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

// ConfigFileName is the base name of the configuration file, without the
// extension Viper adds.
const ConfigFileName = ".weektrack"

// ConfigurationManager loads and validates configuration from the
// .weektrack.yaml file in the base path.
type ConfigurationManager interface {
	LoadGlobalConfig() (*models.GlobalConfig, error)
	ValidateConfig(cfg *models.GlobalConfig) error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading YAML configuration files.
type viperConfigManager struct {
	basePath string
}

// NewConfigurationManager creates a new ConfigurationManager that reads
// configuration files relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

func defaultGlobalConfig() *models.GlobalConfig {
	return &models.GlobalConfig{
		Engine:      models.DefaultEngineConfig(),
		RecentLimit: defaultRecentLimit,
	}
}

// LoadGlobalConfig reads .weektrack.yaml from the base path. If the file
// does not exist, defaults are returned.
func (cm *viperConfigManager) LoadGlobalConfig() (*models.GlobalConfig, error) {
	cfg := defaultGlobalConfig()
	eng := cfg.Engine

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix("WT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("engine.day_start", formatClock(eng.DayStart))
	v.SetDefault("engine.day_end", formatClock(eng.DayEnd))
	v.SetDefault("engine.allow_overnight", eng.AllowOvernight)
	v.SetDefault("engine.allow_unfinished", eng.AllowUnfinished)
	v.SetDefault("engine.join_activities", eng.JoinActivities)
	v.SetDefault("engine.merge_event_window", int(eng.MergeEventWindow/time.Minute))
	v.SetDefault("engine.reminder_window", int(eng.ReminderWindow/time.Minute))
	v.SetDefault("engine.hours_per_week", eng.HoursPerWeek)
	v.SetDefault("engine.days_per_week", eng.DaysPerWeek)
	v.SetDefault("engine.location", "")
	v.SetDefault("recent_limit", cfg.RecentLimit)
	v.SetDefault("notifications.enabled", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading %s.yaml: %w", ConfigFileName, err)
		}
	}

	var err error
	if eng.DayStart, err = parseClock(v.GetString("engine.day_start")); err != nil {
		return nil, fmt.Errorf("engine.day_start: %w", err)
	}
	if eng.DayEnd, err = parseClock(v.GetString("engine.day_end")); err != nil {
		return nil, fmt.Errorf("engine.day_end: %w", err)
	}
	eng.AllowOvernight = v.GetBool("engine.allow_overnight")
	eng.AllowUnfinished = v.GetBool("engine.allow_unfinished")
	eng.JoinActivities = v.GetBool("engine.join_activities")
	eng.MergeEventWindow = time.Duration(v.GetInt("engine.merge_event_window")) * time.Minute
	eng.ReminderWindow = time.Duration(v.GetInt("engine.reminder_window")) * time.Minute
	eng.HoursPerWeek = v.GetFloat64("engine.hours_per_week")
	eng.DaysPerWeek = v.GetInt("engine.days_per_week")
	if name := v.GetString("engine.location"); name != "" {
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("engine.location %q: %w", name, err)
		}
		eng.Location = loc
	}
	cfg.Engine = eng

	cfg.Calendar = models.CalendarConfig{
		ID:          v.GetString("calendar.id"),
		Credentials: v.GetString("calendar.credentials"),
		Token:       v.GetString("calendar.token"),
	}
	cfg.Notifications = models.NotificationConfig{
		Enabled:      v.GetBool("notifications.enabled"),
		SlackWebhook: v.GetString("notifications.slack_webhook"),
	}
	cfg.RecentLimit = v.GetInt("recent_limit")

	return cfg, nil
}

// ValidateConfig checks the configuration for invalid values and returns a
// clear error message identifying every problem.
func (cm *viperConfigManager) ValidateConfig(cfg *models.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}
	eng := cfg.Engine
	var errs []string

	if eng.DayStart < 0 || eng.DayStart >= 24*time.Hour {
		errs = append(errs, fmt.Sprintf("engine.day_start %s is not a time of day", formatClock(eng.DayStart)))
	}
	if eng.DayEnd <= eng.DayStart {
		errs = append(errs, fmt.Sprintf("engine.day_end %s must be after engine.day_start %s",
			formatClock(eng.DayEnd), formatClock(eng.DayStart)))
	}
	if eng.DayEnd > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("engine.day_end %s is not a time of day", formatClock(eng.DayEnd)))
	}
	if eng.DaysPerWeek < 1 || eng.DaysPerWeek > 7 {
		errs = append(errs, fmt.Sprintf("engine.days_per_week must be between 1 and 7, got %d", eng.DaysPerWeek))
	}
	if eng.HoursPerWeek <= 0 {
		errs = append(errs, fmt.Sprintf("engine.hours_per_week must be positive, got %g", eng.HoursPerWeek))
	}
	if eng.MergeEventWindow < 0 {
		errs = append(errs, "engine.merge_event_window must not be negative")
	}
	if eng.ReminderWindow < 0 {
		errs = append(errs, "engine.reminder_window must not be negative")
	}
	if cfg.RecentLimit < 0 {
		errs = append(errs, fmt.Sprintf("recent_limit must not be negative, got %d", cfg.RecentLimit))
	}
	if cfg.Notifications.Enabled && cfg.Notifications.SlackWebhook != "" &&
		!strings.HasPrefix(cfg.Notifications.SlackWebhook, "https://") {
		errs = append(errs, "notifications.slack_webhook must be an https URL")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// parseClock parses a time of day such as "09:00" or "17:30" into the offset
// from midnight.
func parseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" {
		return 24 * time.Hour, nil
	}
	for _, layout := range []string{"15:04", "3:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q, want HH:MM", s)
}

func formatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}
