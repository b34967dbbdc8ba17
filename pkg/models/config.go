package models

import "time"

// EngineConfig holds the settings consulted by the session engine. It is
// passed by value into every session at construction and never mutated.
type EngineConfig struct {
	DayStart         time.Duration  `yaml:"day_start" mapstructure:"day_start"`
	DayEnd           time.Duration  `yaml:"day_end" mapstructure:"day_end"`
	AllowOvernight   bool           `yaml:"allow_overnight" mapstructure:"allow_overnight"`
	AllowUnfinished  bool           `yaml:"allow_unfinished" mapstructure:"allow_unfinished"`
	JoinActivities   bool           `yaml:"join_activities" mapstructure:"join_activities"`
	MergeEventWindow time.Duration  `yaml:"merge_event_window" mapstructure:"merge_event_window"`
	ReminderWindow   time.Duration  `yaml:"reminder_window" mapstructure:"reminder_window"`
	HoursPerWeek     float64        `yaml:"hours_per_week" mapstructure:"hours_per_week"`
	DaysPerWeek      int            `yaml:"days_per_week" mapstructure:"days_per_week"`
	Location         *time.Location `yaml:"-" mapstructure:"-"`
}

// DefaultEngineConfig returns the engine defaults used when no config file
// is present.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DayStart:         9 * time.Hour,
		DayEnd:           17 * time.Hour,
		AllowOvernight:   false,
		AllowUnfinished:  false,
		JoinActivities:   true,
		MergeEventWindow: 5 * time.Minute,
		ReminderWindow:   5 * time.Minute,
		HoursPerWeek:     40,
		DaysPerWeek:      5,
		Location:         time.Local,
	}
}

// WorkingDay returns the length of a working day, hours_per_week spread over
// days_per_week.
func (c EngineConfig) WorkingDay() time.Duration {
	if c.DaysPerWeek <= 0 {
		return 0
	}
	return time.Duration(c.HoursPerWeek / float64(c.DaysPerWeek) * float64(time.Hour))
}

// Loc returns the configured location, falling back to local time.
func (c EngineConfig) Loc() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// CalendarConfig locates the external calendar and its OAuth material.
type CalendarConfig struct {
	ID          string `yaml:"id" mapstructure:"id"`
	Credentials string `yaml:"credentials" mapstructure:"credentials"`
	Token       string `yaml:"token" mapstructure:"token"`
}

// NotificationConfig holds reminder delivery settings.
type NotificationConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	SlackWebhook string `yaml:"slack_webhook" mapstructure:"slack_webhook"`
}

// GlobalConfig holds system-wide settings read from .weektrack.yaml via Viper.
type GlobalConfig struct {
	Engine        EngineConfig       `yaml:"engine" mapstructure:"engine"`
	Calendar      CalendarConfig     `yaml:"calendar" mapstructure:"calendar"`
	Notifications NotificationConfig `yaml:"notifications" mapstructure:"notifications"`
	RecentLimit   int                `yaml:"recent_limit" mapstructure:"recent_limit"`
}
