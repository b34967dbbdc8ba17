package core

import "time"

// Clock supplies the current time to the engine.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now truncated to whole seconds, the resolution of the
// persisted timestamp format.
func (SystemClock) Now() time.Time {
	return time.Now().Truncate(time.Second)
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// midnight returns 00:00:00 of t's calendar day in loc.
func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// endOfDay returns 23:59:59 of t's calendar day in loc.
func endOfDay(t time.Time, loc *time.Location) time.Time {
	return nextDay(t, loc).Add(-time.Second)
}

// sameDay reports whether a and b fall on the same calendar day in loc.
func sameDay(a, b time.Time, loc *time.Location) bool {
	return midnight(a, loc).Equal(midnight(b, loc))
}

// nextDay returns midnight of the day after t, robust to DST transitions.
func nextDay(t time.Time, loc *time.Location) time.Time {
	m := midnight(t, loc)
	return time.Date(m.Year(), m.Month(), m.Day()+1, 0, 0, 0, 0, loc)
}

// WeekStart returns Monday 00:00 of the week containing ref.
func WeekStart(ref time.Time, loc *time.Location) time.Time {
	m := midnight(ref, loc)
	offset := (int(m.Weekday()) + 6) % 7
	return time.Date(m.Year(), m.Month(), m.Day()-offset, 0, 0, 0, 0, loc)
}

