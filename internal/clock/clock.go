package clock

import "time"

// Clock supplies the current instant and calendar date. Lifecycle code never
// calls time.Now directly; it receives values from a Clock.
type Clock interface {
	Now() time.Time
	Today() time.Time
}

// System is the wall clock, in UTC.
type System struct{}

func (System) Now() time.Time {
	return time.Now().UTC()
}

func (System) Today() time.Time {
	return Date(time.Now().UTC())
}

// Fixed always reports the same instant. Used by tests.
type Fixed struct {
	At time.Time
}

func (f Fixed) Now() time.Time {
	return f.At
}

func (f Fixed) Today() time.Time {
	return Date(f.At)
}

// Date truncates t to midnight UTC of its calendar day.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
