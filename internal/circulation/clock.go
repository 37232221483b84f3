package circulation

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of civil dates.
const DateLayout = "2006-01-02"

// Clock tells the service what day it is in the library.
type Clock interface {
	Today() time.Time
}

// LocalClock reads the wall clock in the library's time zone.
type LocalClock struct {
	loc *time.Location
}

// NewClock returns a clock for the given location. A nil location means UTC.
func NewClock(loc *time.Location) LocalClock {
	if loc == nil {
		loc = time.UTC
	}
	return LocalClock{loc: loc}
}

// LoadClock resolves an IANA time zone name. "" means UTC and "Local" the
// host zone.
func LoadClock(name string) (LocalClock, error) {
	switch name {
	case "", "UTC":
		return NewClock(time.UTC), nil
	case "Local":
		return NewClock(time.Local), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return LocalClock{}, fmt.Errorf("failed to load time zone %q: %w", name, err)
	}
	return NewClock(loc), nil
}

// Today returns the current civil date.
func (c LocalClock) Today() time.Time {
	return Civil(time.Now().In(c.loc))
}

// FixedClock always reports the same day.
type FixedClock time.Time

// Today returns the fixed civil date.
func (c FixedClock) Today() time.Time {
	return Civil(time.Time(c))
}

// Civil truncates t to its calendar date, expressed as UTC midnight.
func Civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StoredDate recovers a civil date read back from the database. Drivers may
// hand the stored UTC midnight back in another zone, so the date is taken in UTC.
func StoredDate(t time.Time) time.Time {
	return Civil(t.UTC())
}

// ParseDate parses a YYYY-MM-DD string into a civil date.
func ParseDate(raw string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return t, nil
}

// DaysBetween returns the number of calendar days from civil date a to civil date b.
func DaysBetween(a, b time.Time) int {
	return int(StoredDate(b).Sub(StoredDate(a)).Hours() / 24)
}
