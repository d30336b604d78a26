package core

import (
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar date with no time component, stored in UTC.
// Semester ranges and ledger posting dates are plain dates; the midday
// anchor keeps them stable against timestamped rows when the two are
// sorted together.
type Date struct {
	time.Time
}

func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses an ISO "2006-01-02" date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, wrapValidation("date %q is not in YYYY-MM-DD form", s)
	}
	return Date{Time: t.UTC()}, nil
}

func Today() Date {
	return DateOf(time.Now())
}

func (d Date) Validate() error {
	if d.IsZero() {
		return wrapValidation("date is required")
	}
	return nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

// Midday anchors the date at 12:00 UTC. Date-only rows take this as
// their effective timestamp so a timezone shift of a few hours cannot
// push them across a day boundary relative to timestamped rows.
func (d Date) Midday() time.Time {
	return d.Add(12 * time.Hour)
}

// AddDays returns the date n calendar days after d; n may be negative.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// Before reports whether d falls strictly before other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// After reports whether d falls strictly after other.
func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

// Covers reports whether day falls inside the inclusive [start, end]
// range.
func Covers(start, end, day Date) bool {
	return !day.Before(start) && !day.After(end)
}

// RangesOverlap reports whether two inclusive date ranges intersect.
func RangesOverlap(aStart, aEnd, bStart, bEnd Date) bool {
	return !aStart.After(bEnd) && !aEnd.Before(bStart)
}
