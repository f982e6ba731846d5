/*
Package calendar provides day-granularity date handling for the leave engine.

PURPOSE:
  Leave accounting reasons about calendar days, not instants. A Date is a
  normalized day (UTC midnight) with comparison, arithmetic, and the
  business-day math the validation and accrual engines depend on.

KEY CONCEPTS:
  - Date: a single calendar day, comparable and order-able
  - BusinessDays: inclusive weekday count between two dates, holiday-aware
  - WholeMonthsBetween: tenure computation (joining date -> today)
  - HolidayCalendar: company holidays excluded from business-day counts

WHY NOT time.Time DIRECTLY?
  Raw time.Time carries hours, zones, and DST anomalies that have no meaning
  here and cause off-by-one bugs in inclusive day counts. Date normalizes
  everything to UTC midnight once, at the boundary.

SEE ALSO:
  - validation: business-day request sizing, overlap checks
  - accrual: month boundaries, pro-ration
*/
package calendar

import "time"

// =============================================================================
// DATE - A single calendar day
// =============================================================================

type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// FromTime truncates an instant to its calendar day (UTC).
func FromTime(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

func Today() Date {
	return FromTime(time.Now())
}

// ParseDate parses a date in ISO 8601 form (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return FromTime(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date   { return FromTime(d.t.AddDate(0, 0, n)) }
func (d Date) AddMonths(n int) Date { return FromTime(d.t.AddDate(0, n, 0)) }
func (d Date) AddYears(n int) Date  { return FromTime(d.t.AddDate(n, 0, 0)) }

// Properties
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }
func (d Date) Time() time.Time       { return d.t }

func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (d Date) String() string { return d.t.Format("2006-01-02") }

// =============================================================================
// RANGE HELPERS
// =============================================================================

// DaysBetween returns the calendar-day distance from a to b (negative if b < a).
func DaysBetween(a, b Date) int {
	return int(b.t.Sub(a.t).Hours() / 24)
}

// InclusiveDays returns the number of days in [a, b], both ends counted.
// Returns 0 when b is before a.
func InclusiveDays(a, b Date) int {
	if b.Before(a) {
		return 0
	}
	return DaysBetween(a, b) + 1
}

// Overlaps reports whether [aStart, aEnd] and [bStart, bEnd] share any day.
// Boundaries are inclusive: ranges touching on a single day overlap.
func Overlaps(aStart, aEnd, bStart, bEnd Date) bool {
	return aStart.BeforeOrEqual(bEnd) && bStart.BeforeOrEqual(aEnd)
}

// WholeMonthsBetween returns complete months elapsed from 'from' to 'to'.
// Used for tenure: an employee who joined on Jan 20 has 0 whole months on
// Feb 19 and 1 on Feb 20.
func WholeMonthsBetween(from, to Date) int {
	if to.Before(from) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

func StartOfMonth(year int, month time.Month) Date { return NewDate(year, month, 1) }

func EndOfMonth(year int, month time.Month) Date {
	return NewDate(year, month, 1).AddMonths(1).AddDays(-1)
}

func StartOfYear(year int) Date { return NewDate(year, time.January, 1) }
func EndOfYear(year int) Date   { return NewDate(year, time.December, 31) }

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

// Holiday is a non-working day that does not count against leave.
type Holiday struct {
	Date      Date
	Name      string
	Recurring bool // same month/day every year
}

// HolidayCalendar answers whether a given day is a company holiday.
type HolidayCalendar interface {
	IsHoliday(date Date) bool
}

// NoHolidays is the calendar used when holiday exclusion is disabled.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(Date) bool { return false }

// FixedCalendar is a simple in-memory holiday calendar.
type FixedCalendar struct {
	Holidays []Holiday
}

func (c *FixedCalendar) IsHoliday(date Date) bool {
	for _, h := range c.Holidays {
		if h.Recurring {
			if h.Date.Month() == date.Month() && h.Date.Day() == date.Day() {
				return true
			}
			continue
		}
		if h.Date.Equal(date) {
			return true
		}
	}
	return false
}

// IsWorkday reports whether the date is neither a weekend nor a holiday.
func (d Date) IsWorkday(cal HolidayCalendar) bool {
	if d.IsWeekend() {
		return false
	}
	if cal != nil && cal.IsHoliday(d) {
		return false
	}
	return true
}

// BusinessDays counts workdays in [from, to] inclusive.
func BusinessDays(from, to Date, cal HolidayCalendar) int {
	if to.Before(from) {
		return 0
	}
	count := 0
	for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
		if d.IsWorkday(cal) {
			count++
		}
	}
	return count
}
