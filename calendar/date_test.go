package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/calendar"
)

// June 2025: Mon Jun 2 .. Fri Jun 6 is a full working week, Jun 7/8 weekend.
func june(day int) calendar.Date { return calendar.NewDate(2025, time.June, day) }

// =============================================================================
// BUSINESS DAY COUNTING
// =============================================================================

func TestBusinessDays_SkipsWeekends(t *testing.T) {
	// Thu Jun 5 .. Mon Jun 9 spans a weekend: Thu, Fri, Mon count.
	assert.Equal(t, 3, calendar.BusinessDays(june(5), june(9), calendar.NoHolidays{}))
}

func TestBusinessDays_FullWeek(t *testing.T) {
	assert.Equal(t, 5, calendar.BusinessDays(june(2), june(6), calendar.NoHolidays{}))
}

func TestBusinessDays_WeekendOnlySpanIsZero(t *testing.T) {
	assert.Equal(t, 0, calendar.BusinessDays(june(7), june(8), calendar.NoHolidays{}))
}

func TestBusinessDays_ExcludesHolidays(t *testing.T) {
	cal := &calendar.FixedCalendar{Holidays: []calendar.Holiday{
		{Date: june(4), Name: "Mid-week holiday"},
	}}
	assert.Equal(t, 4, calendar.BusinessDays(june(2), june(6), cal))
}

func TestBusinessDays_HolidayOnWeekendNotDoubleCounted(t *testing.T) {
	cal := &calendar.FixedCalendar{Holidays: []calendar.Holiday{
		{Date: june(7), Name: "Saturday holiday"},
	}}
	assert.Equal(t, 5, calendar.BusinessDays(june(2), june(8), cal))
}

func TestBusinessDays_ReversedRangeIsZero(t *testing.T) {
	assert.Equal(t, 0, calendar.BusinessDays(june(6), june(2), calendar.NoHolidays{}))
}

func TestBusinessDays_NilCalendarMeansNoHolidays(t *testing.T) {
	assert.Equal(t, 5, calendar.BusinessDays(june(2), june(6), nil))
}

// =============================================================================
// RANGE HELPERS
// =============================================================================

func TestInclusiveDays_CountsBothEnds(t *testing.T) {
	assert.Equal(t, 1, calendar.InclusiveDays(june(2), june(2)))
	assert.Equal(t, 3, calendar.InclusiveDays(june(2), june(4)))
	assert.Equal(t, 0, calendar.InclusiveDays(june(4), june(2)))
}

func TestOverlaps_BoundariesInclusive(t *testing.T) {
	// Ranges sharing exactly one day overlap.
	assert.True(t, calendar.Overlaps(june(2), june(4), june(4), june(6)))
	// Adjacent but disjoint ranges do not.
	assert.False(t, calendar.Overlaps(june(2), june(4), june(5), june(6)))
	// Containment overlaps.
	assert.True(t, calendar.Overlaps(june(2), june(10), june(4), june(5)))
}

func TestWholeMonthsBetween_DayOfMonthMatters(t *testing.T) {
	joined := calendar.NewDate(2025, time.January, 20)

	assert.Equal(t, 0, calendar.WholeMonthsBetween(joined, calendar.NewDate(2025, time.February, 19)))
	assert.Equal(t, 1, calendar.WholeMonthsBetween(joined, calendar.NewDate(2025, time.February, 20)))
	assert.Equal(t, 12, calendar.WholeMonthsBetween(joined, calendar.NewDate(2026, time.January, 20)))
	assert.Equal(t, 0, calendar.WholeMonthsBetween(joined, calendar.NewDate(2024, time.December, 1)),
		"a future joining date yields zero tenure")
}

func TestMonthBoundaries(t *testing.T) {
	assert.True(t, calendar.EndOfMonth(2025, time.February).Equal(calendar.NewDate(2025, time.February, 28)))
	assert.True(t, calendar.EndOfMonth(2024, time.February).Equal(calendar.NewDate(2024, time.February, 29)))
	assert.True(t, calendar.StartOfMonth(2025, time.June).Equal(june(1)))
}

// =============================================================================
// PARSING AND NORMALIZATION
// =============================================================================

func TestParseDate_RoundTrip(t *testing.T) {
	d, err := calendar.ParseDate("2025-06-05")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-05", d.String())
	assert.True(t, d.Equal(june(5)))
}

func TestParseDate_RejectsGarbage(t *testing.T) {
	_, err := calendar.ParseDate("05/06/2025")
	assert.Error(t, err)
}

func TestFromTime_TruncatesToUTCDay(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	// 02:00 IST on Jun 5 is still Jun 4 in UTC.
	instant := time.Date(2025, time.June, 5, 2, 0, 0, 0, loc)
	assert.True(t, calendar.FromTime(instant).Equal(june(4)))
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

func TestFixedCalendar_RecurringMatchesEveryYear(t *testing.T) {
	cal := &calendar.FixedCalendar{Holidays: []calendar.Holiday{
		{Date: calendar.NewDate(2020, time.August, 15), Name: "Independence Day", Recurring: true},
		{Date: calendar.NewDate(2025, time.March, 14), Name: "Holi"},
	}}

	assert.True(t, cal.IsHoliday(calendar.NewDate(2025, time.August, 15)))
	assert.True(t, cal.IsHoliday(calendar.NewDate(2031, time.August, 15)))
	assert.True(t, cal.IsHoliday(calendar.NewDate(2025, time.March, 14)))
	assert.False(t, cal.IsHoliday(calendar.NewDate(2026, time.March, 14)), "one-off holidays do not recur")
}

func TestIsWorkday(t *testing.T) {
	cal := &calendar.FixedCalendar{Holidays: []calendar.Holiday{{Date: june(4)}}}

	assert.True(t, june(2).IsWorkday(cal))
	assert.False(t, june(4).IsWorkday(cal), "holiday")
	assert.False(t, june(7).IsWorkday(cal), "Saturday")
	assert.False(t, june(8).IsWorkday(nil), "Sunday, nil calendar")
}
