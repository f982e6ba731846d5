package leave

import (
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/calendar"
)

// =============================================================================
// DURATION - Business-day sizing of a request
// =============================================================================

var half = decimal.NewFromFloat(0.5)

// Duration returns the number of balance units a request consumes.
//
// Rules:
//   - Half-day requests always count as 0.5, regardless of calendar span.
//   - Otherwise: inclusive business-day count between start and end,
//     excluding weekends and company holidays.
func Duration(start, end calendar.Date, isHalfDay bool, cal calendar.HolidayCalendar) decimal.Decimal {
	if isHalfDay {
		return half
	}
	return decimal.NewFromInt(int64(calendar.BusinessDays(start, end, cal)))
}

// CalendarSpan returns the raw inclusive calendar-day span of a request.
// Used for consecutive-day policy limits, which count weekends.
func CalendarSpan(start, end calendar.Date) int {
	return calendar.InclusiveDays(start, end)
}
