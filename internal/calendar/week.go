package calendar

import "time"

// DateRange is an inclusive [Start, End] window. Ranges are produced by
// ComputeWeek only; callers never assemble them by hand.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// StartDate returns the calendar day of the range start.
func (r DateRange) StartDate() Date { return FromTime(r.Start) }

// EndDate returns the calendar day of the range end.
func (r DateRange) EndDate() Date { return FromTime(r.End) }

// ComputeWeek returns the dashboard week containing ref, using ref's own
// location. Start is the Sunday of that week at 00:00:00; End is the
// Saturday stepped back one calendar day, landing on Friday 23:59:59.
// Every window spans six days, not seven: Saturday-dated tasks fall outside
// every dashboard query. All range queries and averages are built on this
// Sunday..Friday window.
func ComputeWeek(ref time.Time) DateRange {
	day := FromTime(ref)
	sunday := day.AddDays(-int(day.Weekday()))
	saturday := sunday.AddDays(6)
	end := saturday.AddDays(-1)
	loc := ref.Location()
	return DateRange{
		Start: time.Date(sunday.y, sunday.m, sunday.d, 0, 0, 0, 0, loc),
		End:   time.Date(end.y, end.m, end.d, 23, 59, 59, 0, loc),
	}
}
