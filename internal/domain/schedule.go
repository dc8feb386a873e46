package domain

import "time"

// DefaultWeeklyLimit is the number of active bookings a member may hold in one calendar week.
const DefaultWeeklyLimit = 3

// WeekRange returns the calendar week containing t in loc: Monday 00:00 inclusive
// to the following Monday 00:00 exclusive.
func WeekRange(t time.Time, loc *time.Location) (start, end time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	// time.Weekday: Sunday=0 ... Saturday=6
	offset := (int(local.Weekday()) + 6) % 7
	start = time.Date(local.Year(), local.Month(), local.Day()-offset, 0, 0, 0, 0, loc)
	end = time.Date(start.Year(), start.Month(), start.Day()+7, 0, 0, 0, 0, loc)
	return start, end
}

// NextWeekMonday returns midnight of the Monday after the week containing ref.
func NextWeekMonday(ref time.Time, loc *time.Location) time.Time {
	_, end := WeekRange(ref, loc)
	return end
}

// DayOffsetFromMonday maps a weekday index (0=Sunday..6=Saturday) to days after Monday.
func DayOffsetFromMonday(dow int) int {
	if dow == 0 {
		return 6
	}
	return dow - 1
}

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

// Slot is one template window within a day.
type Slot struct {
	Start ClockTime
	End   ClockTime
}

// On places the slot on the given calendar day in loc.
func (s Slot) On(day time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, s.Start.Hour, s.Start.Minute, 0, 0, loc),
		time.Date(y, m, d, s.End.Hour, s.End.Minute, 0, 0, loc)
}

func slot(sh, eh int) Slot {
	return Slot{Start: ClockTime{Hour: sh}, End: ClockTime{Hour: eh}}
}

// SlotTemplates are the fixed day layouts keyed by terms-per-day.
var SlotTemplates = map[int][]Slot{
	2: {slot(13, 15), slot(17, 19)},
	3: {slot(13, 15), slot(15, 17), slot(17, 19)},
	4: {slot(12, 14), slot(14, 16), slot(16, 18), slot(18, 20)},
}
