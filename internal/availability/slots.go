package availability

import "time"

const (
	// SlotDuration is the fixed appointment length.
	SlotDuration = 30 * time.Minute
	// Working hours in the doctor's local zone.
	workdayStartHour = 9
	workdayEndHour   = 17
)

// Slot is a candidate appointment time as a UTC instant pair.
type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

// doctorSlots generates the doctor's working-hour slots overlapping the
// patient's UTC window, marking slots unavailable when already booked or in
// the past. The UTC window may straddle two doctor-local days when zones
// differ, so slots are generated per local day and then filtered.
func doctorSlots(window DayWindow, loc *time.Location, now time.Time, booked []time.Time) []Slot {
	bookedSet := make(map[int64]struct{}, len(booked))
	for _, b := range booked {
		bookedSet[b.UnixMilli()] = struct{}{}
	}

	var slots []Slot
	for _, day := range localDays(window, loc) {
		for _, s := range localDaySlots(day, loc) {
			if s.Start.Before(window.StartUTC) || !s.Start.Before(window.EndUTC) {
				continue
			}
			_, taken := bookedSet[s.Start.UnixMilli()]
			s.Available = !taken && !s.Start.Before(now)
			slots = append(slots, s)
		}
	}
	return slots
}

type localDate struct {
	year  int
	month time.Month
	day   int
}

// localDays lists the doctor-local calendar days the UTC window touches.
func localDays(window DayWindow, loc *time.Location) []localDate {
	first := window.StartUTC.In(loc)
	last := window.EndUTC.Add(-time.Nanosecond).In(loc)

	y0, m0, d0 := first.Date()
	y1, m1, d1 := last.Date()
	days := []localDate{{y0, m0, d0}}
	if y0 != y1 || m0 != m1 || d0 != d1 {
		days = append(days, localDate{y1, m1, d1})
	}
	return days
}

// localDaySlots walks the doctor's wall clock from 09:00 to 17:00 on one
// local day. Anchoring both ends with time.Date in the doctor's zone keeps
// DST days correct: the wall-clock window is what shifts, not the slot count.
func localDaySlots(day localDate, loc *time.Location) []Slot {
	start := time.Date(day.year, day.month, day.day, workdayStartHour, 0, 0, 0, loc)
	end := time.Date(day.year, day.month, day.day, workdayEndHour, 0, 0, 0, loc)

	var slots []Slot
	for t := start; t.Before(end); t = t.Add(SlotDuration) {
		slots = append(slots, Slot{
			Start: t.UTC(),
			End:   t.Add(SlotDuration).UTC(),
		})
	}
	return slots
}
