package schedule

import "time"

type interval struct {
	start, end int
}

func overlaps(a, b interval) bool {
	return a.start < b.end && b.start < a.end
}

// Derive lists the bookable slots of t on date. now decides "today" in
// date's location and the advance booking window. Slots that overlap a
// break are dropped whole, and a slot must end by the day's end time.
// On today's date, slots that already started are not offered.
func Derive(t Template, date time.Time, now time.Time) []Slot {
	now = now.In(date.Location())
	ahead := daysBetween(now, date)
	if ahead < 0 || ahead > t.BookingPolicy.MaxAdvanceBookingDays {
		return nil
	}
	if ahead == 0 && !t.BookingPolicy.AllowSameDayBooking {
		return nil
	}

	wd := t.WorkingDays[date.Weekday()]
	if !wd.IsWorking {
		return nil
	}

	dateStr := FormatDate(date)
	nowMinutes := now.Hour()*60 + now.Minute()

	var slots []Slot
	for _, iv := range daySlots(wd, t.SlotDurationMinutes) {
		if ahead == 0 && iv.start < nowMinutes {
			continue
		}
		slots = append(slots, Slot{
			DoctorID:  t.DoctorID,
			Date:      dateStr,
			StartTime: FormatClock(iv.start),
			EndTime:   FormatClock(iv.end),
		})
	}
	return slots
}

func daySlots(wd WorkingDay, duration int) []interval {
	if duration <= 0 {
		return nil
	}
	dayStart, err := ParseClock(wd.StartTime)
	if err != nil {
		return nil
	}
	dayEnd, err := ParseClock(wd.EndTime)
	if err != nil {
		return nil
	}

	breaks := make([]interval, 0, len(wd.Breaks))
	for _, b := range wd.Breaks {
		bs, err1 := ParseClock(b.StartTime)
		be, err2 := ParseClock(b.EndTime)
		if err1 != nil || err2 != nil {
			continue
		}
		breaks = append(breaks, interval{bs, be})
	}

	var out []interval
	for cursor := dayStart; cursor+duration <= dayEnd; cursor += duration {
		slot := interval{cursor, cursor + duration}
		blocked := false
		for _, b := range breaks {
			if overlaps(slot, b) {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, slot)
		}
	}
	return out
}
