package schedule

import (
	"fmt"
	"sort"
	"time"
)

const maxAdvanceBookingDaysLimit = 365

// Validate checks the template invariants. Non-working days are not
// checked beyond their break list being well-formed.
func (t Template) Validate() error {
	if t.SlotDurationMinutes < MinSlotDurationMinutes || t.SlotDurationMinutes > MaxSlotDurationMinutes {
		return fmt.Errorf("%w: slot duration must be between %d and %d minutes",
			ErrInvalidTemplate, MinSlotDurationMinutes, MaxSlotDurationMinutes)
	}
	p := t.BookingPolicy
	if p.MaxAdvanceBookingDays < 0 || p.MaxAdvanceBookingDays > maxAdvanceBookingDaysLimit {
		return fmt.Errorf("%w: max advance booking days must be between 0 and %d",
			ErrInvalidTemplate, maxAdvanceBookingDaysLimit)
	}
	if p.BufferMinutesBetweenSlots < 0 || p.BufferMinutesBetweenSlots > MaxSlotDurationMinutes {
		return fmt.Errorf("%w: buffer minutes must be between 0 and %d", ErrInvalidTemplate, MaxSlotDurationMinutes)
	}

	for d := time.Sunday; d <= time.Saturday; d++ {
		if err := validateDay(t.WorkingDays[d]); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, d, err)
		}
	}
	return nil
}

func validateDay(wd WorkingDay) error {
	if !wd.IsWorking {
		return nil
	}
	start, err := ParseClock(wd.StartTime)
	if err != nil {
		return err
	}
	end, err := ParseClock(wd.EndTime)
	if err != nil {
		return err
	}
	if start >= end {
		return fmt.Errorf("start time %s must be before end time %s", wd.StartTime, wd.EndTime)
	}

	breaks := make([]interval, 0, len(wd.Breaks))
	for _, b := range wd.Breaks {
		bs, err := ParseClock(b.StartTime)
		if err != nil {
			return err
		}
		be, err := ParseClock(b.EndTime)
		if err != nil {
			return err
		}
		if bs >= be {
			return fmt.Errorf("break %s-%s is empty", b.StartTime, b.EndTime)
		}
		if bs < start || be > end {
			return fmt.Errorf("break %s-%s outside working hours", b.StartTime, b.EndTime)
		}
		switch b.Type {
		case BreakLunch, BreakCoffee, BreakMeeting, BreakCustom, "":
		default:
			return fmt.Errorf("unknown break type %q", b.Type)
		}
		breaks = append(breaks, interval{bs, be})
	}

	sort.Slice(breaks, func(i, j int) bool { return breaks[i].start < breaks[j].start })
	for i := 1; i < len(breaks); i++ {
		if overlaps(breaks[i-1], breaks[i]) {
			return fmt.Errorf("breaks at %s and %s overlap",
				FormatClock(breaks[i-1].start), FormatClock(breaks[i].start))
		}
	}
	return nil
}
