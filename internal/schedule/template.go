package schedule

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultSlotDurationMinutes = 30
	MinSlotDurationMinutes     = 15
	MaxSlotDurationMinutes     = 120

	DefaultMaxAdvanceBookingDays = 30
	DefaultBufferMinutes         = 5
)

type BreakType string

const (
	BreakLunch   BreakType = "lunch"
	BreakCoffee  BreakType = "coffee"
	BreakMeeting BreakType = "meeting"
	BreakCustom  BreakType = "custom"
)

type Break struct {
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	Type        BreakType `json:"type"`
	Description string    `json:"description,omitempty"`
}

type WorkingDay struct {
	IsWorking bool    `json:"is_working"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Breaks    []Break `json:"breaks"`
}

type BookingPolicy struct {
	AllowSameDayBooking       bool `json:"allow_same_day_booking"`
	MaxAdvanceBookingDays     int  `json:"max_advance_booking_days"`
	BufferMinutesBetweenSlots int  `json:"buffer_minutes_between_slots"`
}

// Template is a doctor's weekly availability. WorkingDays is indexed by
// time.Weekday, so WorkingDays[time.Sunday] is Sunday.
type Template struct {
	DoctorID            uuid.UUID     `json:"doctor_id"`
	WorkingDays         [7]WorkingDay `json:"working_days"`
	SlotDurationMinutes int           `json:"slot_duration_minutes"`
	BookingPolicy       BookingPolicy `json:"booking_policy"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// Slot is a derived, unpersisted bookable interval.
type Slot struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
}

func (s Slot) Key() SlotKey {
	return SlotKey{DoctorID: s.DoctorID, Date: s.Date, StartTime: s.StartTime}
}

// DefaultTemplate returns Mon-Fri 09:00-17:00 with a 12:00-13:00 lunch,
// Saturday 09:00-13:00 and Sunday off.
func DefaultTemplate(doctorID uuid.UUID) Template {
	weekday := func() WorkingDay {
		return WorkingDay{
			IsWorking: true,
			StartTime: "09:00",
			EndTime:   "17:00",
			Breaks: []Break{
				{StartTime: "12:00", EndTime: "13:00", Type: BreakLunch, Description: "Lunch Break"},
			},
		}
	}

	t := Template{
		DoctorID:            doctorID,
		SlotDurationMinutes: DefaultSlotDurationMinutes,
		BookingPolicy: BookingPolicy{
			AllowSameDayBooking:       true,
			MaxAdvanceBookingDays:     DefaultMaxAdvanceBookingDays,
			BufferMinutesBetweenSlots: DefaultBufferMinutes,
		},
	}
	for d := time.Monday; d <= time.Friday; d++ {
		t.WorkingDays[d] = weekday()
	}
	t.WorkingDays[time.Saturday] = WorkingDay{IsWorking: true, StartTime: "09:00", EndTime: "13:00", Breaks: []Break{}}
	t.WorkingDays[time.Sunday] = WorkingDay{IsWorking: false, StartTime: "00:00", EndTime: "00:00", Breaks: []Break{}}
	return t
}

type DayAnalytics struct {
	Day             string `json:"day"`
	IsWorking       bool   `json:"is_working"`
	BookableMinutes int    `json:"bookable_minutes"`
	SlotsPerDay     int    `json:"slots_per_day"`
}

type Analytics struct {
	WorkingDaysPerWeek int            `json:"working_days_per_week"`
	SlotsPerWeek       int            `json:"slots_per_week"`
	Days               []DayAnalytics `json:"days"`
}

// Analytics summarises weekly capacity. Slot counts use the same stepping
// as Derive.
func (t Template) Analytics() Analytics {
	var out Analytics
	for d := time.Sunday; d <= time.Saturday; d++ {
		wd := t.WorkingDays[d]
		day := DayAnalytics{Day: d.String(), IsWorking: wd.IsWorking}
		if wd.IsWorking {
			out.WorkingDaysPerWeek++
			start, err1 := ParseClock(wd.StartTime)
			end, err2 := ParseClock(wd.EndTime)
			if err1 == nil && err2 == nil && end > start {
				day.BookableMinutes = end - start
				for _, b := range wd.Breaks {
					bs, e1 := ParseClock(b.StartTime)
					be, e2 := ParseClock(b.EndTime)
					if e1 == nil && e2 == nil && be > bs {
						day.BookableMinutes -= be - bs
					}
				}
				day.SlotsPerDay = len(daySlots(wd, t.SlotDurationMinutes))
			}
		}
		out.SlotsPerWeek += day.SlotsPerDay
		out.Days = append(out.Days, day)
	}
	return out
}
