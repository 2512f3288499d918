package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Template)
		wantErr bool
	}{
		{name: "default is valid", mutate: func(*Template) {}},
		{
			name:    "slot too short",
			mutate:  func(t *Template) { t.SlotDurationMinutes = 10 },
			wantErr: true,
		},
		{
			name:    "slot too long",
			mutate:  func(t *Template) { t.SlotDurationMinutes = 121 },
			wantErr: true,
		},
		{
			name:    "negative advance days",
			mutate:  func(t *Template) { t.BookingPolicy.MaxAdvanceBookingDays = -1 },
			wantErr: true,
		},
		{
			name:    "start after end",
			mutate:  func(t *Template) { t.WorkingDays[time.Monday].StartTime = "18:00" },
			wantErr: true,
		},
		{
			name:    "bad time format",
			mutate:  func(t *Template) { t.WorkingDays[time.Tuesday].EndTime = "5pm" },
			wantErr: true,
		},
		{
			name: "break outside hours",
			mutate: func(t *Template) {
				t.WorkingDays[time.Monday].Breaks = []Break{{StartTime: "08:00", EndTime: "09:30", Type: BreakCoffee}}
			},
			wantErr: true,
		},
		{
			name: "overlapping breaks",
			mutate: func(t *Template) {
				t.WorkingDays[time.Monday].Breaks = []Break{
					{StartTime: "12:00", EndTime: "13:00", Type: BreakLunch},
					{StartTime: "12:30", EndTime: "12:45", Type: BreakCoffee},
				}
			},
			wantErr: true,
		},
		{
			name: "touching breaks are fine",
			mutate: func(t *Template) {
				t.WorkingDays[time.Monday].Breaks = []Break{
					{StartTime: "13:00", EndTime: "13:15", Type: BreakCoffee},
					{StartTime: "12:00", EndTime: "13:00", Type: BreakLunch},
				}
			},
		},
		{
			name: "unknown break type",
			mutate: func(t *Template) {
				t.WorkingDays[time.Monday].Breaks = []Break{{StartTime: "12:00", EndTime: "13:00", Type: "nap"}}
			},
			wantErr: true,
		},
		{
			name: "non-working day is not checked",
			mutate: func(t *Template) {
				t.WorkingDays[time.Sunday] = WorkingDay{IsWorking: false, StartTime: "", EndTime: ""}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := DefaultTemplate(uuid.New())
			tt.mutate(&tpl)

			err := tpl.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTemplate)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAnalytics_Default(t *testing.T) {
	a := DefaultTemplate(uuid.New()).Analytics()

	assert.Equal(t, 6, a.WorkingDaysPerWeek)
	assert.Equal(t, 14*5+8, a.SlotsPerWeek)
	assert.Len(t, a.Days, 7)

	monday := a.Days[time.Monday]
	assert.Equal(t, "Monday", monday.Day)
	assert.Equal(t, 420, monday.BookableMinutes)
	assert.Equal(t, 14, monday.SlotsPerDay)

	sunday := a.Days[time.Sunday]
	assert.False(t, sunday.IsWorking)
	assert.Zero(t, sunday.SlotsPerDay)
}
