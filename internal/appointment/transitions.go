package appointment

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow, StatusRescheduled},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether an appointment may move from one status to another.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func IsTerminal(s AppointmentStatus) bool {
	return len(transitions[s]) == 0
}

// doctorTargets are the statuses a doctor may set directly. Confirmation
// only ever comes from a verified payment.
var doctorTargets = map[AppointmentStatus]bool{
	StatusInProgress:  true,
	StatusCompleted:   true,
	StatusNoShow:      true,
	StatusCancelled:   true,
	StatusRescheduled: true,
}

// keepsSlot reports whether an appointment in status s still occupies its slot.
func keepsSlot(s AppointmentStatus) bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusInProgress
}

func ValidStatus(s AppointmentStatus) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted,
		StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}
