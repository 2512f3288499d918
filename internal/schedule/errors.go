package schedule

import "errors"

var (
	ErrInvalidDate     = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidTime     = errors.New("invalid time, expected HH:MM")
	ErrInvalidTemplate = errors.New("invalid availability template")
	ErrTemplateMissing = errors.New("availability template not found")
	ErrForbidden       = errors.New("only the owning doctor may change this template")
)
