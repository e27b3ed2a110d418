package availability

import "errors"

var (
	ErrInvalidInterval   = errors.New("invalid interval")
	ErrInvalidWorkingDay = errors.New("invalid working day")
)
