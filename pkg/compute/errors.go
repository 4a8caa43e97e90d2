package compute

import (
	"errors"
	"fmt"
)

var (
	ErrResultClosed       = errors.New("result is closed")
	ErrResultNotFinalized = errors.New("result is not finalized")
)

// InvalidValueError reports a parameter value outside its domain.
type InvalidValueError struct {
	Param string
	Value int64
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value %d for parameter %s", e.Value, e.Param)
}
