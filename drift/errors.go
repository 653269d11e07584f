package drift

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSurvey indicates a stored survey document could not be read.
	ErrInvalidSurvey = errors.New("invalid survey document")

	// ErrCriticalHalt matches any *CriticalHalt.
	ErrCriticalHalt = errors.New("critical drift")
)

// CriticalHalt is the pause signal raised when drift is Critical. The
// scheduler must not start another phase until an incremental re-plan
// has been applied.
type CriticalHalt struct {
	Report *Report
}

func (h *CriticalHalt) Error() string {
	return fmt.Sprintf("critical drift (score %d): re-plan required before the next phase", h.Report.Score)
}

func (h *CriticalHalt) Unwrap() error { return ErrCriticalHalt }
