package scans

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a scan does not exist or does not
// belong to the requesting owner.
var ErrNotFound = errors.New("scan not found")

// ErrNotCompleted is returned when a report is requested for a scan
// that has not finished successfully.
var ErrNotCompleted = errors.New("scan is not completed")

// InvalidTransitionError reports an illegal state-machine move, such
// as cancelling a scan that already reached a terminal state.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition scan from %s to %s", e.From, e.To)
}
