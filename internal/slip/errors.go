package slip

import (
	"errors"
	"fmt"

	"github.com/mcdev12/betslip/internal/models"
)

// ErrEmptySlip is returned when submission is attempted with no valid selections
var ErrEmptySlip = errors.New("slip is empty")

// DriftError aborts a submission when authoritative prices moved since the
// selections were added. It is a designed control-flow branch, not a
// failure: the caller must surface the drift list for an explicit
// accept/dismiss decision. Accepting rewrites the local prices via
// App.AcceptDrift; dismissing is simply not resubmitting.
type DriftError struct {
	Drifts []models.PriceDrift
	// ExpiredRemoved carries the advisory count from the expiry sweep that
	// ran before the drift check on this attempt.
	ExpiredRemoved int
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("price drift on %d selection(s)", len(e.Drifts))
}
