package slip

import (
	"context"
	"time"

	"github.com/mcdev12/betslip/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Sweeper removes selections whose event has already started. It runs
// opportunistically on a timed tick and always immediately before a
// submission attempt.
type Sweeper struct {
	mirror    *Mirror
	lifecycle *Lifecycle
}

func NewSweeper(mirror *Mirror, lifecycle *Lifecycle) *Sweeper {
	return &Sweeper{mirror: mirror, lifecycle: lifecycle}
}

// Sweep partitions out expired selections and returns the count removed so
// the caller can surface an advisory message. When the sweep empties the
// working set the draft is discarded outright, keeping the draft absent
// exactly when the slip is empty; otherwise each expired selection gets a
// best-effort remove against the draft.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.mirror.RemoveExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	for _, sel := range expired {
		log.Info().
			Str("event_id", sel.EventID).
			Time("starts_at", sel.StartsAt).
			Msg("removed expired selection")
	}

	if s.mirror.Len() == 0 {
		s.lifecycle.DiscardDraft(ctx)
	} else {
		for _, sel := range expired {
			s.lifecycle.BestEffortRemove(ctx, sel.EventID)
		}
	}

	metrics.ExpiredSwept.Add(float64(len(expired)))
	return len(expired), nil
}
