package slip

import (
	"context"

	"github.com/mcdev12/betslip/internal/models"
	"github.com/rs/zerolog/log"
)

// EventsAPI defines what the conflict detector needs from the slip service
type EventsAPI interface {
	GetEvents(ctx context.Context, eventIDs []string) ([]models.Event, error)
}

// Detector re-fetches authoritative prices immediately before submission
// and reports every selection whose displayed price has drifted.
type Detector struct {
	events EventsAPI
}

func NewDetector(events EventsAPI) *Detector {
	return &Detector{events: events}
}

// Check fetches current event data for every selection and compares the
// authoritative price of the chosen outcome to the stored display price.
// A non-empty result means submission must abort pending an explicit
// accept/dismiss decision.
func (d *Detector) Check(ctx context.Context, selections []models.Selection) ([]models.PriceDrift, error) {
	if len(selections) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(selections))
	for _, sel := range selections {
		ids = append(ids, sel.EventID)
	}

	events, err := d.events.GetEvents(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Event, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}

	var drifts []models.PriceDrift
	for _, sel := range selections {
		ev, ok := byID[sel.EventID]
		if !ok {
			log.Warn().Str("event_id", sel.EventID).Msg("event missing from batch query, skipping drift check")
			continue
		}
		current, ok := ev.Prices[sel.Outcome]
		if !ok {
			log.Warn().
				Str("event_id", sel.EventID).
				Str("outcome", sel.Outcome).
				Msg("outcome missing from current prices, skipping drift check")
			continue
		}
		if current != sel.Price {
			drifts = append(drifts, models.PriceDrift{
				EventID:  sel.EventID,
				OldPrice: sel.Price,
				NewPrice: current,
			})
		}
	}

	return drifts, nil
}
