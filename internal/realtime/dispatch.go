package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/betslip/internal/models"
	"github.com/rs/zerolog/log"
)

// frame is the envelope of every push-channel message.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Dispatch routes one inbound push frame. Exported so hosts embedding the
// consumer over a different transport can feed frames directly.
func (c *Consumer) Dispatch(ctx context.Context, raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		log.Warn().Err(err).Msg("failed to unmarshal push frame")
		return
	}

	switch f.Type {
	case MessageTypeHeartbeat:
		// No semantic payload.

	case MessageTypeLiveScores:
		var updates []models.LiveScoreUpdate
		if err := json.Unmarshal(f.Data, &updates); err != nil {
			log.Warn().Err(err).Msg("failed to unmarshal live scores")
			return
		}
		keyed := make(map[string]models.LiveScoreUpdate, len(updates))
		for _, update := range updates {
			keyed[update.EventID] = update
		}
		c.sink.ReplaceScores(keyed)
		log.Debug().Int("events", len(keyed)).Msg("live score map replaced")

	case MessageTypeResolved:
		var payload struct {
			EventID string `json:"event_id"`
		}
		if err := json.Unmarshal(f.Data, &payload); err != nil {
			log.Warn().Err(err).Msg("failed to unmarshal settlement")
			return
		}
		go c.refetchSettlement(ctx, payload.EventID)

	case MessageTypeOddsUpdated:
		var payload struct {
			EventIDs []string `json:"event_ids"`
		}
		if err := json.Unmarshal(f.Data, &payload); err != nil {
			log.Warn().Err(err).Msg("failed to unmarshal odds update")
			return
		}
		ids := payload.EventIDs
		if len(ids) == 0 {
			// No specific events named: full silent refresh.
			ids = c.sink.SelectionEventIDs()
		}
		for _, id := range ids {
			c.markChanged(ctx, id)
		}
		go c.refetchEvents(ctx, ids)

	default:
		log.Debug().Str("type", f.Type).Msg("ignoring unknown push frame")
	}
}

// refetchEvents pulls canonical data for the given events in the
// background and merges each row into the mirror by replacement.
func (c *Consumer) refetchEvents(ctx context.Context, eventIDs []string) {
	if len(eventIDs) == 0 {
		return
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return
	}

	events, err := c.api.GetEvents(ctx, eventIDs)
	if err != nil {
		log.Warn().Err(err).Int("events", len(eventIDs)).Msg("background event refetch failed")
		return
	}
	for _, event := range events {
		c.sink.ApplyEvent(event)
	}
	log.Debug().Int("events", len(events)).Msg("background event refetch applied")
}

// refetchSettlement refreshes the settled event's canonical data and any
// locally cached placed-bet record for it. Both are background operations.
func (c *Consumer) refetchSettlement(ctx context.Context, eventID string) {
	if err := c.limiter.Wait(ctx); err != nil {
		return
	}

	events, err := c.api.GetEvents(ctx, []string{eventID})
	if err != nil {
		log.Warn().Err(err).Str("event_id", eventID).Msg("settlement event refetch failed")
	} else {
		for _, event := range events {
			c.sink.ApplyEvent(event)
		}
	}

	record, err := c.api.GetBetRecord(ctx, eventID)
	if err != nil {
		log.Debug().Err(err).Str("event_id", eventID).Msg("bet record refetch failed")
		return
	}
	c.sink.ApplyBetRecord(*record)
	log.Debug().Str("event_id", eventID).Msg("settlement applied to mirror")
}

// markChanged sets the transient "recently changed" marker for an event
// and arms a timer to clear it after the display window. Re-marking within
// the window restarts the timer.
func (c *Consumer) markChanged(ctx context.Context, eventID string) {
	c.sink.MarkChanged(eventID)

	timer := c.clock.NewTimer(c.config.ChangedWindow)
	c.mu.Lock()
	if existing, exists := c.markerTimers[eventID]; exists {
		stopAndDrainTimer(existing)
	}
	c.markerTimers[eventID] = timer
	c.mu.Unlock()

	go func(id string, t clockwork.Timer) {
		select {
		case <-t.Chan():
			c.sink.ClearChanged(id)
			c.mu.Lock()
			delete(c.markerTimers, id)
			c.mu.Unlock()
		case <-ctx.Done():
			stopAndDrainTimer(t)
		}
	}(eventID, timer)
}

// clearMarkerTimers stops every armed marker timer and clears the markers.
func (c *Consumer) clearMarkerTimers() {
	c.mu.Lock()
	timers := c.markerTimers
	c.markerTimers = make(map[string]clockwork.Timer)
	c.mu.Unlock()

	for eventID, timer := range timers {
		stopAndDrainTimer(timer)
		c.sink.ClearChanged(eventID)
	}
}

// refreshLoop is the redundancy fallback: a silent full refresh on a fixed
// interval regardless of channel health, with a once-per-second countdown
// surfaced to the host for display.
func (c *Consumer) refreshLoop(ctx context.Context) {
	ticker := c.clock.NewTicker(c.config.RefreshInterval)
	defer ticker.Stop()
	countdown := c.clock.NewTicker(time.Second)
	defer countdown.Stop()

	next := c.clock.Now().Add(c.config.RefreshInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			next = c.clock.Now().Add(c.config.RefreshInterval)
			go c.refetchEvents(ctx, c.sink.SelectionEventIDs())
		case <-countdown.Chan():
			if c.OnCountdown != nil {
				remaining := next.Sub(c.clock.Now())
				if remaining < 0 {
					remaining = 0
				}
				c.OnCountdown(remaining)
			}
		}
	}
}

// stopAndDrainTimer safely stops a timer and drains its channel, following
// the pattern from the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
