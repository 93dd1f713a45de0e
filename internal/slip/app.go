package slip

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/betslip/internal/metrics"
	"github.com/mcdev12/betslip/internal/models"
	"github.com/mcdev12/betslip/internal/storage"
	"github.com/rs/zerolog/log"
)

// OutboxQueue defines what the app needs from the durable write outbox
type OutboxQueue interface {
	EnqueueWrite(ctx context.Context, write storage.PendingWrite) error
}

// Config holds engine tuning knobs.
type Config struct {
	// SettleWindow is how long a selection's edits must stay quiet before
	// one outbound write fires.
	SettleWindow time.Duration
	// SweepInterval is how often the expiry sweeper runs opportunistically.
	SweepInterval time.Duration
	// WorkBuffer sizes the settled-write channel.
	WorkBuffer int
}

func DefaultConfig() Config {
	return Config{
		SettleWindow:  300 * time.Millisecond,
		SweepInterval: time.Minute,
		WorkBuffer:    64,
	}
}

// SubmitResult is the outcome of a successful submission.
type SubmitResult struct {
	Record *models.SubmittedRecord
	// ExpiredRemoved is the advisory count of selections swept before the
	// drift check ran.
	ExpiredRemoved int
}

// App composes the slip engine: local mirror, draft lifecycle, per-item
// debounced sync, expiry sweeping and pre-submission drift detection.
// User-facing mutations apply to the mirror synchronously; network writes
// trail behind through the settle scheduler and are processed by Run.
type App struct {
	mirror    *Mirror
	lifecycle *Lifecycle
	scheduler *Scheduler
	sweeper   *Sweeper
	detector  *Detector
	outbox    OutboxQueue
	clock     clockwork.Clock
	config    Config
}

func NewApp(mirror *Mirror, lifecycle *Lifecycle, detector *Detector, outbox OutboxQueue, clock clockwork.Clock, config Config) *App {
	return &App{
		mirror:    mirror,
		lifecycle: lifecycle,
		scheduler: NewScheduler(clock, config.SettleWindow, config.WorkBuffer),
		sweeper:   NewSweeper(mirror, lifecycle),
		detector:  detector,
		outbox:    outbox,
		clock:     clock,
		config:    config,
	}
}

// Mirror exposes the local mirror, the only state the UI reads.
func (a *App) Mirror() *Mirror {
	return a.mirror
}

// Load rehydrates mirror and draft identifier from durable storage.
func (a *App) Load(ctx context.Context) error {
	if err := a.mirror.Load(ctx); err != nil {
		return err
	}
	return a.lifecycle.Load(ctx)
}

// AddSelection picks an outcome for an event. Any existing selection for
// the same event is replaced. The mirror mutation is synchronous; the
// outbound write is debounced per event id.
func (a *App) AddSelection(ctx context.Context, event models.Event, outcome string) error {
	price, ok := event.Prices[outcome]
	if !ok {
		return fmt.Errorf("event %s has no outcome %q", event.ID, outcome)
	}

	sel := models.Selection{
		EventID:   event.ID,
		Outcome:   outcome,
		Price:     price,
		StartsAt:  event.StartsAt,
		AddedAt:   a.clock.Now(),
		SaveState: models.SaveStateIdle,
	}
	if err := a.mirror.Add(ctx, sel); err != nil {
		return err
	}

	a.scheduler.Schedule(event.ID)
	return nil
}

// RemoveSelection drops a selection from the slip. Removing the last
// selection discards the draft resource best-effort.
func (a *App) RemoveSelection(ctx context.Context, eventID string) error {
	a.scheduler.Cancel(eventID)

	removed, remaining, err := a.mirror.Remove(ctx, eventID)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	if remaining == 0 {
		a.lifecycle.DiscardDraft(ctx)
		return nil
	}

	a.lifecycle.BestEffortRemove(ctx, eventID)
	return nil
}

// ClearSlip empties the working set and discards the draft.
func (a *App) ClearSlip(ctx context.Context) error {
	for _, id := range a.scheduler.Flush() {
		log.Debug().Str("event_id", id).Msg("dropped pending write on clear")
	}
	if err := a.mirror.Clear(ctx); err != nil {
		return err
	}
	a.lifecycle.DiscardDraft(ctx)
	return nil
}

// Run processes settled writes and the opportunistic expiry sweep until the
// context is cancelled.
func (a *App) Run(ctx context.Context) {
	ticker := a.clock.NewTicker(a.config.SweepInterval)
	defer ticker.Stop()

	log.Info().
		Dur("settle_window", a.config.SettleWindow).
		Dur("sweep_interval", a.config.SweepInterval).
		Msg("slip engine started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("slip engine shutting down")
			return
		case eventID := <-a.scheduler.Work():
			a.syncSelection(ctx, eventID)
		case <-ticker.Chan():
			if _, err := a.sweeper.Sweep(ctx, a.clock.Now()); err != nil {
				log.Error().Err(err).Msg("opportunistic sweep failed")
			}
		}
	}
}

// SyncNow forces the settled write for an event id to run immediately.
// Used by tests and by hosts that need a synchronous flush of one item.
func (a *App) SyncNow(ctx context.Context, eventID string) {
	a.scheduler.Cancel(eventID)
	a.syncSelection(ctx, eventID)
}

// syncSelection performs the debounced per-item write carrying whatever
// values the mirror holds at this moment. Failures beyond the single
// stale-resource retry drop the selection: a consistent, submittable slip
// wins over preserving an unsyncable edit.
func (a *App) syncSelection(ctx context.Context, eventID string) {
	sel, ok := a.mirror.Get(eventID)
	if !ok {
		return
	}
	if sel.Outcome == "" || sel.Price == 0 {
		log.Debug().Str("event_id", eventID).Msg("write not yet complete, skipping sync")
		return
	}

	if err := a.mirror.SetSaveState(ctx, eventID, models.SaveStateSyncing); err != nil {
		log.Warn().Err(err).Str("event_id", eventID).Msg("failed to persist save state")
	}

	action := models.PatchActionAdd
	if sel.SaveState == models.SaveStateSaved {
		action = models.PatchActionUpdate
	}
	patch := models.DraftPatch{
		Action:  action,
		EventID: sel.EventID,
		Outcome: sel.Outcome,
		Price:   sel.Price,
	}

	if err := a.lifecycle.SyncPatch(ctx, patch); err != nil {
		metrics.DraftWrites.WithLabelValues("error").Inc()
		metrics.SelectionsDropped.Inc()
		log.Warn().
			Err(err).
			Str("event_id", eventID).
			Msg("unrecoverable sync failure, dropping selection")

		if _, remaining, rmErr := a.mirror.Remove(ctx, eventID); rmErr != nil {
			log.Error().Err(rmErr).Str("event_id", eventID).Msg("failed to drop selection")
		} else if remaining == 0 {
			a.lifecycle.DiscardDraft(ctx)
		}
		return
	}

	metrics.DraftWrites.WithLabelValues("ok").Inc()
	if err := a.mirror.SetSaveState(ctx, eventID, models.SaveStateSaved); err != nil {
		log.Warn().Err(err).Str("event_id", eventID).Msg("failed to persist save state")
	}
}

// Submit runs the submission pass: expiry sweep, drift check, sync of every
// selection to the draft, then finalization. A non-empty drift list aborts
// with *DriftError and zero network submissions; the caller surfaces it for
// an explicit accept/dismiss decision. Nothing is retried automatically.
func (a *App) Submit(ctx context.Context) (*SubmitResult, error) {
	swept, err := a.sweeper.Sweep(ctx, a.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("expiry sweep failed: %w", err)
	}

	selections := a.mirror.Selections()
	if len(selections) == 0 {
		return nil, ErrEmptySlip
	}

	drifts, err := a.detector.Check(ctx, selections)
	if err != nil {
		return nil, fmt.Errorf("drift check failed: %w", err)
	}
	if len(drifts) > 0 {
		metrics.DriftAborts.Inc()
		return nil, &DriftError{Drifts: drifts, ExpiredRemoved: swept}
	}

	// Pending settle timers are superseded: every selection is synced here
	// with its latest values.
	a.scheduler.Flush()
	for _, sel := range selections {
		action := models.PatchActionAdd
		if sel.SaveState == models.SaveStateSaved {
			action = models.PatchActionUpdate
		}
		patch := models.DraftPatch{
			Action:  action,
			EventID: sel.EventID,
			Outcome: sel.Outcome,
			Price:   sel.Price,
		}
		if err := a.lifecycle.SyncPatch(ctx, patch); err != nil {
			return nil, fmt.Errorf("failed to sync selection %s: %w", sel.EventID, err)
		}
	}

	record, err := a.lifecycle.Submit(ctx)
	if err != nil {
		return nil, err
	}

	if err := a.mirror.Clear(ctx); err != nil {
		log.Error().Err(err).Msg("failed to clear mirror after submission")
	}

	log.Info().
		Str("record_id", record.ID.String()).
		Int("selections", len(record.Selections)).
		Int("expired_removed", swept).
		Msg("slip submitted")

	return &SubmitResult{Record: record, ExpiredRemoved: swept}, nil
}

// AcceptDrift rewrites every drifted selection's price to the authoritative
// value and resets its added-timestamp. Submission is not retried
// automatically; the caller decides when to attempt again.
func (a *App) AcceptDrift(ctx context.Context, drifts []models.PriceDrift) error {
	for _, drift := range drifts {
		if err := a.mirror.RewritePrice(ctx, drift.EventID, drift.NewPrice, a.clock.Now()); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes every pending settle timer into the durable outbox so no
// settled-but-unsent edit is lost with the process. The outbox worker
// delivers them fire-and-forget.
func (a *App) Close(ctx context.Context) error {
	pending := a.scheduler.Flush()
	for _, eventID := range pending {
		sel, ok := a.mirror.Get(eventID)
		if !ok {
			continue
		}
		write := storage.PendingWrite{
			ID:         uuid.New(),
			EventID:    sel.EventID,
			Action:     models.PatchActionAdd,
			Outcome:    sel.Outcome,
			Price:      sel.Price,
			EnqueuedAt: a.clock.Now(),
		}
		if err := a.outbox.EnqueueWrite(ctx, write); err != nil {
			return fmt.Errorf("failed to enqueue pending write for %s: %w", eventID, err)
		}
		log.Debug().Str("event_id", eventID).Msg("pending write flushed to outbox")
	}

	if len(pending) > 0 {
		log.Info().Int("writes", len(pending)).Msg("flushed pending writes to durable outbox")
	}
	return nil
}
