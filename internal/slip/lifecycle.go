package slip

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/betslip/clients/slipapi"
	"github.com/mcdev12/betslip/internal/models"
	"github.com/rs/zerolog/log"
)

// DraftAPI defines what the lifecycle manager needs from the slip service
type DraftAPI interface {
	CreateDraft(ctx context.Context) (*models.Draft, error)
	PatchDraft(ctx context.Context, draftID uuid.UUID, patch models.DraftPatch) (*models.Draft, error)
	DeleteDraft(ctx context.Context, draftID uuid.UUID) error
	SubmitDraft(ctx context.Context, draftID uuid.UUID) (*models.SubmittedRecord, error)
}

// DraftIDStore defines what the lifecycle manager needs from durable local storage
type DraftIDStore interface {
	SaveDraftID(ctx context.Context, id uuid.UUID) error
	LoadDraftID(ctx context.Context) (uuid.UUID, error)
	ClearDraftID(ctx context.Context) error
}

// Lifecycle owns the identifier of the server-side draft resource. It is
// the only component allowed to create or read the cached identifier
// (EnsureDraft) and the only one allowed to clear it outside of
// successful-submission cleanup (InvalidateDraft).
type Lifecycle struct {
	mu      sync.Mutex
	draftID uuid.UUID

	api   DraftAPI
	store DraftIDStore
}

func NewLifecycle(api DraftAPI, store DraftIDStore) *Lifecycle {
	return &Lifecycle{api: api, store: store}
}

// Load rehydrates the cached draft identifier from durable storage.
func (l *Lifecycle) Load(ctx context.Context) error {
	id, err := l.store.LoadDraftID(ctx)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.draftID = id
	l.mu.Unlock()
	return nil
}

// EnsureDraft returns the cached draft identifier, creating the server-side
// resource lazily if none is cached. Safe under concurrent invocation: the
// mutex guarantees at most one create call per cached identifier.
func (l *Lifecycle) EnsureDraft(ctx context.Context) (uuid.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.draftID != uuid.Nil {
		return l.draftID, nil
	}

	draft, err := l.api.CreateDraft(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create draft: %w", err)
	}

	l.draftID = draft.ID
	if err := l.store.SaveDraftID(ctx, draft.ID); err != nil {
		log.Warn().Err(err).Str("draft_id", draft.ID.String()).Msg("failed to persist draft id")
	}

	log.Debug().Str("draft_id", draft.ID.String()).Msg("created draft")
	return l.draftID, nil
}

// InvalidateDraft clears the cached identifier after a stale-resource
// failure, forcing the next EnsureDraft to recreate.
func (l *Lifecycle) InvalidateDraft() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.draftID == uuid.Nil {
		return
	}

	log.Debug().Str("draft_id", l.draftID.String()).Msg("invalidating stale draft")
	l.draftID = uuid.Nil
	if err := l.store.ClearDraftID(context.Background()); err != nil {
		log.Warn().Err(err).Msg("failed to clear persisted draft id")
	}
}

// DraftID returns the cached identifier, or uuid.Nil if absent.
func (l *Lifecycle) DraftID() uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.draftID
}

// SyncPatch applies one per-item write against the draft, creating it first
// if needed. On a stale-resource failure it invalidates the cached
// identifier, recreates the draft and retries the same write exactly once.
// Any other failure, or a failed retry, is returned to the caller, which is
// expected to fail soft (drop the selection) rather than retry forever.
func (l *Lifecycle) SyncPatch(ctx context.Context, patch models.DraftPatch) error {
	draftID, err := l.EnsureDraft(ctx)
	if err != nil {
		return err
	}

	_, err = l.api.PatchDraft(ctx, draftID, patch)
	if err == nil {
		return nil
	}
	if !errors.Is(err, slipapi.ErrStaleDraft) {
		return err
	}

	log.Debug().
		Str("draft_id", draftID.String()).
		Str("event_id", patch.EventID).
		Msg("draft stale, recreating and retrying write once")

	l.InvalidateDraft()
	draftID, err = l.EnsureDraft(ctx)
	if err != nil {
		return err
	}

	if _, err := l.api.PatchDraft(ctx, draftID, patch); err != nil {
		return err
	}
	return nil
}

// BestEffortRemove issues a remove write for an event against the current
// draft, if one exists. It never creates or recreates a draft and its
// failures are swallowed; the server reconciles leftover draft entries on
// its own.
func (l *Lifecycle) BestEffortRemove(ctx context.Context, eventID string) {
	l.mu.Lock()
	draftID := l.draftID
	l.mu.Unlock()

	if draftID == uuid.Nil {
		return
	}

	patch := models.DraftPatch{Action: models.PatchActionRemove, EventID: eventID}
	if _, err := l.api.PatchDraft(ctx, draftID, patch); err != nil {
		log.Debug().Err(err).Str("event_id", eventID).Msg("best-effort draft remove failed")
	}
}

// DiscardDraft issues a best-effort delete of the draft resource and clears
// the cached identifier regardless of outcome. Called when the working set
// empties.
func (l *Lifecycle) DiscardDraft(ctx context.Context) {
	l.mu.Lock()
	draftID := l.draftID
	l.draftID = uuid.Nil
	l.mu.Unlock()

	if err := l.store.ClearDraftID(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to clear persisted draft id")
	}
	if draftID == uuid.Nil {
		return
	}

	if err := l.api.DeleteDraft(ctx, draftID); err != nil {
		log.Debug().Err(err).Str("draft_id", draftID.String()).Msg("best-effort draft delete failed")
	}
}

// Submit requests finalization of the draft. On success the cached
// identifier is cleared; the caller clears the mirror.
func (l *Lifecycle) Submit(ctx context.Context) (*models.SubmittedRecord, error) {
	l.mu.Lock()
	draftID := l.draftID
	l.mu.Unlock()

	if draftID == uuid.Nil {
		return nil, fmt.Errorf("no draft to submit")
	}

	record, err := l.api.SubmitDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.draftID = uuid.Nil
	l.mu.Unlock()
	if err := l.store.ClearDraftID(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to clear persisted draft id after submit")
	}

	return record, nil
}
