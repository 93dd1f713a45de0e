package slip

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mcdev12/betslip/internal/models"
	"github.com/rs/zerolog/log"
)

// SelectionStore defines what the mirror needs from durable local storage
type SelectionStore interface {
	SaveSelections(ctx context.Context, selections []models.Selection) error
	LoadSelections(ctx context.Context) ([]models.Selection, error)
}

// PresentFunc signals the UI to present the slip. Invoked without blocking
// the mutating call.
type PresentFunc func()

// Mirror is the local optimistic copy of the working slip and the only
// state the UI reads. Every mutating call persists the full working set
// synchronously and commits the in-memory change only if the persist
// succeeds, so the two representations are identical when the call
// returns, on the error path included. Realtime data (scores, canonical
// event rows, bet records) is merged by wholesale replacement of keyed
// entries, never by partial field merge.
type Mirror struct {
	mu         sync.Mutex
	selections []models.Selection
	events     map[string]models.Event
	scores     map[string]models.LiveScoreUpdate
	betRecords map[string]models.BetRecord
	changed    map[string]bool

	store   SelectionStore
	present PresentFunc
}

// NewMirror creates a mirror backed by the given store. present may be nil.
func NewMirror(store SelectionStore, present PresentFunc) *Mirror {
	return &Mirror{
		events:     make(map[string]models.Event),
		scores:     make(map[string]models.LiveScoreUpdate),
		betRecords: make(map[string]models.BetRecord),
		changed:    make(map[string]bool),
		store:      store,
		present:    present,
	}
}

// Load rehydrates the working set from durable storage. Called once at
// process start.
func (m *Mirror) Load(ctx context.Context) error {
	selections, err := m.store.LoadSelections(ctx)
	if err != nil {
		return fmt.Errorf("failed to load selections: %w", err)
	}

	m.mu.Lock()
	m.selections = selections
	m.mu.Unlock()

	log.Debug().Int("selections", len(selections)).Msg("mirror rehydrated from storage")
	return nil
}

// Add inserts a selection, evicting any existing selection for the same
// event id first. At most one selection per event id ever exists.
func (m *Mirror) Add(ctx context.Context, sel models.Selection) error {
	m.mu.Lock()
	next := make([]models.Selection, 0, len(m.selections)+1)
	for _, existing := range m.selections {
		if existing.EventID != sel.EventID {
			next = append(next, existing)
		}
	}
	next = append(next, sel)
	err := m.commitLocked(ctx, next)
	m.mu.Unlock()

	if err != nil {
		return err
	}

	if m.present != nil {
		go m.present()
	}
	return nil
}

// Remove filters out the selection for the given event id. Returns whether
// anything was removed and how many selections remain.
func (m *Mirror) Remove(ctx context.Context, eventID string) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	filtered := m.selections[:0:0]
	removed := false
	for _, existing := range m.selections {
		if existing.EventID == eventID {
			removed = true
			continue
		}
		filtered = append(filtered, existing)
	}
	if !removed {
		return false, len(m.selections), nil
	}

	if err := m.commitLocked(ctx, filtered); err != nil {
		return false, len(m.selections), err
	}
	return true, len(filtered), nil
}

// Clear empties the working set.
func (m *Mirror) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.commitLocked(ctx, nil)
}

// Selections returns a copy of the working set in insertion order.
func (m *Mirror) Selections() []models.Selection {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Selection, len(m.selections))
	copy(out, m.selections)
	return out
}

// Get returns the selection for an event id, if present.
func (m *Mirror) Get(eventID string) (models.Selection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sel := range m.selections {
		if sel.EventID == eventID {
			return sel, true
		}
	}
	return models.Selection{}, false
}

// Len returns the number of selections in the working set.
func (m *Mirror) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.selections)
}

// SetSaveState updates the sync-feedback state of one selection.
func (m *Mirror) SetSaveState(ctx context.Context, eventID string, state models.SaveState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.selections {
		if m.selections[i].EventID == eventID {
			next := make([]models.Selection, len(m.selections))
			copy(next, m.selections)
			next[i].SaveState = state
			return m.commitLocked(ctx, next)
		}
	}
	return nil
}

// RewritePrice applies an accepted drift: the selection's price becomes the
// new authoritative value and its added-timestamp resets, clearing any
// staleness warning.
func (m *Mirror) RewritePrice(ctx context.Context, eventID string, price float64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.selections {
		if m.selections[i].EventID == eventID {
			next := make([]models.Selection, len(m.selections))
			copy(next, m.selections)
			next[i].Price = price
			next[i].AddedAt = now
			return m.commitLocked(ctx, next)
		}
	}
	return nil
}

// RemoveExpired partitions out selections whose event has already started
// and returns them.
func (m *Mirror) RemoveExpired(ctx context.Context, now time.Time) ([]models.Selection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.selections[:0:0]
	var expired []models.Selection
	for _, sel := range m.selections {
		if sel.Valid(now) {
			kept = append(kept, sel)
		} else {
			expired = append(expired, sel)
		}
	}
	if len(expired) == 0 {
		return nil, nil
	}

	if err := m.commitLocked(ctx, kept); err != nil {
		return nil, err
	}
	return expired, nil
}

// commitLocked persists a candidate working set and adopts it in memory
// only if the write succeeds. Callers hold m.mu.
func (m *Mirror) commitLocked(ctx context.Context, next []models.Selection) error {
	if err := m.store.SaveSelections(ctx, next); err != nil {
		return fmt.Errorf("failed to persist working set: %w", err)
	}
	m.selections = next
	return nil
}

// ReplaceScores swaps in a new keyed score map wholesale. No partial merge.
func (m *Mirror) ReplaceScores(updates map[string]models.LiveScoreUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = updates
}

// Scores returns a copy of the current live score map.
func (m *Mirror) Scores() map[string]models.LiveScoreUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]models.LiveScoreUpdate, len(m.scores))
	for k, v := range m.scores {
		out[k] = v
	}
	return out
}

// ApplyEvent replaces the cached canonical row for one event.
func (m *Mirror) ApplyEvent(event models.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.ID] = event
}

// Event returns the cached canonical row for an event, if present.
func (m *Mirror) Event(eventID string) (models.Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	return ev, ok
}

// ApplyBetRecord replaces the cached placed-bet record for its event.
func (m *Mirror) ApplyBetRecord(record models.BetRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.betRecords[record.EventID] = record
}

// BetRecord returns the cached placed-bet record for an event, if present.
func (m *Mirror) BetRecord(eventID string) (models.BetRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.betRecords[eventID]
	return rec, ok
}

// SelectionEventIDs returns the event ids of the current working set.
func (m *Mirror) SelectionEventIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.selections))
	for _, sel := range m.selections {
		ids = append(ids, sel.EventID)
	}
	return ids
}

// MarkChanged sets the transient recently-changed marker for an event.
// UI highlighting only; carries no synchronization semantics.
func (m *Mirror) MarkChanged(eventID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changed[eventID] = true
}

// ClearChanged removes the recently-changed marker for an event.
func (m *Mirror) ClearChanged(eventID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.changed, eventID)
}

// RecentlyChanged reports whether an event carries the changed marker.
func (m *Mirror) RecentlyChanged(eventID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changed[eventID]
}
