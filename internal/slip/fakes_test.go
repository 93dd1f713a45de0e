package slip_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/betslip/clients/slipapi"
	"github.com/mcdev12/betslip/internal/models"
	"github.com/mcdev12/betslip/internal/storage"
)

// fakeAPI implements the DraftAPI and EventsAPI interfaces in memory.
type fakeAPI struct {
	mu sync.Mutex

	creates   int
	createErr error
	draftID   uuid.UUID

	patches      []models.DraftPatch
	patchErr     error
	stalePatches int // fail this many upcoming patches with ErrStaleDraft

	deletes int

	events    map[string]models.Event
	eventsErr error

	submitErr error
	submits   int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{events: make(map[string]models.Event)}
}

func (f *fakeAPI) CreateDraft(ctx context.Context) (*models.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return nil, f.createErr
	}
	f.creates++
	f.draftID = uuid.New()
	return &models.Draft{ID: f.draftID, Status: models.DraftStatusOpen}, nil
}

func (f *fakeAPI) PatchDraft(ctx context.Context, draftID uuid.UUID, patch models.DraftPatch) (*models.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stalePatches > 0 {
		f.stalePatches--
		return nil, slipapi.ErrStaleDraft
	}
	if f.patchErr != nil {
		return nil, f.patchErr
	}
	f.patches = append(f.patches, patch)
	return &models.Draft{ID: draftID, Status: models.DraftStatusOpen}, nil
}

func (f *fakeAPI) DeleteDraft(ctx context.Context, draftID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	return nil
}

func (f *fakeAPI) SubmitDraft(ctx context.Context, draftID uuid.UUID) (*models.SubmittedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submits++

	record := &models.SubmittedRecord{ID: uuid.New(), PlacedAt: time.Now()}
	// Lock whatever prices the draft holds: last patch wins per event.
	locked := make(map[string]models.LockedSelection)
	for _, patch := range f.patches {
		switch patch.Action {
		case models.PatchActionRemove:
			delete(locked, patch.EventID)
		default:
			locked[patch.EventID] = models.LockedSelection{
				EventID:     patch.EventID,
				Outcome:     patch.Outcome,
				LockedPrice: patch.Price,
			}
		}
	}
	for _, sel := range locked {
		record.Selections = append(record.Selections, sel)
	}
	return record, nil
}

func (f *fakeAPI) GetEvents(ctx context.Context, eventIDs []string) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	var out []models.Event
	for _, id := range eventIDs {
		if ev, ok := f.events[id]; ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeAPI) setEvent(ev models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[ev.ID] = ev
}

func (f *fakeAPI) patchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.patches)
}

func (f *fakeAPI) lastPatch() models.DraftPatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.patches[len(f.patches)-1]
}

func (f *fakeAPI) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

var errBoom = errors.New("boom")

func mustStore(path string) *storage.SQLiteStore {
	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		panic(err)
	}
	return store
}

func makeEvent(id string, startsIn time.Duration, prices map[string]float64) models.Event {
	return models.Event{
		ID:       id,
		Status:   models.EventStatusScheduled,
		StartsAt: time.Now().Add(startsIn),
		Prices:   prices,
	}
}
