package slip_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mcdev12/betslip/internal/models"
	"github.com/mcdev12/betslip/internal/slip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeSel(eventID, outcome string, price float64) models.Selection {
	now := time.Now()
	return models.Selection{
		EventID:   eventID,
		Outcome:   outcome,
		Price:     price,
		StartsAt:  now.Add(time.Hour),
		AddedAt:   now,
		SaveState: models.SaveStateIdle,
	}
}

func TestMirror_AddReplacesSameEvent(t *testing.T) {
	store := mustStore(":memory:")
	defer store.Close()
	mirror := slip.NewMirror(store, nil)

	ctx := context.Background()
	require.NoError(t, mirror.Add(ctx, makeSel("E", "home", 2.10)))

	selections := mirror.Selections()
	require.Len(t, selections, 1)
	assert.Equal(t, "home", selections[0].Outcome)
	assert.InDelta(t, 2.10, selections[0].Price, 0.0001)

	// Re-picking the same event replaces, never duplicates.
	require.NoError(t, mirror.Add(ctx, makeSel("E", "draw", 3.20)))

	selections = mirror.Selections()
	require.Len(t, selections, 1)
	assert.Equal(t, "E", selections[0].EventID)
	assert.Equal(t, "draw", selections[0].Outcome)
	assert.InDelta(t, 3.20, selections[0].Price, 0.0001)
}

func TestMirror_NeverHoldsDuplicateEventIDs(t *testing.T) {
	store := mustStore(":memory:")
	defer store.Close()
	mirror := slip.NewMirror(store, nil)

	ctx := context.Background()
	ops := []struct {
		add     bool
		eventID string
	}{
		{true, "a"}, {true, "b"}, {true, "a"}, {false, "b"},
		{true, "c"}, {true, "a"}, {true, "b"}, {false, "a"},
		{true, "a"},
	}
	for _, op := range ops {
		if op.add {
			require.NoError(t, mirror.Add(ctx, makeSel(op.eventID, "home", 1.5)))
		} else {
			_, _, err := mirror.Remove(ctx, op.eventID)
			require.NoError(t, err)
		}
		seen := make(map[string]bool)
		for _, sel := range mirror.Selections() {
			assert.False(t, seen[sel.EventID], "duplicate selection for %s", sel.EventID)
			seen[sel.EventID] = true
		}
	}
}

func TestMirror_PersistedAndInMemoryIdentical(t *testing.T) {
	store := mustStore(":memory:")
	defer store.Close()
	mirror := slip.NewMirror(store, nil)

	ctx := context.Background()
	require.NoError(t, mirror.Add(ctx, makeSel("E1", "home", 2.10)))
	require.NoError(t, mirror.Add(ctx, makeSel("E2", "away", 1.85)))
	_, _, err := mirror.Remove(ctx, "E1")
	require.NoError(t, err)

	// A fresh mirror over the same store reproduces the working set.
	rehydrated := slip.NewMirror(store, nil)
	require.NoError(t, rehydrated.Load(ctx))

	want := mirror.Selections()
	got := rehydrated.Selections()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].EventID, got[i].EventID)
		assert.Equal(t, want[i].Outcome, got[i].Outcome)
		assert.InDelta(t, want[i].Price, got[i].Price, 0.0001)
	}
}

func TestMirror_AddSignalsPresentation(t *testing.T) {
	store := mustStore(":memory:")
	defer store.Close()

	var presented atomic.Int32
	mirror := slip.NewMirror(store, func() { presented.Add(1) })

	require.NoError(t, mirror.Add(context.Background(), makeSel("E", "home", 2.0)))

	assert.Eventually(t, func() bool {
		return presented.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestMirror_RemoveExpired(t *testing.T) {
	store := mustStore(":memory:")
	defer store.Close()
	mirror := slip.NewMirror(store, nil)

	ctx := context.Background()
	now := time.Now()

	started := makeSel("started", "home", 2.0)
	started.StartsAt = now.Add(-time.Minute)
	upcoming := makeSel("upcoming", "away", 3.0)

	require.NoError(t, mirror.Add(ctx, started))
	require.NoError(t, mirror.Add(ctx, upcoming))

	expired, err := mirror.RemoveExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "started", expired[0].EventID)

	remaining := mirror.Selections()
	require.Len(t, remaining, 1)
	assert.Equal(t, "upcoming", remaining[0].EventID)
}

func TestMirror_ReplaceScoresWholesale(t *testing.T) {
	store := mustStore(":memory:")
	defer store.Close()
	mirror := slip.NewMirror(store, nil)

	mirror.ReplaceScores(map[string]models.LiveScoreUpdate{
		"E1": {EventID: "E1", Score: "1-0", Clock: "12'"},
		"E2": {EventID: "E2", Score: "0-0", Clock: "45'"},
	})
	mirror.ReplaceScores(map[string]models.LiveScoreUpdate{
		"E1": {EventID: "E1", Score: "2-0", Clock: "60'"},
	})

	scores := mirror.Scores()
	require.Len(t, scores, 1)
	assert.Equal(t, "2-0", scores["E1"].Score)
}

func TestMirror_ChangedMarkers(t *testing.T) {
	store := mustStore(":memory:")
	defer store.Close()
	mirror := slip.NewMirror(store, nil)

	assert.False(t, mirror.RecentlyChanged("E"))
	mirror.MarkChanged("E")
	assert.True(t, mirror.RecentlyChanged("E"))
	mirror.ClearChanged("E")
	assert.False(t, mirror.RecentlyChanged("E"))
}

// flakyStore fails persistence on demand so error paths can be exercised.
type flakyStore struct {
	saved   []models.Selection
	saveErr error
}

func (s *flakyStore) SaveSelections(ctx context.Context, selections []models.Selection) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append([]models.Selection(nil), selections...)
	return nil
}

func (s *flakyStore) LoadSelections(ctx context.Context) ([]models.Selection, error) {
	return s.saved, nil
}

func TestMirror_FailedPersistLeavesWorkingSetUntouched(t *testing.T) {
	store := &flakyStore{}
	mirror := slip.NewMirror(store, nil)
	ctx := context.Background()

	require.NoError(t, mirror.Add(ctx, makeSel("E1", "home", 2.10)))

	// A mutation whose persist fails must not change the in-memory set:
	// what the UI shows and what storage holds stay identical.
	store.saveErr = errBoom

	require.Error(t, mirror.Add(ctx, makeSel("E2", "away", 1.80)))
	assert.Equal(t, 1, mirror.Len())
	_, ok := mirror.Get("E2")
	assert.False(t, ok)

	removed, remaining, err := mirror.Remove(ctx, "E1")
	require.Error(t, err)
	assert.False(t, removed)
	assert.Equal(t, 1, remaining)
	_, ok = mirror.Get("E1")
	assert.True(t, ok)

	require.Error(t, mirror.SetSaveState(ctx, "E1", models.SaveStateSaved))
	sel, _ := mirror.Get("E1")
	assert.Equal(t, models.SaveStateIdle, sel.SaveState)

	// Once the store recovers, mutations apply normally.
	store.saveErr = nil
	require.NoError(t, mirror.Add(ctx, makeSel("E2", "away", 1.80)))
	assert.Equal(t, 2, mirror.Len())
	require.Len(t, store.saved, 2)
}
