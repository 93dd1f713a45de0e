package slip_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/betslip/internal/models"
	"github.com/mcdev12/betslip/internal/slip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycle_EnsureDraftIsIdempotent(t *testing.T) {
	store := mustStore(":memory:")
	defer store.Close()
	api := newFakeAPI()
	lifecycle := slip.NewLifecycle(api, store)

	ctx := context.Background()
	first, err := lifecycle.EnsureDraft(ctx)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, first)

	second, err := lifecycle.EnsureDraft(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, api.createCount())
}

func TestLifecycle_EnsureDraftAfterInvalidateCreatesFresh(t *testing.T) {
	store := mustStore(":memory:")
	defer store.Close()
	api := newFakeAPI()
	lifecycle := slip.NewLifecycle(api, store)

	ctx := context.Background()
	first, err := lifecycle.EnsureDraft(ctx)
	require.NoError(t, err)

	lifecycle.InvalidateDraft()
	assert.Equal(t, uuid.Nil, lifecycle.DraftID())

	second, err := lifecycle.EnsureDraft(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, api.createCount())
}

func TestLifecycle_DraftIDSurvivesRestart(t *testing.T) {
	store := mustStore(":memory:")
	defer store.Close()
	api := newFakeAPI()
	lifecycle := slip.NewLifecycle(api, store)

	ctx := context.Background()
	id, err := lifecycle.EnsureDraft(ctx)
	require.NoError(t, err)

	rehydrated := slip.NewLifecycle(api, store)
	require.NoError(t, rehydrated.Load(ctx))
	assert.Equal(t, id, rehydrated.DraftID())
}

func TestLifecycle_SyncPatchRetriesStaleDraftOnce(t *testing.T) {
	store := mustStore(":memory:")
	defer store.Close()
	api := newFakeAPI()
	lifecycle := slip.NewLifecycle(api, store)

	ctx := context.Background()
	_, err := lifecycle.EnsureDraft(ctx)
	require.NoError(t, err)

	api.stalePatches = 1
	patch := models.DraftPatch{Action: models.PatchActionAdd, EventID: "E", Outcome: "home", Price: 2.10}
	require.NoError(t, lifecycle.SyncPatch(ctx, patch))

	// Stale failure invalidated and recreated the draft, then the retry
	// landed.
	assert.Equal(t, 2, api.createCount())
	assert.Equal(t, 1, api.patchCount())
	assert.Equal(t, "E", api.lastPatch().EventID)
}

func TestLifecycle_SyncPatchGivesUpAfterSecondStaleFailure(t *testing.T) {
	store := mustStore(":memory:")
	defer store.Close()
	api := newFakeAPI()
	lifecycle := slip.NewLifecycle(api, store)

	ctx := context.Background()
	api.stalePatches = 2

	patch := models.DraftPatch{Action: models.PatchActionAdd, EventID: "E", Outcome: "home", Price: 2.10}
	err := lifecycle.SyncPatch(ctx, patch)
	require.Error(t, err)
	assert.Equal(t, 0, api.patchCount())
}

func TestLifecycle_SyncPatchSurfacesNonStaleFailures(t *testing.T) {
	store := mustStore(":memory:")
	defer store.Close()
	api := newFakeAPI()
	lifecycle := slip.NewLifecycle(api, store)

	ctx := context.Background()
	api.patchErr = errBoom

	patch := models.DraftPatch{Action: models.PatchActionAdd, EventID: "E", Outcome: "home", Price: 2.10}
	err := lifecycle.SyncPatch(ctx, patch)
	require.ErrorIs(t, err, errBoom)

	// No invalidate/recreate cycle for non-stale failures.
	assert.Equal(t, 1, api.createCount())
}

func TestLifecycle_DiscardDraftClearsAndDeletes(t *testing.T) {
	store := mustStore(":memory:")
	defer store.Close()
	api := newFakeAPI()
	lifecycle := slip.NewLifecycle(api, store)

	ctx := context.Background()
	_, err := lifecycle.EnsureDraft(ctx)
	require.NoError(t, err)

	lifecycle.DiscardDraft(ctx)
	assert.Equal(t, uuid.Nil, lifecycle.DraftID())
	assert.Equal(t, 1, api.deletes)

	persisted, err := store.LoadDraftID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, persisted)
}

func TestLifecycle_BestEffortRemoveNeverCreatesADraft(t *testing.T) {
	store := mustStore(":memory:")
	defer store.Close()
	api := newFakeAPI()
	lifecycle := slip.NewLifecycle(api, store)

	ctx := context.Background()

	// Without a draft the remove is a no-op.
	lifecycle.BestEffortRemove(ctx, "E")
	assert.Equal(t, 0, api.createCount())
	assert.Equal(t, 0, api.patchCount())

	_, err := lifecycle.EnsureDraft(ctx)
	require.NoError(t, err)

	lifecycle.BestEffortRemove(ctx, "E")
	require.Equal(t, 1, api.patchCount())
	assert.Equal(t, models.PatchActionRemove, api.lastPatch().Action)
	assert.Equal(t, "E", api.lastPatch().EventID)

	// A stale draft does not trigger recreation on the best-effort path.
	api.stalePatches = 1
	lifecycle.BestEffortRemove(ctx, "gone")
	assert.Equal(t, 1, api.createCount())
	assert.Equal(t, 1, api.patchCount())
}
