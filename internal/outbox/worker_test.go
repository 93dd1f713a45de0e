package outbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/betslip/internal/models"
	"github.com/mcdev12/betslip/internal/outbox"
	"github.com/mcdev12/betslip/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memQueue struct {
	mu     sync.Mutex
	writes []storage.PendingWrite
}

func (q *memQueue) FetchPendingWrites(ctx context.Context, limit int) ([]storage.PendingWrite, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.writes) > limit {
		return append([]storage.PendingWrite(nil), q.writes[:limit]...), nil
	}
	return append([]storage.PendingWrite(nil), q.writes...), nil
}

func (q *memQueue) DeleteWrite(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, w := range q.writes {
		if w.ID == id {
			q.writes = append(q.writes[:i], q.writes[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *memQueue) BumpWriteAttempts(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.writes {
		if q.writes[i].ID == id {
			q.writes[i].Attempts++
			return nil
		}
	}
	return nil
}

func (q *memQueue) add(eventID string, action models.PatchAction) uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := uuid.New()
	q.writes = append(q.writes, storage.PendingWrite{
		ID:         id,
		EventID:    eventID,
		Action:     action,
		Outcome:    "home",
		Price:      2.10,
		EnqueuedAt: time.Now(),
	})
	return id
}

func (q *memQueue) remaining() []storage.PendingWrite {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]storage.PendingWrite(nil), q.writes...)
}

type recordingWriter struct {
	mu      sync.Mutex
	patches []models.DraftPatch
	err     error
}

func (w *recordingWriter) SyncPatch(ctx context.Context, patch models.DraftPatch) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.patches = append(w.patches, patch)
	return nil
}

func (w *recordingWriter) delivered() []models.DraftPatch {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.DraftPatch(nil), w.patches...)
}

func TestWorker_DrainDeliversAndDeletes(t *testing.T) {
	queue := &memQueue{}
	queue.add("E1", models.PatchActionAdd)
	queue.add("E2", models.PatchActionUpdate)

	writer := &recordingWriter{}
	worker := outbox.NewWorker(queue, writer, outbox.DefaultConfig())

	worker.Drain(context.Background())

	patches := writer.delivered()
	require.Len(t, patches, 2)
	assert.Equal(t, "E1", patches[0].EventID)
	assert.Equal(t, models.PatchActionAdd, patches[0].Action)
	assert.Equal(t, "home", patches[0].Outcome)
	assert.Equal(t, 2.10, patches[0].Price)
	assert.Equal(t, "E2", patches[1].EventID)

	assert.Empty(t, queue.remaining(), "delivered writes removed from the queue")
}

func TestWorker_DrainRespectsBatchSize(t *testing.T) {
	queue := &memQueue{}
	for i := 0; i < 5; i++ {
		queue.add("E1", models.PatchActionUpdate)
	}

	writer := &recordingWriter{}
	cfg := outbox.DefaultConfig()
	cfg.BatchSize = 2
	worker := outbox.NewWorker(queue, writer, cfg)

	worker.Drain(context.Background())

	assert.Len(t, writer.delivered(), 2)
	assert.Len(t, queue.remaining(), 3)
}

func TestWorker_FailedWriteRetriesThenAbandons(t *testing.T) {
	queue := &memQueue{}
	queue.add("E1", models.PatchActionAdd)

	writer := &recordingWriter{err: errors.New("upstream down")}
	cfg := outbox.DefaultConfig()
	cfg.MaxAttempts = 3
	worker := outbox.NewWorker(queue, writer, cfg)

	ctx := context.Background()

	worker.Drain(ctx)
	remaining := queue.remaining()
	require.Len(t, remaining, 1)
	assert.Equal(t, 1, remaining[0].Attempts)

	worker.Drain(ctx)
	remaining = queue.remaining()
	require.Len(t, remaining, 1)
	assert.Equal(t, 2, remaining[0].Attempts)

	// Third failure reaches MaxAttempts: the write is abandoned, not retried.
	worker.Drain(ctx)
	assert.Empty(t, queue.remaining())
	assert.Empty(t, writer.delivered())
}

func TestWorker_StartAndStopAreGuarded(t *testing.T) {
	worker := outbox.NewWorker(&memQueue{}, &recordingWriter{}, outbox.DefaultConfig())

	assert.Error(t, worker.Stop(), "stopping before start")

	require.NoError(t, worker.Start(context.Background()))
	assert.Error(t, worker.Start(context.Background()), "double start")

	require.NoError(t, worker.Stop())
}
