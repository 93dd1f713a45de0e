package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/betslip/internal/metrics"
	"github.com/mcdev12/betslip/internal/models"
	"github.com/mcdev12/betslip/internal/storage"
	"github.com/rs/zerolog/log"
)

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		BatchSize:    50,
		MaxAttempts:  3,
	}
}

// DraftWriter defines what the worker needs to deliver a pending write
type DraftWriter interface {
	SyncPatch(ctx context.Context, patch models.DraftPatch) error
}

// Queue defines what the worker needs from durable storage
type Queue interface {
	FetchPendingWrites(ctx context.Context, limit int) ([]storage.PendingWrite, error)
	DeleteWrite(ctx context.Context, id uuid.UUID) error
	BumpWriteAttempts(ctx context.Context, id uuid.UUID) error
}

// Worker drains the durable write outbox in the background. Delivery is
// fire-and-forget: a write that keeps failing past MaxAttempts is abandoned
// rather than blocking the queue.
type Worker struct {
	queue  Queue
	writer DraftWriter
	config Config

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewWorker(queue Queue, writer DraftWriter, cfg Config) *Worker {
	return &Worker{
		queue:    queue,
		writer:   writer,
		config:   cfg,
		stopChan: make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	log.Info().
		Dur("poll_interval", w.config.PollInterval).
		Int("batch_size", w.config.BatchSize).
		Msg("outbox worker started")

	return nil
}

func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	log.Info().Msg("outbox worker stopped")
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Drain whatever a previous process left behind before the first tick.
	w.Drain(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain delivers one batch of pending writes.
func (w *Worker) Drain(ctx context.Context) {
	writes, err := w.queue.FetchPendingWrites(ctx, w.config.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch pending writes")
		return
	}
	if len(writes) == 0 {
		return
	}

	log.Debug().Int("count", len(writes)).Msg("draining outbox writes")

	delivered := 0
	for _, write := range writes {
		patch := models.DraftPatch{
			Action:  write.Action,
			EventID: write.EventID,
			Outcome: write.Outcome,
			Price:   write.Price,
		}

		if err := w.writer.SyncPatch(ctx, patch); err != nil {
			if write.Attempts+1 >= w.config.MaxAttempts {
				log.Warn().
					Err(err).
					Str("event_id", write.EventID).
					Int("attempts", write.Attempts+1).
					Msg("abandoning pending write")
				metrics.OutboxDrained.WithLabelValues("abandoned").Inc()
				if delErr := w.queue.DeleteWrite(ctx, write.ID); delErr != nil {
					log.Error().Err(delErr).Str("write_id", write.ID.String()).Msg("failed to delete abandoned write")
				}
				continue
			}

			log.Debug().
				Err(err).
				Str("event_id", write.EventID).
				Int("attempts", write.Attempts+1).
				Msg("pending write delivery failed, will retry next drain")
			if bumpErr := w.queue.BumpWriteAttempts(ctx, write.ID); bumpErr != nil {
				log.Error().Err(bumpErr).Str("write_id", write.ID.String()).Msg("failed to bump write attempts")
			}
			continue
		}

		metrics.OutboxDrained.WithLabelValues("ok").Inc()
		delivered++
		if err := w.queue.DeleteWrite(ctx, write.ID); err != nil {
			log.Error().Err(err).Str("write_id", write.ID.String()).Msg("failed to delete delivered write")
		}
	}

	if delivered > 0 {
		log.Info().Int("total", len(writes)).Int("delivered", delivered).Msg("drained outbox writes")
	}
}
