package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cvintel/internal/repositories"
)

// Worker drains the batch queue in the background so createBatch can
// return immediately and clients can poll. Ranking a batch is
// idempotent, so a batch picked up twice is harmless.
type Worker interface {
	Start(ctx context.Context)
	Stop()
	EnqueueBatch(batchID uuid.UUID)
}

type worker struct {
	repo         repositories.BatchRepository
	ranker       Ranker
	logger       *zap.Logger
	queue        chan uuid.UUID
	concurrency  int
	pollInterval time.Duration
	wg           sync.WaitGroup
	stopChan     chan struct{}
}

func NewWorker(
	repo repositories.BatchRepository,
	ranker Ranker,
	logger *zap.Logger,
	concurrency int,
	queueSize int,
	pollInterval time.Duration,
) Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &worker{
		repo:         repo,
		ranker:       ranker,
		logger:       logger,
		queue:        make(chan uuid.UUID, queueSize),
		concurrency:  concurrency,
		pollInterval: pollInterval,
		stopChan:     make(chan struct{}),
	}
}

// Start implements Worker.
func (w *worker) Start(ctx context.Context) {
	w.logger.Info("starting worker", zap.Int("concurrency", w.concurrency))

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.processBatches(ctx, i+1)
	}

	// Re-enqueue pending batches left over from a restart.
	w.wg.Add(1)
	go w.pollPendingBatches(ctx)
}

// Stop implements Worker.
func (w *worker) Stop() {
	w.logger.Info("stopping worker")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

// EnqueueBatch implements Worker.
func (w *worker) EnqueueBatch(batchID uuid.UUID) {
	select {
	case w.queue <- batchID:
		w.logger.Debug("batch enqueued", zap.String("batch_id", batchID.String()))
	case <-w.stopChan:
		w.logger.Warn("worker stopped, batch not enqueued", zap.String("batch_id", batchID.String()))
	}
}

func (w *worker) processBatches(ctx context.Context, workerID int) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopChan:
			w.logger.Debug("worker goroutine stopped", zap.Int("worker", workerID))
			return
		case batchID := <-w.queue:
			batch, err := w.ranker.Rank(ctx, batchID)
			if err != nil {
				w.logger.Error("batch ranking failed",
					zap.Int("worker", workerID),
					zap.String("batch_id", batchID.String()),
					zap.Error(err))
				continue
			}
			w.logger.Info("batch processed",
				zap.Int("worker", workerID),
				zap.String("batch_id", batchID.String()),
				zap.String("status", string(batch.Status)))
		}
	}
}

func (w *worker) pollPendingBatches(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending, err := w.repo.FindPending(10)
			if err != nil {
				w.logger.Warn("failed to poll pending batches", zap.Error(err))
				continue
			}
			for _, batch := range pending {
				w.EnqueueBatch(batch.ID)
			}
		}
	}
}
