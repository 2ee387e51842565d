package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	cvintelErrors "cvintel/internal/errors"
	"cvintel/internal/models"
	"cvintel/internal/repositories"
	"cvintel/internal/services"
)

type BatchHandler struct {
	repo   repositories.BatchRepository
	ranker services.Ranker
	worker services.Worker
}

func NewBatchHandler(
	repo repositories.BatchRepository,
	ranker services.Ranker,
	worker services.Worker,
) *BatchHandler {
	return &BatchHandler{
		repo:   repo,
		ranker: ranker,
		worker: worker,
	}
}

// HandleCreateBatch handles POST /batches. The batch is created pending
// and enqueued for background ranking; clients poll GET /batches/:id or
// force a synchronous pass via POST /batches/:id/rank.
func (h *BatchHandler) HandleCreateBatch(c *fiber.Ctx) error {
	var req models.CreateBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, cvintelErrors.NewInvalidBatch("invalid request payload"))
	}

	if strings.TrimSpace(req.Name) == "" {
		return writeError(c, cvintelErrors.NewInvalidBatch("name is required"))
	}
	if len(req.Candidates) == 0 {
		return writeError(c, cvintelErrors.NewInvalidBatch("at least one candidate is required"))
	}
	if strings.TrimSpace(req.JobDescription) == "" {
		return writeError(c, cvintelErrors.NewInvalidBatch("job_description is required"))
	}

	now := time.Now()
	batch := &models.Batch{
		ID:        uuid.New(),
		Name:      req.Name,
		Status:    models.BatchPending,
		CreatedAt: now,
		UpdatedAt: now,
		JobDescriptions: []models.JobDescription{
			{
				ID:        uuid.New(),
				Text:      req.JobDescription,
				CreatedAt: now,
			},
		},
		Candidates: []models.Candidate{},
	}

	docs := make([]models.CandidateDocument, len(req.Candidates))
	for i, input := range req.Candidates {
		docs[i] = models.CandidateDocument{
			ID:             uuid.New(),
			SourceFilename: input.Filename,
			Text:           input.Text,
			Position:       i,
			CreatedAt:      now,
		}
	}

	if err := h.repo.Create(batch, docs); err != nil {
		return writeError(c, cvintelErrors.NewPersistence("failed to create batch", err))
	}

	h.worker.EnqueueBatch(batch.ID)

	return c.Status(fiber.StatusCreated).JSON(batch)
}

// HandleListBatches handles GET /batches.
func (h *BatchHandler) HandleListBatches(c *fiber.Ctx) error {
	batches, err := h.repo.List(50)
	if err != nil {
		return writeError(c, cvintelErrors.NewPersistence("failed to list batches", err))
	}
	if batches == nil {
		batches = []models.Batch{}
	}
	return c.JSON(batches)
}

// HandleGetBatch handles GET /batches/:id.
func (h *BatchHandler) HandleGetBatch(c *fiber.Ctx) error {
	batchID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, cvintelErrors.NewInvalidBatch("invalid batch ID format"))
	}

	batch, err := h.repo.FindByID(batchID)
	if err != nil {
		if err == repositories.ErrNotFound {
			return writeError(c, cvintelErrors.NewNotFound("batch not found"))
		}
		return writeError(c, cvintelErrors.NewPersistence("failed to load batch", err))
	}

	return c.JSON(batch)
}

// HandleRankBatch handles POST /batches/:id/rank: runs a full ranking
// pass synchronously and returns the terminal batch. Safe to retry.
func (h *BatchHandler) HandleRankBatch(c *fiber.Ctx) error {
	batchID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, cvintelErrors.NewInvalidBatch("invalid batch ID format"))
	}

	batch, err := h.ranker.Rank(c.UserContext(), batchID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(batch)
}

// HandleCancelBatch handles POST /batches/:id/cancel. Only an in-flight
// ranking pass can be cancelled.
func (h *BatchHandler) HandleCancelBatch(c *fiber.Ctx) error {
	batchID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, cvintelErrors.NewInvalidBatch("invalid batch ID format"))
	}

	if !h.ranker.Cancel(batchID) {
		return writeError(c, cvintelErrors.NewCancelled("no ranking pass in flight for this batch"))
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"id":     batchID.String(),
		"status": "cancelling",
	})
}
