package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	cvintelErrors "cvintel/internal/errors"
	"cvintel/internal/models"
	"cvintel/internal/repositories"
	"cvintel/internal/services"
)

type SimilarHandler struct {
	repo       repositories.BatchRepository
	similarity services.SimilarityService
}

// NewSimilarHandler accepts a nil similarity service; the endpoint then
// reports the feature as unavailable.
func NewSimilarHandler(repo repositories.BatchRepository, similarity services.SimilarityService) *SimilarHandler {
	return &SimilarHandler{
		repo:       repo,
		similarity: similarity,
	}
}

// HandleFindSimilar handles GET /batches/:id/candidates/:cid/similar.
func (h *SimilarHandler) HandleFindSimilar(c *fiber.Ctx) error {
	if h.similarity == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Error:   "SIMILARITY_DISABLED",
			Message: "similarity index is not configured",
		})
	}

	batchID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, cvintelErrors.NewInvalidBatch("invalid batch ID format"))
	}
	candidateID, err := uuid.Parse(c.Params("cid"))
	if err != nil {
		return writeError(c, cvintelErrors.NewInvalidBatch("invalid candidate ID format"))
	}

	limit, err := strconv.Atoi(c.Query("limit", "5"))
	if err != nil || limit < 1 || limit > 50 {
		limit = 5
	}

	candidate, err := h.repo.FindCandidate(batchID, candidateID)
	if err != nil {
		if err == repositories.ErrNotFound {
			return writeError(c, cvintelErrors.NewNotFound("candidate not found"))
		}
		return writeError(c, cvintelErrors.NewPersistence("failed to load candidate", err))
	}

	similar, err := h.similarity.FindSimilar(c.UserContext(), candidate, limit)
	if err != nil {
		return writeError(c, err)
	}
	if similar == nil {
		similar = []models.SimilarCandidate{}
	}

	return c.JSON(similar)
}
