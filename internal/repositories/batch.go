package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cvintel/internal/models"
)

// Candidate ordering within a batch: ranked candidates first in rank
// order, failed ones after, both stable on submission order.
const candidateOrder = "CASE WHEN candidates.status = 'scored' THEN 0 ELSE 1 END, candidates.rank ASC, candidates.position ASC"

var ErrNotFound = errors.New("batch not found")

type BatchRepository interface {
	Create(batch *models.Batch, docs []models.CandidateDocument) error
	FindByID(id uuid.UUID) (*models.Batch, error)
	List(limit int) ([]models.Batch, error)
	FindPending(limit int) ([]models.Batch, error)
	FindDocuments(batchID uuid.UUID) ([]models.CandidateDocument, error)
	FindCandidate(batchID, candidateID uuid.UUID) (*models.Candidate, error)
	UpdateStatus(id uuid.UUID, status models.BatchStatus) error
	MarkFailed(id uuid.UUID, reason string) error
	SaveRanking(batch *models.Batch) error
}

type batchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) BatchRepository {
	return &batchRepository{db: db}
}

// Create persists the batch, its job descriptions and its candidate
// documents in one transaction so a rejected batch leaves no partial
// state behind.
func (r *batchRepository) Create(batch *models.Batch, docs []models.CandidateDocument) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(batch).Error; err != nil {
			return err
		}
		for i := range docs {
			docs[i].BatchID = batch.ID
		}
		if len(docs) > 0 {
			if err := tx.Create(&docs).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

func (r *batchRepository) FindByID(id uuid.UUID) (*models.Batch, error) {
	var batch models.Batch
	err := r.db.
		Preload("JobDescriptions").
		Preload("Candidates", func(db *gorm.DB) *gorm.DB {
			return db.Order(candidateOrder)
		}).
		Preload("Candidates.Document").
		Where("id = ?", id).
		First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find batch: %w", err)
	}
	return &batch, nil
}

func (r *batchRepository) List(limit int) ([]models.Batch, error) {
	var batches []models.Batch
	err := r.db.
		Order("created_at DESC").
		Limit(limit).
		Find(&batches).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	return batches, nil
}

func (r *batchRepository) FindPending(limit int) ([]models.Batch, error) {
	var batches []models.Batch
	err := r.db.
		Where("status = ?", models.BatchPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&batches).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find pending batches: %w", err)
	}
	return batches, nil
}

func (r *batchRepository) FindDocuments(batchID uuid.UUID) ([]models.CandidateDocument, error) {
	var docs []models.CandidateDocument
	err := r.db.
		Where("batch_id = ?", batchID).
		Order("position ASC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find documents: %w", err)
	}
	return docs, nil
}

func (r *batchRepository) FindCandidate(batchID, candidateID uuid.UUID) (*models.Candidate, error) {
	var candidate models.Candidate
	err := r.db.
		Preload("Document").
		Where("batch_id = ? AND id = ?", batchID, candidateID).
		First(&candidate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find candidate: %w", err)
	}
	return &candidate, nil
}

func (r *batchRepository) UpdateStatus(id uuid.UUID, status models.BatchStatus) error {
	result := r.db.Model(&models.Batch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *batchRepository) MarkFailed(id uuid.UUID, reason string) error {
	result := r.db.Model(&models.Batch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         models.BatchFailed,
			"failure_reason": reason,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark batch failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveRanking commits a completed ranking pass in one transaction:
// batch status and summary plus wholesale replacement of the candidate
// rows. Observers never see new candidates with a stale summary.
func (r *batchRepository) SaveRanking(batch *models.Batch) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Batch{}).
			Where("id = ?", batch.ID).
			Updates(map[string]interface{}{
				"status":                   batch.Status,
				"ruleset_version":          batch.RulesetVersion,
				"failure_reason":           batch.FailureReason,
				"total_processed":          batch.Summary.TotalProcessed,
				"failed_count":             batch.Summary.FailedCount,
				"average_score":            batch.Summary.AverageScore,
				"highly_recommended_count": batch.Summary.HighlyRecommendedCount,
				"updated_at":               time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		if err := tx.Where("batch_id = ?", batch.ID).Delete(&models.Candidate{}).Error; err != nil {
			return err
		}
		if len(batch.Candidates) > 0 {
			if err := tx.Omit(clause.Associations).Create(&batch.Candidates).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save ranking: %w", err)
	}
	return nil
}
