package models

import (
	"time"

	"github.com/google/uuid"
)

type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// Terminal reports whether the status is final. Terminal batches are
// only changed by an explicit re-ranking pass.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// BatchSummary is derived from the scored candidate list at completion
// time. Failed candidates are excluded from the average and counted
// separately.
type BatchSummary struct {
	TotalProcessed         int     `gorm:"not null;default:0" json:"total_processed"`
	FailedCount            int     `gorm:"not null;default:0" json:"failed_count"`
	AverageScore           float64 `gorm:"not null;default:0" json:"average_score"`
	HighlyRecommendedCount int     `gorm:"not null;default:0" json:"highly_recommended_count"`
}

type Batch struct {
	ID             uuid.UUID   `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name           string      `gorm:"type:text;not null" json:"name"`
	Status         BatchStatus `gorm:"not null;default:'pending'" json:"status"`
	RulesetVersion string      `gorm:"type:text" json:"ruleset_version,omitempty"`
	FailureReason  *string     `gorm:"type:text" json:"failure_reason,omitempty"`

	Summary BatchSummary `gorm:"embedded" json:"summary"`

	CreatedAt time.Time `gorm:"type:timestamp;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamp;default:now()" json:"updated_at"`

	// Relations. Candidate ordering is the ranking.
	JobDescriptions []JobDescription `gorm:"foreignKey:BatchID" json:"job_descriptions,omitempty"`
	Candidates      []Candidate      `gorm:"foreignKey:BatchID" json:"candidates"`
}

func (Batch) TableName() string {
	return "batches"
}
