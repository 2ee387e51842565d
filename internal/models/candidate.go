package models

import (
	"time"

	"github.com/google/uuid"
)

type CandidateStatus string

const (
	CandidateScored CandidateStatus = "scored"
	CandidateFailed CandidateStatus = "failed"
)

// StringList is stored as a JSON column.
type StringList []string

// Candidate is the ranked view of one document within a completed
// ranking pass. Rows are replaced wholesale on re-ranking, never
// mutated in place.
type Candidate struct {
	ID         uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	BatchID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"batch_id"`
	DocumentID uuid.UUID       `gorm:"type:uuid;not null" json:"document_id"`
	Status     CandidateStatus `gorm:"not null" json:"status"`

	// Sub-scores from the match, kept for explainability.
	SkillScore        float64    `gorm:"not null;default:0" json:"skill_score"`
	ExperienceScore   float64    `gorm:"not null;default:0" json:"experience_score"`
	TitleScore        float64    `gorm:"not null;default:0" json:"title_score"`
	ExperienceUnknown bool       `gorm:"not null;default:false" json:"experience_unknown"`
	MatchedSkills     StringList `gorm:"serializer:json;type:jsonb" json:"matched_skills"`
	MissingSkills     StringList `gorm:"serializer:json;type:jsonb" json:"missing_skills"`

	FinalScore int `gorm:"not null;default:0" json:"final_score"`
	// 1-based rank; ties share a rank (competition ranking). Zero for
	// failed candidates.
	Rank int `gorm:"not null;default:0" json:"rank"`
	// Submission order, mirrored from the document for stable ordering.
	Position int `gorm:"not null;default:0" json:"position"`

	// Set only when Status is failed.
	FailureReason *string `gorm:"type:text" json:"failure_reason,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamp;default:now()" json:"created_at"`

	Document CandidateDocument `gorm:"foreignKey:DocumentID" json:"document"`
}

func (Candidate) TableName() string {
	return "candidates"
}

// HighlyRecommendedThreshold is the dashboard convention for a
// highly-recommended candidate.
const HighlyRecommendedThreshold = 85
