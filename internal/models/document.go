package models

import (
	"time"

	"github.com/google/uuid"
)

// CandidateDocument is the raw extracted text of one resume as accepted
// into a batch. Immutable after creation; Position records submission
// order and is the ranking tie-breaker.
type CandidateDocument struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	BatchID        uuid.UUID `gorm:"type:uuid;not null;index" json:"batch_id"`
	SourceFilename string    `gorm:"type:text" json:"source_filename"`
	Text           string    `gorm:"type:text;not null" json:"-"`
	Position       int       `gorm:"not null" json:"position"`
	CreatedAt      time.Time `gorm:"type:timestamp;default:now()" json:"created_at"`
}

func (CandidateDocument) TableName() string {
	return "candidate_documents"
}

// JobDescription is the raw text the batch is scored against. Immutable
// after creation.
type JobDescription struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	BatchID   uuid.UUID `gorm:"type:uuid;not null;index" json:"batch_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `gorm:"type:timestamp;default:now()" json:"created_at"`
}

func (JobDescription) TableName() string {
	return "job_descriptions"
}
