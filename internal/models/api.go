package models

// CandidateInput is one resume in a batch creation request. Text is the
// already-extracted plain text of the document.
type CandidateInput struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

// CreateBatchRequest is the payload of POST /batches.
type CreateBatchRequest struct {
	Name           string           `json:"name"`
	Candidates     []CandidateInput `json:"candidates"`
	JobDescription string           `json:"job_description"`
}

// ErrorResponse is the canonical error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SimilarCandidate is one hit from the similarity index.
type SimilarCandidate struct {
	CandidateID string  `json:"candidate_id"`
	BatchID     string  `json:"batch_id"`
	Filename    string  `json:"filename"`
	FinalScore  int     `json:"final_score"`
	Similarity  float32 `json:"similarity"`
}
