package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"cvintel/internal/models"
	"cvintel/internal/ruleset"
)

// SimilarityService maintains the optional cross-batch candidate index.
// Scoring never depends on it; when Gemini or Qdrant is not configured
// the service is simply absent.
type SimilarityService interface {
	// IndexBatch embeds every scored candidate's normalized profile and
	// upserts it. Best effort: failures are logged and skipped.
	IndexBatch(ctx context.Context, batch *models.Batch)
	// FindSimilar returns the nearest previously indexed candidates to
	// the given one, excluding the candidate itself.
	FindSimilar(ctx context.Context, candidate *models.Candidate, limit int) ([]models.SimilarCandidate, error)
}

type similarityService struct {
	embeddings EmbeddingService
	index      CandidateIndex
	rulesets   *ruleset.Store
	logger     *zap.Logger
	minChars   int
}

func NewSimilarityService(
	embeddings EmbeddingService,
	index CandidateIndex,
	rulesets *ruleset.Store,
	logger *zap.Logger,
	minChars int,
) SimilarityService {
	return &similarityService{
		embeddings: embeddings,
		index:      index,
		rulesets:   rulesets,
		logger:     logger,
		minChars:   minChars,
	}
}

// IndexBatch implements SimilarityService.
func (s *similarityService) IndexBatch(ctx context.Context, batch *models.Batch) {
	normalizer := NewNormalizer(s.rulesets.Current(), s.minChars)

	indexed := 0
	for i := range batch.Candidates {
		candidate := &batch.Candidates[i]
		if candidate.Status != models.CandidateScored {
			continue
		}

		profile, err := s.profileFor(normalizer, candidate.Document.Text)
		if err != nil {
			s.logger.Warn("skipping candidate in similarity index",
				zap.String("candidate_id", candidate.ID.String()), zap.Error(err))
			continue
		}

		embedding, err := s.embeddings.GenerateEmbedding(ctx, profile)
		if err != nil {
			s.logger.Warn("failed to embed candidate profile",
				zap.String("candidate_id", candidate.ID.String()), zap.Error(err))
			continue
		}

		point := CandidatePoint{
			CandidateID: candidate.ID.String(),
			BatchID:     batch.ID.String(),
			Filename:    candidate.Document.SourceFilename,
			FinalScore:  candidate.FinalScore,
		}
		if err := s.index.UpsertCandidate(ctx, point, embedding); err != nil {
			s.logger.Warn("failed to index candidate",
				zap.String("candidate_id", candidate.ID.String()), zap.Error(err))
			continue
		}
		indexed++
	}

	s.logger.Info("similarity index updated",
		zap.String("batch_id", batch.ID.String()),
		zap.Int("indexed", indexed))
}

// FindSimilar implements SimilarityService.
func (s *similarityService) FindSimilar(ctx context.Context, candidate *models.Candidate, limit int) ([]models.SimilarCandidate, error) {
	normalizer := NewNormalizer(s.rulesets.Current(), s.minChars)

	profile, err := s.profileFor(normalizer, candidate.Document.Text)
	if err != nil {
		return nil, err
	}

	embedding, err := s.embeddings.GenerateEmbedding(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query profile: %w", err)
	}

	// Ask for one extra hit because the candidate matches itself.
	hits, err := s.index.SearchSimilar(ctx, embedding, limit+1)
	if err != nil {
		return nil, err
	}

	results := make([]models.SimilarCandidate, 0, limit)
	for _, hit := range hits {
		if hit.CandidateID == candidate.ID.String() {
			continue
		}
		results = append(results, hit)
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// profileFor renders the normalized feature set as the text that gets
// embedded. Feature text, not raw resume text, so near-duplicates of
// skill profiles rank close even when prose differs.
func (s *similarityService) profileFor(normalizer *Normalizer, docText string) (string, error) {
	fs, err := normalizer.Normalize(docText)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("skills: ")
	sb.WriteString(strings.Join(fs.SortedSkills(), ", "))
	if len(fs.Titles) > 0 {
		sb.WriteString(" | titles: ")
		sb.WriteString(strings.Join(fs.Titles, ", "))
	}
	if fs.ExperienceKnown {
		fmt.Fprintf(&sb, " | experience: %d years", fs.ExperienceYears)
	}
	if fs.Education != ruleset.EducationNone {
		sb.WriteString(" | education: ")
		sb.WriteString(fs.Education.String())
	}
	return sb.String(), nil
}
