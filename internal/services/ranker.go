package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	cvintelErrors "cvintel/internal/errors"
	"cvintel/internal/metrics"
	"cvintel/internal/models"
	"cvintel/internal/repositories"
	"cvintel/internal/ruleset"
)

// Ranker runs the full normalize-match-score pipeline over a batch.
type Ranker interface {
	// Rank scores every candidate document in the batch against its job
	// description and persists the ordered result. Idempotent: ranking
	// the same inputs under the same ruleset reproduces the same
	// ordering and scores.
	Rank(ctx context.Context, batchID uuid.UUID) (*models.Batch, error)
	// Cancel aborts an in-flight ranking pass. Reports whether one was
	// found. A cancelled pass persists no candidate results.
	Cancel(batchID uuid.UUID) bool
}

type rankerService struct {
	repo       repositories.BatchRepository
	rulesets   *ruleset.Store
	similarity SimilarityService
	metrics    *metrics.Metrics
	logger     *zap.Logger

	concurrency int
	minChars    int

	mu       sync.Mutex
	inflight map[uuid.UUID]context.CancelFunc
}

func NewRanker(
	repo repositories.BatchRepository,
	rulesets *ruleset.Store,
	similarity SimilarityService,
	m *metrics.Metrics,
	logger *zap.Logger,
	concurrency int,
	minChars int,
) Ranker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &rankerService{
		repo:        repo,
		rulesets:    rulesets,
		similarity:  similarity,
		metrics:     m,
		logger:      logger,
		concurrency: concurrency,
		minChars:    minChars,
		inflight:    make(map[uuid.UUID]context.CancelFunc),
	}
}

// candidateOutcome pairs one scored (or failed) candidate row with its
// submission slot.
type candidateOutcome struct {
	candidate models.Candidate
}

func (r *rankerService) Rank(ctx context.Context, batchID uuid.UUID) (*models.Batch, error) {
	start := time.Now()

	batch, err := r.repo.FindByID(batchID)
	if err != nil {
		if err == repositories.ErrNotFound {
			return nil, cvintelErrors.NewNotFound(fmt.Sprintf("batch %s not found", batchID))
		}
		return nil, cvintelErrors.NewPersistence("failed to load batch", err)
	}

	docs, err := r.repo.FindDocuments(batchID)
	if err != nil {
		return nil, cvintelErrors.NewPersistence("failed to load batch documents", err)
	}

	// Fail fast before any state is touched.
	if err := validateBatch(batch, docs); err != nil {
		return nil, err
	}

	// One consistent ruleset for the whole pass.
	rules := r.rulesets.Current()
	normalizer := NewNormalizer(rules, r.minChars)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.track(batchID, cancel)
	defer r.untrack(batchID)

	if err := r.repo.UpdateStatus(batchID, models.BatchProcessing); err != nil {
		return nil, cvintelErrors.NewPersistence("failed to mark batch processing", err)
	}

	r.logger.Info("ranking batch",
		zap.String("batch_id", batchID.String()),
		zap.Int("candidates", len(docs)),
		zap.String("ruleset_version", rules.Version()))

	jobFS, err := normalizer.Normalize(batch.JobDescriptions[0].Text)
	if err != nil {
		reason := fmt.Sprintf("job description could not be normalized: %v", err)
		if err := r.repo.MarkFailed(batchID, reason); err != nil {
			return nil, cvintelErrors.NewPersistence("failed to mark batch failed", err)
		}
		r.metrics.BatchesRanked.WithLabelValues(string(models.BatchFailed)).Inc()
		return r.repo.FindByID(batchID)
	}

	// Per-candidate work is pure and shares nothing; fan out bounded by
	// the configured concurrency, then join before sorting.
	outcomes := make([]candidateOutcome, len(docs))
	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for i := range docs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = r.scoreCandidate(normalizer, rules, jobFS, docs[i])
		}(i)
	}
	wg.Wait()

	// In-flight candidates ran to completion; a cancelled pass discards
	// their results instead of persisting them.
	if ctx.Err() != nil {
		r.logger.Info("ranking cancelled, discarding results", zap.String("batch_id", batchID.String()))
		if err := r.repo.MarkFailed(batchID, "cancelled"); err != nil {
			return nil, cvintelErrors.NewPersistence("failed to mark batch cancelled", err)
		}
		r.metrics.BatchesRanked.WithLabelValues("cancelled").Inc()
		return r.repo.FindByID(batchID)
	}

	ranked := assembleRanking(batch, outcomes)
	ranked.RulesetVersion = rules.Version()

	if err := r.repo.SaveRanking(ranked); err != nil {
		return nil, cvintelErrors.NewPersistence("ranking pass not committed", err)
	}

	r.metrics.BatchesRanked.WithLabelValues(string(ranked.Status)).Inc()
	r.metrics.RankDuration.Observe(time.Since(start).Seconds())
	r.logger.Info("ranking completed",
		zap.String("batch_id", batchID.String()),
		zap.String("status", string(ranked.Status)),
		zap.Int("scored", ranked.Summary.TotalProcessed),
		zap.Int("failed", ranked.Summary.FailedCount),
		zap.Duration("duration", time.Since(start)))

	result, err := r.repo.FindByID(batchID)
	if err != nil {
		return nil, cvintelErrors.NewPersistence("failed to reload batch", err)
	}

	if r.similarity != nil && result.Status == models.BatchCompleted {
		go r.similarity.IndexBatch(context.Background(), result)
	}

	return result, nil
}

func (r *rankerService) Cancel(batchID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.inflight[batchID]
	if ok {
		cancel()
	}
	return ok
}

func (r *rankerService) track(batchID uuid.UUID, cancel context.CancelFunc) {
	r.mu.Lock()
	r.inflight[batchID] = cancel
	r.mu.Unlock()
}

func (r *rankerService) untrack(batchID uuid.UUID) {
	r.mu.Lock()
	delete(r.inflight, batchID)
	r.mu.Unlock()
}

// scoreCandidate runs one document through normalize, match, score.
// Failures stay local to the candidate.
func (r *rankerService) scoreCandidate(
	normalizer *Normalizer,
	rules *ruleset.Ruleset,
	jobFS FeatureSet,
	doc models.CandidateDocument,
) candidateOutcome {
	candidate := models.Candidate{
		ID:         uuid.New(),
		BatchID:    doc.BatchID,
		DocumentID: doc.ID,
		Position:   doc.Position,
		CreatedAt:  time.Now(),
	}

	fs, err := normalizer.Normalize(doc.Text)
	if err != nil {
		return r.failedOutcome(candidate, doc, err)
	}

	match := Match(rules, fs, jobFS)
	finalScore, err := ComputeFinalScore(match)
	if err != nil {
		// A sub-score left [0,100]; that is a matcher bug, not data.
		r.logger.Error("scoring overflow",
			zap.String("document_id", doc.ID.String()),
			zap.Error(err))
		return r.failedOutcome(candidate, doc, err)
	}

	candidate.Status = models.CandidateScored
	candidate.SkillScore = match.SkillScore
	candidate.ExperienceScore = match.ExperienceScore
	candidate.TitleScore = match.TitleScore
	candidate.ExperienceUnknown = match.ExperienceExcluded
	candidate.MatchedSkills = match.MatchedSkills
	candidate.MissingSkills = match.MissingSkills
	candidate.FinalScore = finalScore

	r.metrics.CandidatesScored.Inc()
	return candidateOutcome{candidate: candidate}
}

func (r *rankerService) failedOutcome(candidate models.Candidate, doc models.CandidateDocument, err error) candidateOutcome {
	code := "INTERNAL"
	if appErr, ok := cvintelErrors.AsAppError(err); ok {
		code = appErr.Code
	}
	r.metrics.CandidateFailures.WithLabelValues(code).Inc()
	r.logger.Warn("candidate failed",
		zap.String("document_id", doc.ID.String()),
		zap.String("filename", doc.SourceFilename),
		zap.String("code", code),
		zap.Error(err))

	reason := err.Error()
	candidate.Status = models.CandidateFailed
	candidate.FailureReason = &reason
	candidate.MatchedSkills = models.StringList{}
	candidate.MissingSkills = models.StringList{}
	return candidateOutcome{candidate: candidate}
}

// assembleRanking sorts scored candidates by final score descending with
// submission order breaking ties, assigns competition ranks, and derives
// the batch summary from scored candidates only.
func assembleRanking(batch *models.Batch, outcomes []candidateOutcome) *models.Batch {
	var scored, failed []models.Candidate
	for _, outcome := range outcomes {
		if outcome.candidate.Status == models.CandidateScored {
			scored = append(scored, outcome.candidate)
		} else {
			failed = append(failed, outcome.candidate)
		}
	}

	// Outcomes arrive in submission order, so the stable sort is the
	// documented tie-break, not an accident of the algorithm.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].FinalScore > scored[j].FinalScore
	})

	total := 0
	highly := 0
	for i := range scored {
		if i > 0 && scored[i].FinalScore == scored[i-1].FinalScore {
			scored[i].Rank = scored[i-1].Rank
		} else {
			scored[i].Rank = i + 1
		}
		total += scored[i].FinalScore
		if scored[i].FinalScore >= models.HighlyRecommendedThreshold {
			highly++
		}
	}

	batch.Summary = models.BatchSummary{
		TotalProcessed:         len(scored),
		FailedCount:            len(failed),
		HighlyRecommendedCount: highly,
	}
	if len(scored) > 0 {
		batch.Summary.AverageScore = float64(total) / float64(len(scored))
		batch.Status = models.BatchCompleted
		batch.FailureReason = nil
	} else {
		batch.Status = models.BatchFailed
		reason := "no candidates could be scored"
		batch.FailureReason = &reason
	}

	batch.Candidates = append(scored, failed...)
	return batch
}

// validateBatch enforces the batch shape before any processing: at
// least one candidate document and exactly one job description.
func validateBatch(batch *models.Batch, docs []models.CandidateDocument) error {
	if len(docs) == 0 {
		return cvintelErrors.NewInvalidBatch("batch has no candidate documents")
	}
	if len(batch.JobDescriptions) != 1 {
		return cvintelErrors.NewInvalidBatch(
			fmt.Sprintf("batch must have exactly one job description, has %d", len(batch.JobDescriptions)))
	}
	return nil
}
