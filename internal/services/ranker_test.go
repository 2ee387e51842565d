package services

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	cvintelErrors "cvintel/internal/errors"
	"cvintel/internal/metrics"
	"cvintel/internal/models"
	"cvintel/internal/repositories"
	"cvintel/internal/ruleset"
)

const testRulesYAML = `version: "test"
skills:
  - name: Python
    synonyms: [py]
  - name: SQL
    synonyms: [postgres]
  - name: Docker
  - name: Go
    synonyms: [golang]
titles:
  - name: Software Engineer
    adjacent: [Backend Engineer]
  - name: Backend Engineer
    adjacent: [Software Engineer]
education:
  bachelor: [bachelor, b.s]
`

func testStore(t *testing.T) *ruleset.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(testRulesYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := ruleset.NewStore(path)
	if err != nil {
		t.Fatalf("loading test ruleset: %v", err)
	}
	return store
}

// fakeRepo is an in-memory BatchRepository holding a single batch.
type fakeRepo struct {
	mu    sync.Mutex
	batch *models.Batch
	docs  []models.CandidateDocument

	statusUpdates []models.BatchStatus
	saveCalls     int
}

func newFakeRepo(jobText string, candidateTexts ...string) *fakeRepo {
	batchID := uuid.New()
	repo := &fakeRepo{
		batch: &models.Batch{
			ID:     batchID,
			Name:   "test batch",
			Status: models.BatchPending,
			JobDescriptions: []models.JobDescription{
				{ID: uuid.New(), BatchID: batchID, Text: jobText},
			},
		},
	}
	for i, text := range candidateTexts {
		repo.docs = append(repo.docs, models.CandidateDocument{
			ID:             uuid.New(),
			BatchID:        batchID,
			SourceFilename: "cv.txt",
			Text:           text,
			Position:       i,
			CreatedAt:      time.Now(),
		})
	}
	return repo
}

func (f *fakeRepo) Create(batch *models.Batch, docs []models.CandidateDocument) error { return nil }

func (f *fakeRepo) FindByID(id uuid.UUID) (*models.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != f.batch.ID {
		return nil, repositories.ErrNotFound
	}
	return f.batch, nil
}

func (f *fakeRepo) List(limit int) ([]models.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return []models.Batch{*f.batch}, nil
}

func (f *fakeRepo) FindPending(limit int) ([]models.Batch, error) { return nil, nil }

func (f *fakeRepo) FindDocuments(batchID uuid.UUID) ([]models.CandidateDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs, nil
}

func (f *fakeRepo) FindCandidate(batchID, candidateID uuid.UUID) (*models.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.batch.Candidates {
		if f.batch.Candidates[i].ID == candidateID {
			return &f.batch.Candidates[i], nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeRepo) UpdateStatus(id uuid.UUID, status models.BatchStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != f.batch.ID {
		return repositories.ErrNotFound
	}
	f.batch.Status = status
	f.statusUpdates = append(f.statusUpdates, status)
	return nil
}

func (f *fakeRepo) MarkFailed(id uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != f.batch.ID {
		return repositories.ErrNotFound
	}
	f.batch.Status = models.BatchFailed
	f.batch.FailureReason = &reason
	f.batch.Candidates = nil
	return nil
}

func (f *fakeRepo) SaveRanking(batch *models.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if batch.ID != f.batch.ID {
		return repositories.ErrNotFound
	}
	f.saveCalls++
	f.batch = batch
	return nil
}

func newTestRanker(t *testing.T, repo repositories.BatchRepository) Ranker {
	t.Helper()
	return NewRanker(repo, testStore(t), nil, metrics.New(), zap.NewNop(), 4, 20)
}

const jobTextPythonSQL = "Looking for engineers with Python and SQL skills. Requires 3+ years of experience."

func TestRankOrdering(t *testing.T) {
	repo := newFakeRepo(jobTextPythonSQL,
		"Python, SQL and Docker expert. 5 years of experience shipping data products.",
		"Python developer with 1 year of experience after university.",
		"Friendly team player who enjoys collaborative problem solving every day.",
	)
	ranker := newTestRanker(t, repo)

	batch, err := ranker.Rank(context.Background(), repo.batch.ID)
	if err != nil {
		t.Fatalf("Rank() error: %v", err)
	}

	if batch.Status != models.BatchCompleted {
		t.Fatalf("status = %v, want completed", batch.Status)
	}
	if batch.RulesetVersion != "test" {
		t.Errorf("ruleset version = %q, want test", batch.RulesetVersion)
	}
	if len(batch.Candidates) != 3 {
		t.Fatalf("got %d candidates, want 3", len(batch.Candidates))
	}

	wantScores := []int{100, 44, 0}
	wantRanks := []int{1, 2, 3}
	for i, c := range batch.Candidates {
		if c.FinalScore != wantScores[i] {
			t.Errorf("candidate %d: final score = %d, want %d", i, c.FinalScore, wantScores[i])
		}
		if c.Rank != wantRanks[i] {
			t.Errorf("candidate %d: rank = %d, want %d", i, c.Rank, wantRanks[i])
		}
		if c.Status != models.CandidateScored {
			t.Errorf("candidate %d: status = %v, want scored", i, c.Status)
		}
	}

	// The no-evidence candidate is scored against the dimensions the job
	// actually constrains, never treated as a failure.
	if !batch.Candidates[2].ExperienceUnknown {
		t.Error("candidate with no experience evidence should be flagged unknown")
	}

	summary := batch.Summary
	if summary.TotalProcessed != 3 || summary.FailedCount != 0 {
		t.Errorf("summary counts = (%d, %d), want (3, 0)", summary.TotalProcessed, summary.FailedCount)
	}
	if summary.AverageScore != 48 {
		t.Errorf("average score = %v, want 48", summary.AverageScore)
	}
	if summary.HighlyRecommendedCount != 1 {
		t.Errorf("highly recommended = %d, want 1", summary.HighlyRecommendedCount)
	}
}

func TestRankTiesShareRankAndKeepSubmissionOrder(t *testing.T) {
	same := "Python and SQL engineer with 4 years of experience in production systems."
	repo := newFakeRepo(jobTextPythonSQL,
		same,
		same,
		"Friendly team player who enjoys collaborative problem solving every day.",
	)
	ranker := newTestRanker(t, repo)

	batch, err := ranker.Rank(context.Background(), repo.batch.ID)
	if err != nil {
		t.Fatalf("Rank() error: %v", err)
	}

	if len(batch.Candidates) != 3 {
		t.Fatalf("got %d candidates, want 3", len(batch.Candidates))
	}

	first, second, third := batch.Candidates[0], batch.Candidates[1], batch.Candidates[2]
	if first.FinalScore != second.FinalScore {
		t.Fatalf("tied candidates scored differently: %d vs %d", first.FinalScore, second.FinalScore)
	}
	if first.Rank != 1 || second.Rank != 1 {
		t.Errorf("tied ranks = (%d, %d), want (1, 1)", first.Rank, second.Rank)
	}
	if third.Rank != 3 {
		t.Errorf("rank after a two-way tie = %d, want 3", third.Rank)
	}
	if first.Position != 0 || second.Position != 1 {
		t.Errorf("tie broken out of submission order: positions (%d, %d)", first.Position, second.Position)
	}
}

func TestRankPartialFailure(t *testing.T) {
	repo := newFakeRepo(jobTextPythonSQL,
		"Python and SQL engineer with 4 years of experience in production systems.",
		"too short",
	)
	ranker := newTestRanker(t, repo)

	batch, err := ranker.Rank(context.Background(), repo.batch.ID)
	if err != nil {
		t.Fatalf("Rank() error: %v", err)
	}

	if batch.Status != models.BatchCompleted {
		t.Fatalf("status = %v, want completed despite one failed candidate", batch.Status)
	}
	if len(batch.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(batch.Candidates))
	}

	scored, failed := batch.Candidates[0], batch.Candidates[1]
	if scored.Status != models.CandidateScored || scored.Rank != 1 {
		t.Errorf("scored candidate = (%v, rank %d), want (scored, 1)", scored.Status, scored.Rank)
	}
	if failed.Status != models.CandidateFailed {
		t.Fatalf("failed candidate status = %v", failed.Status)
	}
	if failed.Rank != 0 {
		t.Errorf("failed candidate rank = %d, want 0", failed.Rank)
	}
	if failed.FailureReason == nil || !strings.Contains(*failed.FailureReason, cvintelErrors.CodeInsufficientText) {
		t.Errorf("failure reason = %v, want INSUFFICIENT_TEXT", failed.FailureReason)
	}

	if batch.Summary.TotalProcessed != 1 || batch.Summary.FailedCount != 1 {
		t.Errorf("summary counts = (%d, %d), want (1, 1)",
			batch.Summary.TotalProcessed, batch.Summary.FailedCount)
	}
}

func TestRankAllCandidatesFailed(t *testing.T) {
	repo := newFakeRepo(jobTextPythonSQL, "too short", "also bad")
	ranker := newTestRanker(t, repo)

	batch, err := ranker.Rank(context.Background(), repo.batch.ID)
	if err != nil {
		t.Fatalf("Rank() error: %v", err)
	}

	if batch.Status != models.BatchFailed {
		t.Fatalf("status = %v, want failed", batch.Status)
	}
	if batch.FailureReason == nil || *batch.FailureReason != "no candidates could be scored" {
		t.Errorf("failure reason = %v", batch.FailureReason)
	}
	if batch.Summary.FailedCount != 2 {
		t.Errorf("failed count = %d, want 2", batch.Summary.FailedCount)
	}
}

func TestRankJobDescriptionTooShort(t *testing.T) {
	repo := newFakeRepo("bad jd",
		"Python and SQL engineer with 4 years of experience in production systems.",
	)
	ranker := newTestRanker(t, repo)

	batch, err := ranker.Rank(context.Background(), repo.batch.ID)
	if err != nil {
		t.Fatalf("Rank() error: %v", err)
	}

	if batch.Status != models.BatchFailed {
		t.Fatalf("status = %v, want failed", batch.Status)
	}
	if batch.FailureReason == nil || !strings.Contains(*batch.FailureReason, "job description") {
		t.Errorf("failure reason = %v, want job description failure", batch.FailureReason)
	}
	if repo.saveCalls != 0 {
		t.Errorf("SaveRanking called %d times, want 0", repo.saveCalls)
	}
}

func TestRankInvalidBatch(t *testing.T) {
	t.Run("no documents", func(t *testing.T) {
		repo := newFakeRepo(jobTextPythonSQL)
		ranker := newTestRanker(t, repo)

		_, err := ranker.Rank(context.Background(), repo.batch.ID)
		if !cvintelErrors.IsCode(err, cvintelErrors.CodeInvalidBatch) {
			t.Fatalf("got %v, want INVALID_BATCH", err)
		}
		if repo.batch.Status != models.BatchPending {
			t.Errorf("status = %v, want pending untouched", repo.batch.Status)
		}
	})

	t.Run("two job descriptions", func(t *testing.T) {
		repo := newFakeRepo(jobTextPythonSQL, "Python and SQL engineer with 4 years of experience here.")
		repo.batch.JobDescriptions = append(repo.batch.JobDescriptions, models.JobDescription{
			ID: uuid.New(), BatchID: repo.batch.ID, Text: jobTextPythonSQL,
		})
		ranker := newTestRanker(t, repo)

		_, err := ranker.Rank(context.Background(), repo.batch.ID)
		if !cvintelErrors.IsCode(err, cvintelErrors.CodeInvalidBatch) {
			t.Fatalf("got %v, want INVALID_BATCH", err)
		}
	})
}

func TestRankUnknownBatch(t *testing.T) {
	repo := newFakeRepo(jobTextPythonSQL, "Python and SQL engineer with 4 years of experience here.")
	ranker := newTestRanker(t, repo)

	_, err := ranker.Rank(context.Background(), uuid.New())
	if !cvintelErrors.IsCode(err, cvintelErrors.CodeNotFound) {
		t.Fatalf("got %v, want NOT_FOUND", err)
	}
}

func TestRankCancelledDiscardsResults(t *testing.T) {
	repo := newFakeRepo(jobTextPythonSQL,
		"Python and SQL engineer with 4 years of experience in production systems.",
	)
	ranker := newTestRanker(t, repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, err := ranker.Rank(ctx, repo.batch.ID)
	if err != nil {
		t.Fatalf("Rank() error: %v", err)
	}

	if batch.Status != models.BatchFailed {
		t.Fatalf("status = %v, want failed", batch.Status)
	}
	if batch.FailureReason == nil || *batch.FailureReason != "cancelled" {
		t.Errorf("failure reason = %v, want cancelled", batch.FailureReason)
	}
	if repo.saveCalls != 0 {
		t.Errorf("SaveRanking called %d times, want 0", repo.saveCalls)
	}
	if len(batch.Candidates) != 0 {
		t.Errorf("cancelled pass persisted %d candidates", len(batch.Candidates))
	}
}

func TestCancelUnknownBatch(t *testing.T) {
	repo := newFakeRepo(jobTextPythonSQL, "Python and SQL engineer with 4 years of experience here.")
	ranker := newTestRanker(t, repo)

	if ranker.Cancel(uuid.New()) {
		t.Error("Cancel() reported an in-flight pass for an unknown batch")
	}
}

func TestRankDeterministic(t *testing.T) {
	repo := newFakeRepo(jobTextPythonSQL,
		"Python, SQL and Docker expert. 5 years of experience shipping data products.",
		"Python developer with 1 year of experience after university.",
		"SQL analyst, 2 years of experience with postgres and reporting tools.",
	)
	ranker := newTestRanker(t, repo)

	type row struct {
		docID uuid.UUID
		score int
		rank  int
	}
	run := func() []row {
		batch, err := ranker.Rank(context.Background(), repo.batch.ID)
		if err != nil {
			t.Fatalf("Rank() error: %v", err)
		}
		rows := make([]row, len(batch.Candidates))
		for i, c := range batch.Candidates {
			rows[i] = row{docID: c.DocumentID, score: c.FinalScore, rank: c.Rank}
		}
		return rows
	}

	first := run()
	for i := 0; i < 3; i++ {
		if again := run(); !reflect.DeepEqual(first, again) {
			t.Fatalf("re-ranking diverged: %v vs %v", first, again)
		}
	}
}
