package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"cvintel/internal/models"
	"cvintel/internal/repositories"
)

// stubRepo is a minimal BatchRepository for handler tests.
type stubRepo struct {
	batch       *models.Batch
	createdDocs []models.CandidateDocument
	createErr   error
}

func (s *stubRepo) Create(batch *models.Batch, docs []models.CandidateDocument) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.batch = batch
	s.createdDocs = docs
	return nil
}

func (s *stubRepo) FindByID(id uuid.UUID) (*models.Batch, error) {
	if s.batch == nil || s.batch.ID != id {
		return nil, repositories.ErrNotFound
	}
	return s.batch, nil
}

func (s *stubRepo) List(limit int) ([]models.Batch, error) {
	if s.batch == nil {
		return nil, nil
	}
	return []models.Batch{*s.batch}, nil
}

func (s *stubRepo) FindPending(limit int) ([]models.Batch, error) { return nil, nil }

func (s *stubRepo) FindDocuments(batchID uuid.UUID) ([]models.CandidateDocument, error) {
	return s.createdDocs, nil
}

func (s *stubRepo) FindCandidate(batchID, candidateID uuid.UUID) (*models.Candidate, error) {
	return nil, repositories.ErrNotFound
}

func (s *stubRepo) UpdateStatus(id uuid.UUID, status models.BatchStatus) error { return nil }
func (s *stubRepo) MarkFailed(id uuid.UUID, reason string) error               { return nil }
func (s *stubRepo) SaveRanking(batch *models.Batch) error                      { return nil }

type stubRanker struct {
	batch     *models.Batch
	err       error
	cancelled bool
}

func (s *stubRanker) Rank(ctx context.Context, batchID uuid.UUID) (*models.Batch, error) {
	return s.batch, s.err
}

func (s *stubRanker) Cancel(batchID uuid.UUID) bool { return s.cancelled }

type stubWorker struct {
	enqueued []uuid.UUID
}

func (s *stubWorker) Start(ctx context.Context) {}
func (s *stubWorker) Stop()                     {}
func (s *stubWorker) EnqueueBatch(batchID uuid.UUID) {
	s.enqueued = append(s.enqueued, batchID)
}

func newTestApp(repo *stubRepo, ranker *stubRanker, worker *stubWorker) *fiber.App {
	app := fiber.New()
	h := NewBatchHandler(repo, ranker, worker)
	app.Post("/batches", h.HandleCreateBatch)
	app.Get("/batches", h.HandleListBatches)
	app.Get("/batches/:id", h.HandleGetBatch)
	app.Post("/batches/:id/rank", h.HandleRankBatch)
	app.Post("/batches/:id/cancel", h.HandleCancelBatch)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeError(t *testing.T, resp *http.Response) models.ErrorResponse {
	t.Helper()
	var envelope models.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	return envelope
}

func TestHandleCreateBatch(t *testing.T) {
	repo := &stubRepo{}
	worker := &stubWorker{}
	app := newTestApp(repo, &stubRanker{}, worker)

	resp := doJSON(t, app, "POST", "/batches", models.CreateBatchRequest{
		Name: "august screening",
		Candidates: []models.CandidateInput{
			{Filename: "a.txt", Text: "first resume text"},
			{Filename: "b.txt", Text: "second resume text"},
		},
		JobDescription: "backend role description",
	})

	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var created models.Batch
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if created.Status != models.BatchPending {
		t.Errorf("status = %v, want pending", created.Status)
	}
	if len(created.JobDescriptions) != 1 {
		t.Errorf("got %d job descriptions, want 1", len(created.JobDescriptions))
	}

	if len(repo.createdDocs) != 2 {
		t.Fatalf("persisted %d documents, want 2", len(repo.createdDocs))
	}
	for i, doc := range repo.createdDocs {
		if doc.Position != i {
			t.Errorf("document %d: position = %d", i, doc.Position)
		}
	}

	if len(worker.enqueued) != 1 || worker.enqueued[0] != created.ID {
		t.Errorf("enqueued = %v, want [%s]", worker.enqueued, created.ID)
	}
}

func TestHandleCreateBatchValidation(t *testing.T) {
	tests := []struct {
		name string
		req  models.CreateBatchRequest
	}{
		{
			name: "missing name",
			req: models.CreateBatchRequest{
				Candidates:     []models.CandidateInput{{Filename: "a.txt", Text: "text"}},
				JobDescription: "role",
			},
		},
		{
			name: "no candidates",
			req: models.CreateBatchRequest{
				Name:           "batch",
				JobDescription: "role",
			},
		},
		{
			name: "missing job description",
			req: models.CreateBatchRequest{
				Name:       "batch",
				Candidates: []models.CandidateInput{{Filename: "a.txt", Text: "text"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			worker := &stubWorker{}
			app := newTestApp(&stubRepo{}, &stubRanker{}, worker)

			resp := doJSON(t, app, "POST", "/batches", tt.req)
			if resp.StatusCode != fiber.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			if envelope := decodeError(t, resp); envelope.Error != "INVALID_BATCH" {
				t.Errorf("error code = %q, want INVALID_BATCH", envelope.Error)
			}
			if len(worker.enqueued) != 0 {
				t.Error("rejected batch was enqueued")
			}
		})
	}
}

func TestHandleGetBatch(t *testing.T) {
	existing := &models.Batch{ID: uuid.New(), Name: "done", Status: models.BatchCompleted}
	app := newTestApp(&stubRepo{batch: existing}, &stubRanker{}, &stubWorker{})

	t.Run("found", func(t *testing.T) {
		resp := doJSON(t, app, "GET", "/batches/"+existing.ID.String(), nil)
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var batch models.Batch
		if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
			t.Fatal(err)
		}
		if batch.ID != existing.ID {
			t.Errorf("id = %s, want %s", batch.ID, existing.ID)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		resp := doJSON(t, app, "GET", "/batches/"+uuid.NewString(), nil)
		if resp.StatusCode != fiber.StatusNotFound {
			t.Fatalf("status = %d, want 404", resp.StatusCode)
		}
		if envelope := decodeError(t, resp); envelope.Error != "NOT_FOUND" {
			t.Errorf("error code = %q, want NOT_FOUND", envelope.Error)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		resp := doJSON(t, app, "GET", "/batches/not-a-uuid", nil)
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Fatalf("status = %d, want 400", resp.StatusCode)
		}
	})
}

func TestHandleRankBatch(t *testing.T) {
	ranked := &models.Batch{ID: uuid.New(), Status: models.BatchCompleted}
	app := newTestApp(&stubRepo{batch: ranked}, &stubRanker{batch: ranked}, &stubWorker{})

	resp := doJSON(t, app, "POST", "/batches/"+ranked.ID.String()+"/rank", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var batch models.Batch
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		t.Fatal(err)
	}
	if batch.Status != models.BatchCompleted {
		t.Errorf("status = %v, want completed", batch.Status)
	}
}

func TestHandleCancelBatch(t *testing.T) {
	id := uuid.New()

	t.Run("in flight", func(t *testing.T) {
		app := newTestApp(&stubRepo{}, &stubRanker{cancelled: true}, &stubWorker{})
		resp := doJSON(t, app, "POST", "/batches/"+id.String()+"/cancel", nil)
		if resp.StatusCode != fiber.StatusAccepted {
			t.Fatalf("status = %d, want 202", resp.StatusCode)
		}
	})

	t.Run("nothing in flight", func(t *testing.T) {
		app := newTestApp(&stubRepo{}, &stubRanker{cancelled: false}, &stubWorker{})
		resp := doJSON(t, app, "POST", "/batches/"+id.String()+"/cancel", nil)
		if resp.StatusCode != fiber.StatusConflict {
			t.Fatalf("status = %d, want 409", resp.StatusCode)
		}
		if envelope := decodeError(t, resp); envelope.Error != "BATCH_CANCELLED" {
			t.Errorf("error code = %q, want BATCH_CANCELLED", envelope.Error)
		}
	})
}
