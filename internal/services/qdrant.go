package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"cvintel/internal/models"
)

// CandidateIndex is the vector collection of scored candidates used by
// the similarity feature.
type CandidateIndex interface {
	InitCollection() error
	UpsertCandidate(ctx context.Context, point CandidatePoint, embedding []float32) error
	SearchSimilar(ctx context.Context, queryEmbedding []float32, limit int) ([]models.SimilarCandidate, error)
}

// CandidatePoint is the payload stored alongside a candidate's vector.
type CandidatePoint struct {
	CandidateID string
	BatchID     string
	Filename    string
	FinalScore  int
}

type qdrantIndex struct {
	client         *qdrant.Client
	collectionName string
	vectorSize     uint64
}

func NewQdrantIndex(urlStr, apiKey, collectionName string) (CandidateIndex, error) {
	// Parse URL to extract host, port, and TLS usage
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsed.Hostname()
	useTLS := parsed.Scheme == "https"

	// For gRPC client, use port 6334 by default (gRPC port)
	port := 6334
	if p := parsed.Port(); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &qdrantIndex{
		client:         client,
		collectionName: collectionName,
		vectorSize:     768, // text-embedding-004 size
	}, nil
}

// InitCollection implements CandidateIndex.
func (q *qdrantIndex) InitCollection() error {
	ctx := context.Background()

	exists, err := q.client.CollectionExists(ctx, q.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// UpsertCandidate implements CandidateIndex.
func (q *qdrantIndex) UpsertCandidate(ctx context.Context, point CandidatePoint, embedding []float32) error {
	pointID := uuid.New()

	p := &qdrant.PointStruct{
		Id:      qdrant.NewIDNum(uint64(pointID.ID())),
		Vectors: qdrant.NewVectors(embedding...),
		Payload: qdrant.NewValueMap(map[string]interface{}{
			"candidate_id": point.CandidateID,
			"batch_id":     point.BatchID,
			"filename":     point.Filename,
			"final_score":  point.FinalScore,
		}),
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         []*qdrant.PointStruct{p},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

// SearchSimilar implements CandidateIndex.
func (q *qdrantIndex) SearchSimilar(ctx context.Context, queryEmbedding []float32, limit int) ([]models.SimilarCandidate, error) {
	searchResult, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collectionName,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var results []models.SimilarCandidate
	for _, point := range searchResult {
		payload := point.Payload

		result := models.SimilarCandidate{
			Similarity: point.Score,
		}

		if v, ok := payload["candidate_id"]; ok {
			if val, ok := v.GetKind().(*qdrant.Value_StringValue); ok {
				result.CandidateID = val.StringValue
			}
		}
		if v, ok := payload["batch_id"]; ok {
			if val, ok := v.GetKind().(*qdrant.Value_StringValue); ok {
				result.BatchID = val.StringValue
			}
		}
		if v, ok := payload["filename"]; ok {
			if val, ok := v.GetKind().(*qdrant.Value_StringValue); ok {
				result.Filename = val.StringValue
			}
		}
		if v, ok := payload["final_score"]; ok {
			if val, ok := v.GetKind().(*qdrant.Value_IntegerValue); ok {
				result.FinalScore = int(val.IntegerValue)
			}
		}

		results = append(results, result)
	}

	return results, nil
}
