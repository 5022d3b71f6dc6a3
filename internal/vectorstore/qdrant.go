package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks pdfchat/internal/vectorstore VectorStore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"pdfchat/internal/contextutil"
	"pdfchat/internal/ingest"
)

// Point represents a vector point with metadata.
type Point struct {
	ID   string
	Vec  []float32
	Meta map[string]any
}

// SearchResult represents a search result from vector search.
type SearchResult struct {
	PointID string
	Score   float32
	Meta    map[string]any
}

// VectorStore defines the collection-level operations the qdrant backend needs.
type VectorStore interface {
	// EnsureCollection creates the collection with cosine distance if it does not exist.
	EnsureCollection(ctx context.Context, collection string, vectorSize int) error
	// DeleteCollection drops the collection and its points.
	DeleteCollection(ctx context.Context, collection string) error
	// Upsert inserts or updates points in the collection.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search returns the k points closest to query.
	Search(ctx context.Context, collection string, query []float32, k int) ([]SearchResult, error)
}

// QdrantStore implements VectorStore using Qdrant.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore creates a new Qdrant vector store client.
// urlStr should be in the format "http://host:port" (e.g., "http://localhost:6333").
// The gRPC port (typically 6334) will be derived from the HTTP port.
func NewQdrantStore(urlStr string) (*QdrantStore, error) {
	host, port, err := grpcAddress(urlStr)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantStore{
		client: client,
	}, nil
}

// grpcAddress derives the gRPC host and port from the Qdrant HTTP URL.
func grpcAddress(urlStr string) (string, int, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334 // Default gRPC port
	if parsedURL.Port() != "" {
		httpPort, err := strconv.Atoi(parsedURL.Port())
		if err == nil {
			// gRPC port is typically HTTP port + 1
			port = httpPort + 1
		}
	}
	return host, port, nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// Health checks that the Qdrant server answers.
func (s *QdrantStore) Health(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	return nil
}

// Upsert inserts or updates points in the collection and waits for them to be searchable.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, point := range points {
		qdrantPoint := &qdrant.PointStruct{
			Id:      qdrant.NewID(point.ID),
			Vectors: qdrant.NewVectors(point.Vec...),
		}

		if len(point.Meta) > 0 {
			qdrantPoint.Payload = qdrant.NewValueMap(point.Meta)
		}

		qdrantPoints = append(qdrantPoints, qdrantPoint)
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrantPoints,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to upsert points", "collection", collection, "count", len(points), "error", err)
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	logger.DebugContext(ctx, "upserted points", "collection", collection, "count", len(points))
	return nil
}

// Search performs a similarity search.
func (s *QdrantStore) Search(ctx context.Context, collection string, query []float32, k int) ([]SearchResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}

	limit := uint64(k)
	scoredPoints, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to search points", "collection", collection, "k", k, "error", err)
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	results := make([]SearchResult, 0, len(scoredPoints))
	for _, result := range scoredPoints {
		pointID := ""
		if result.Id != nil {
			pointID = result.Id.GetUuid()
		}

		meta := make(map[string]any)
		if result.Payload != nil {
			meta = convertPayloadToMap(result.Payload)
		}

		results = append(results, SearchResult{
			PointID: pointID,
			Score:   result.Score,
			Meta:    meta,
		})
	}

	logger.DebugContext(ctx, "search completed", "collection", collection, "k", k, "results", len(results))
	return results, nil
}

// DeleteCollection drops a collection.
func (s *QdrantStore) DeleteCollection(ctx context.Context, collection string) error {
	if err := s.client.DeleteCollection(ctx, collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// CollectionExists checks if a collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	return exists, nil
}

// EnsureCollection ensures a collection exists with the specified vector size.
func (s *QdrantStore) EnsureCollection(ctx context.Context, collection string, vectorSize int) error {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := s.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	logger.InfoContext(ctx, "collection created", "collection", collection, "vector_size", vectorSize)
	return nil
}

// convertPayloadToMap converts Qdrant payload to map[string]any.
func convertPayloadToMap(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		result[k] = convertValue(v)
	}
	return result
}

// convertValue converts a Qdrant Value to Go any type.
func convertValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	default:
		return nil
	}
}

// upsertBatchSize bounds the number of points per Upsert request.
const upsertBatchSize = 256

// QdrantBuilder builds indexes stored in a dedicated Qdrant collection each.
// Chunk text and the exact vectors stay in process; Qdrant supplies candidates.
type QdrantBuilder struct {
	store  VectorStore
	prefix string
}

// NewQdrantBuilder creates a builder whose collections are named prefix_<uuid>.
func NewQdrantBuilder(store VectorStore, prefix string) *QdrantBuilder {
	return &QdrantBuilder{store: store, prefix: prefix}
}

// Name returns "qdrant".
func (b *QdrantBuilder) Name() string { return "qdrant" }

// Build creates a new collection and uploads one point per chunk.
// The collection is dropped again if the upload fails.
func (b *QdrantBuilder) Build(ctx context.Context, chunks []ingest.Chunk, vectors [][]float32) (Index, error) {
	logger := contextutil.LoggerFromContext(ctx)

	dim, err := validate(chunks, vectors)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return Empty(), nil
	}

	collection := fmt.Sprintf("%s_%s", b.prefix, uuid.NewString())
	if err := b.store.EnsureCollection(ctx, collection, dim); err != nil {
		return nil, err
	}

	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(chunks))
		points := make([]Point, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, Point{
				ID:  uuid.NewString(),
				Vec: vectors[i],
				Meta: map[string]any{
					"position":    i,
					"chunk_index": chunks[i].Index,
					"page":        chunks[i].Page,
				},
			})
		}
		if err := b.store.Upsert(ctx, collection, points); err != nil {
			if delErr := b.store.DeleteCollection(ctx, collection); delErr != nil {
				logger.WarnContext(ctx, "failed to drop partial collection", "collection", collection, "error", delErr)
			}
			return nil, err
		}
	}

	logger.InfoContext(ctx, "qdrant index built", "collection", collection, "chunks", len(chunks), "dimension", dim)
	return &qdrantIndex{
		store:      b.store,
		collection: collection,
		scorer:     newExactScorer(chunks, vectors, dim),
	}, nil
}

type qdrantIndex struct {
	store      VectorStore
	collection string
	scorer     *exactScorer
	guard      closeGuard
}

func (i *qdrantIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if err := checkQuery(query, k, i.scorer.dim); err != nil {
		return nil, err
	}
	return i.guard.search(ctx, i.scorer, query, k, func() ([]Hit, error) {
		return searchCandidates(ctx, i.scorer, query, k, i.fetch)
	})
}

// fetch returns the positions of Qdrant's top n points.
func (i *qdrantIndex) fetch(ctx context.Context, query []float32, n int) ([]int, error) {
	results, err := i.store.Search(ctx, i.collection, query, n)
	if err != nil {
		return nil, err
	}
	positions := make([]int, 0, len(results))
	for _, r := range results {
		if p, ok := r.Meta["position"].(int64); ok {
			positions = append(positions, int(p))
		}
	}
	return positions, nil
}

func (i *qdrantIndex) Len() int       { return len(i.scorer.chunks) }
func (i *qdrantIndex) Dimension() int { return i.scorer.dim }

// Close drops the index's collection after searches already running on it return.
func (i *qdrantIndex) Close(ctx context.Context) error {
	return i.guard.close(func() error {
		return i.store.DeleteCollection(ctx, i.collection)
	})
}
