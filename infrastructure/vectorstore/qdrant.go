package vectorstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/ports"
)

const (
	// QdrantDefaultPort is Qdrant's gRPC port.
	QdrantDefaultPort = 6334
	// QdrantDefaultCollection holds the document chunks.
	QdrantDefaultCollection = "ragqa_chunks"

	payloadChunkID = "chunk_id"
	payloadSource  = "source"
	payloadPage    = "page"
	payloadContent = "content"
)

// chunkNamespace derives point UUIDs from chunk IDs that are not UUIDs.
var chunkNamespace = uuid.MustParse("6f1c2b5e-8d4a-4c1e-9a57-3e0b9f2d7c41")

// qdrantAPI is the subset of *qdrant.Client the store uses.
type qdrantAPI interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, req *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, req *qdrant.CountPoints) (uint64, error)
	Close() error
}

// QdrantConfig configures a QdrantStore.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	// Dimension creates the collection eagerly when set. Otherwise it is
	// created on the first Upsert.
	Dimension int
}

// QdrantStore keeps chunks as points in one Qdrant collection with a
// single cosine dense vector.
type QdrantStore struct {
	client     qdrantAPI
	collection string

	mu    sync.Mutex
	ready bool
}

var _ ports.VectorStore = (*QdrantStore)(nil)

// NewQdrantStore connects to Qdrant over gRPC.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = QdrantDefaultPort
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, ports.NewStoreError("qdrant", "connect", err)
	}

	store := newQdrantStore(client, cfg.Collection)
	if cfg.Dimension > 0 {
		if err := store.ensureCollection(ctx, cfg.Dimension); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return store, nil
}

func newQdrantStore(client qdrantAPI, collection string) *QdrantStore {
	if collection == "" {
		collection = QdrantDefaultCollection
	}
	return &QdrantStore{client: client, collection: collection}
}

func (s *QdrantStore) ensureCollection(ctx context.Context, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return ports.NewStoreError("qdrant", "collection_exists", err)
	}
	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return ports.NewStoreError("qdrant", "create_collection", err)
		}
		_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      payloadSource,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return ports.NewStoreError("qdrant", "create_index", err)
		}
	}

	s.ready = true
	return nil
}

// pointID returns id itself when it is a UUID and a name-based UUID
// otherwise, so arbitrary chunk IDs map to stable points.
func pointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(chunkNamespace, []byte(id)).String()
}

// Upsert writes chunks as points, creating the collection on first use.
func (s *QdrantStore) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	dim, err := validateChunks(chunks)
	if err != nil {
		return ports.NewStoreError("qdrant", "upsert", err)
	}
	if err := s.ensureCollection(ctx, dim); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(c.ID)),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadChunkID: c.ID,
				payloadSource:  c.Source,
				payloadPage:    int64(c.Page),
				payloadContent: c.Content,
			}),
		}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return ports.NewStoreError("qdrant", "upsert", err)
	}
	return nil
}

// Search queries the collection for the k nearest points by cosine
// similarity. A missing collection yields no results.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, k int) ([]domain.RetrievedChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		if isMissingCollection(err) {
			return nil, nil
		}
		return nil, ports.NewStoreError("qdrant", "search", err)
	}

	results := make([]domain.RetrievedChunk, 0, len(points))
	for _, p := range points {
		results = append(results, scoredPointToChunk(p))
	}
	return rankTopK(results, k), nil
}

func scoredPointToChunk(p *qdrant.ScoredPoint) domain.RetrievedChunk {
	payload := p.GetPayload()
	id := payload[payloadChunkID].GetStringValue()
	if id == "" {
		id = p.GetId().GetUuid()
	}
	return domain.RetrievedChunk{
		Chunk: domain.Chunk{
			ID:      id,
			Source:  payload[payloadSource].GetStringValue(),
			Page:    int(payload[payloadPage].GetIntegerValue()),
			Content: payload[payloadContent].GetStringValue(),
		},
		Score: float64(p.GetScore()),
	}
}

// DeleteBySource deletes the points whose source payload equals source.
func (s *QdrantStore) DeleteBySource(ctx context.Context, source string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadSource, source)},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil && !isMissingCollection(err) {
		return ports.NewStoreError("qdrant", "delete", err)
	}
	return nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		if isMissingCollection(err) {
			return 0, nil
		}
		return 0, ports.NewStoreError("qdrant", "count", err)
	}
	return int(n), nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if err := s.client.Close(); err != nil {
		return ports.NewStoreError("qdrant", "close", err)
	}
	return nil
}

// isMissingCollection reports Qdrant's NotFound status, returned for
// operations on a collection that has not been created yet.
func isMissingCollection(err error) bool {
	return status.Code(err) == codes.NotFound
}
