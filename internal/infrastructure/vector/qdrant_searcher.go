package vector

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"

	"github.com/qdrant/go-client/qdrant"

	domain "github.com/marshnicholas123/nlq-demo/internal/domain/retrieval"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/log"
)

// upsertBatchSize 单次 upsert 的点数
const upsertBatchSize = 256

// fingerprintKey 点 payload 中记录集合内容指纹的字段
const fingerprintKey = "fingerprint"

// pointsAPI 用到的 Qdrant 客户端方法
type pointsAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
}

// NewClient 连接外部 Qdrant 服务
func NewClient(cfg *config.QdrantConfig) (*qdrant.Client, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	return client, nil
}

// QdrantSearcher 以 Qdrant 集合作为语义检索后端
// 点 ID 即文档在集合中的下标
type QdrantSearcher struct {
	client     pointsAPI
	collection string
	logger     *slog.Logger
}

// NewQdrantSearcher 创建 Qdrant 检索后端
func NewQdrantSearcher(client pointsAPI, collection string) *QdrantSearcher {
	return &QdrantSearcher{
		client:     client,
		collection: collection,
		logger:     log.NewModuleLogger("vector", "qdrant"),
	}
}

// Fingerprint 集合内容指纹，覆盖模型、维度、文档与向量
func Fingerprint(coll *domain.Collection) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00", coll.Model, coll.Dimension)
	for _, doc := range coll.Documents {
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00", doc.Source, doc.Table, doc.Section, doc.Content)
	}
	buf := make([]byte, 0, 4*coll.Dimension)
	for _, vec := range coll.Embeddings {
		buf = buf[:0]
		for _, v := range vec {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Sync 确保集合内容与离线向量一致；所有点都带当前指纹时跳过
func (s *QdrantSearcher) Sync(ctx context.Context, coll *domain.Collection) error {
	if !coll.HasEmbeddings() {
		return fmt.Errorf("collection %s has no embeddings: %w", coll.Name, domain.ErrSemanticUnavailable)
	}
	fingerprint := Fingerprint(coll)

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", s.collection, err)
	}

	if exists {
		total, err := s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: s.collection,
			Exact:          qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("failed to count points in %s: %w", s.collection, err)
		}
		current, err := s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: s.collection,
			Filter: &qdrant.Filter{
				Must: []*qdrant.Condition{qdrant.NewMatch(fingerprintKey, fingerprint)},
			},
			Exact: qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("failed to count current points in %s: %w", s.collection, err)
		}
		want := uint64(len(coll.Embeddings))
		if total == want && current == want {
			s.logger.Info("Qdrant collection up to date",
				"collection", s.collection,
				"points", total,
			)
			return nil
		}
		s.logger.Info("Qdrant collection stale, rebuilding",
			"collection", s.collection,
			"points", total,
			"current_points", current,
		)
		if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
			return fmt.Errorf("failed to drop stale collection %s: %w", s.collection, err)
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(coll.Dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
	}

	for start := 0; start < len(coll.Embeddings); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(coll.Embeddings))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			doc := coll.Documents[i]
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(i)),
				Vectors: qdrant.NewVectors(coll.Embeddings[i]...),
				Payload: qdrant.NewValueMap(map[string]any{
					"source":       doc.Source,
					"table":        doc.Table,
					"section":      doc.Section,
					fingerprintKey: fingerprint,
				}),
			})
		}
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert points into %s: %w", s.collection, err)
		}
	}

	s.logger.Info("Qdrant collection synced",
		"collection", s.collection,
		"points", len(coll.Embeddings),
	)
	return nil
}

// Search 实现 retrieval.VectorSearcher
func (s *QdrantSearcher) Search(ctx context.Context, vector []float32, topK int) ([]domain.ScoredIndex, error) {
	limit := uint64(topK)
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query on %s failed: %w", s.collection, err)
	}

	out := make([]domain.ScoredIndex, 0, len(hits))
	for _, hit := range hits {
		out = append(out, domain.ScoredIndex{
			Index: int(hit.GetId().GetNum()),
			Score: float64(hit.GetScore()),
		})
	}
	return out, nil
}
