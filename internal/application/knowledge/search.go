package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	domainknowledge "github.com/agentloop/backend/internal/domain/knowledge"
	"github.com/agentloop/backend/internal/infrastructure/config"
	"github.com/agentloop/backend/internal/infrastructure/embedding"
	"github.com/agentloop/backend/internal/infrastructure/log"
	"github.com/agentloop/backend/internal/infrastructure/vector"
)

// 检索默认参数
const (
	// DefaultMatchThreshold 默认相似度下限（含）
	DefaultMatchThreshold = 0.85
	// DefaultMatchCount 默认返回条数上限
	DefaultMatchCount = 5
)

// SearchService 知识检索服务
type SearchService struct {
	agentID         uuid.UUID
	embeddingClient *embedding.Client
	qdrantManager   *vector.QdrantManager
	logger          *slog.Logger
}

// NewSearchService 创建检索服务
func NewSearchService(
	agentCfg *config.AgentConfig,
	embeddingClient *embedding.Client,
	qdrantManager *vector.QdrantManager,
) (*SearchService, error) {
	agentID, err := uuid.Parse(agentCfg.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid agent id %q: %w", agentCfg.ID, err)
	}

	return &SearchService{
		agentID:         agentID,
		embeddingClient: embeddingClient,
		qdrantManager:   qdrantManager,
		logger:          log.NewModuleLogger("knowledge", "search"),
	}, nil
}

// SearchRequest 检索请求
type SearchRequest struct {
	Query string `json:"query"`
	// MatchThreshold 相似度下限（含），0 表示使用默认值
	MatchThreshold float32 `json:"match_threshold,omitempty"`
	// MatchCount 返回条数上限，0 表示使用默认值
	MatchCount int `json:"match_count,omitempty"`
	// IncludeDocuments 是否合并文档级命中
	IncludeDocuments bool `json:"include_documents,omitempty"`
}

// Search 语义检索
// 范围限于本 Agent 拥有或标记为共享的分块；零命中是正常结果
func (s *SearchService) Search(ctx context.Context, req *SearchRequest) ([]*domainknowledge.SearchResult, error) {
	threshold := req.MatchThreshold
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	count := req.MatchCount
	if count <= 0 {
		count = DefaultMatchCount
	}

	if req.Query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	queryVector, err := s.embeddingClient.EmbedText(req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	client := s.qdrantManager.GetClient()
	if client == nil {
		return nil, fmt.Errorf("qdrant client not initialized")
	}

	results, err := s.queryCollection(ctx, client, vector.FragmentCollection, queryVector, threshold, count, false)
	if err != nil {
		return nil, err
	}

	if req.IncludeDocuments {
		docResults, err := s.queryCollection(ctx, client, vector.DocumentCollection, queryVector, threshold, count, true)
		if err != nil {
			return nil, err
		}
		results = append(results, docResults...)
	}

	results = applyThreshold(results, threshold)
	results = sortAndLimit(results, count)

	s.logger.Debug("Search completed",
		"query_len", len(req.Query),
		"threshold", threshold,
		"results", len(results),
	)

	return results, nil
}

// queryCollection 查询单个集合
func (s *SearchService) queryCollection(
	ctx context.Context,
	client *qdrant.Client,
	collection string,
	queryVector []float32,
	threshold float32,
	count int,
	isDocument bool,
) ([]*domainknowledge.SearchResult, error) {
	limit := uint64(count)

	// 可见范围：本 Agent 拥有的点，或任何 Agent 的共享点
	filter := &qdrant.Filter{
		Should: []*qdrant.Condition{
			qdrant.NewMatch("agent_id", s.agentID.String()),
			qdrant.NewMatchBool("is_shared", true),
		},
	}

	hits, err := client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          &limit,
		Filter:         filter,
		ScoreThreshold: &threshold,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	results := make([]*domainknowledge.SearchResult, 0, len(hits))
	for _, hit := range hits {
		if r := hitToResult(hit, isDocument); r != nil {
			results = append(results, r)
		}
	}
	return results, nil
}

// hitToResult 把向量库命中转换为检索结果
func hitToResult(hit *qdrant.ScoredPoint, isDocument bool) *domainknowledge.SearchResult {
	payload := hit.GetPayload()
	if payload == nil {
		return nil
	}

	result := &domainknowledge.SearchResult{
		Similarity: hit.GetScore(),
		IsDocument: isDocument,
	}

	if val, ok := payload["fragment_id"]; ok {
		result.FragmentID = extractStringValue(val)
	}
	if val, ok := payload["original_id"]; ok {
		if id, err := uuid.Parse(extractStringValue(val)); err == nil {
			result.DocumentID = id
		}
	}
	if val, ok := payload["chunk_index"]; ok {
		result.ChunkIndex = int(extractIntValue(val))
	}
	if val, ok := payload["content"]; ok {
		result.Content = extractStringValue(val)
	}
	if val, ok := payload["original_path"]; ok {
		result.Path = extractStringValue(val)
	}
	if val, ok := payload["is_shared"]; ok {
		result.Shared = extractBoolValue(val)
	}

	return result
}

// applyThreshold 客户端侧阈值过滤，边界为闭区间
// 相似度恰好等于阈值的结果被保留
func applyThreshold(results []*domainknowledge.SearchResult, threshold float32) []*domainknowledge.SearchResult {
	filtered := make([]*domainknowledge.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Similarity >= threshold {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// sortAndLimit 按相似度降序并截断到上限
func sortAndLimit(results []*domainknowledge.SearchResult, count int) []*domainknowledge.SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > count {
		results = results[:count]
	}
	return results
}

// extractStringValue 从 qdrant.Value 提取字符串值
func extractStringValue(val *qdrant.Value) string {
	if val == nil {
		return ""
	}
	return val.GetStringValue()
}

// extractIntValue 从 qdrant.Value 提取整数值
func extractIntValue(val *qdrant.Value) int64 {
	if val == nil {
		return 0
	}
	if intVal := val.GetIntegerValue(); intVal != 0 {
		return intVal
	}
	if dblVal := val.GetDoubleValue(); dblVal != 0 {
		return int64(dblVal)
	}
	return 0
}

// extractBoolValue 从 qdrant.Value 提取布尔值
func extractBoolValue(val *qdrant.Value) bool {
	if val == nil {
		return false
	}
	return val.GetBoolValue()
}
