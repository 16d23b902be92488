package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/sourcegraph/conc/pool"

	"github.com/agentloop/backend/internal/domain/events"
	domainknowledge "github.com/agentloop/backend/internal/domain/knowledge"
	"github.com/agentloop/backend/internal/infrastructure/config"
	"github.com/agentloop/backend/internal/infrastructure/embedding"
	"github.com/agentloop/backend/internal/infrastructure/log"
	"github.com/agentloop/backend/internal/infrastructure/vector"
	"github.com/agentloop/backend/internal/infrastructure/websocket"
)

// embedConcurrency 分块向量化的并发上限
// 既并行化工作，也限制对 Embedding API 的瞬时压力
const embedConcurrency = 10

// IndexerService 知识文档索引服务
type IndexerService struct {
	agentID         uuid.UUID
	repo            domainknowledge.Repository
	embeddingClient *embedding.Client
	chunker         *Chunker
	qdrantManager   *vector.QdrantManager
	hub             *websocket.Hub
	logger          *slog.Logger
}

var _ events.Handler = (*IndexerService)(nil)

// NewIndexerService 创建索引服务
func NewIndexerService(
	agentCfg *config.AgentConfig,
	repo domainknowledge.Repository,
	embeddingClient *embedding.Client,
	chunker *Chunker,
	qdrantManager *vector.QdrantManager,
	hub *websocket.Hub,
) (*IndexerService, error) {
	agentID, err := uuid.Parse(agentCfg.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid agent id %q: %w", agentCfg.ID, err)
	}

	return &IndexerService{
		agentID:         agentID,
		repo:            repo,
		embeddingClient: embeddingClient,
		chunker:         chunker,
		qdrantManager:   qdrantManager,
		hub:             hub,
		logger:          log.NewModuleLogger("knowledge", "indexer"),
	}, nil
}

// Subscribe 注册到事件总线
func (s *IndexerService) Subscribe(eventBus events.EventBus) {
	eventBus.Subscribe(events.KnowledgeFileChanged, s)
	eventBus.Subscribe(events.KnowledgeFileRemoved, s)
}

// HandleEvent 实现 events.Handler
func (s *IndexerService) HandleEvent(event events.Event) error {
	e, ok := event.(*events.KnowledgeFileEvent)
	if !ok {
		return nil
	}

	ctx := context.Background()
	if e.Removed {
		return s.RemoveFile(ctx, e.Path, e.Shared)
	}
	return s.IndexFile(ctx, e.Path, e.Shared)
}

// IndexFile 索引一份文档
// 内容未变化时短路返回；变化时整体替换旧的 Document 与 Fragment
func (s *IndexerService) IndexFile(ctx context.Context, path string, shared bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read document %s: %w", path, err)
	}

	text := NormalizeText(string(raw))
	if text == "" {
		s.logger.Debug("Document is empty after normalization, skipping", "path", path)
		return nil
	}

	docID := domainknowledge.DocumentID(s.agentID, path, shared)
	contentHash := hashContent(text)

	existing, err := s.repo.GetDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("look up document: %w", err)
	}
	if existing != nil && existing.ContentHash == contentHash {
		s.logger.Debug("Document unchanged, skipping", "path", path, "document_id", docID)
		return nil
	}

	chunks := s.chunker.Split(text)

	// 整份文档一条向量
	docVector, err := s.embeddingClient.EmbedText(text)
	if err != nil {
		return fmt.Errorf("embed document: %w", err)
	}

	// 分块向量化：有界并发组，结果按序号归位
	chunkVectors := make([][]float32, len(chunks))
	p := pool.New().WithMaxGoroutines(embedConcurrency).WithErrors()
	for i := range chunks {
		i := i
		p.Go(func() error {
			v, err := s.embeddingClient.EmbedText(chunks[i])
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			chunkVectors[i] = v
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	// 先清掉旧状态再写入新状态（内容变化时整体替换）
	if existing != nil {
		if err := s.deleteVectors(ctx, docID); err != nil {
			return err
		}
		if err := s.repo.DeleteFragmentsByDocument(ctx, docID); err != nil {
			return fmt.Errorf("delete stale fragments: %w", err)
		}
	}

	now := time.Now().UnixMilli()
	fragments := make([]*domainknowledge.Fragment, len(chunks))
	for i, chunk := range chunks {
		fragments[i] = &domainknowledge.Fragment{
			ID:         domainknowledge.FragmentID(docID, i),
			DocumentID: docID,
			AgentID:    s.agentID,
			ChunkIndex: i,
			Content:    chunk,
			PointID:    domainknowledge.FragmentPointID(docID, i),
			Shared:     shared,
			CreatedAt:  now,
		}
	}

	doc := &domainknowledge.Document{
		ID:            docID,
		AgentID:       s.agentID,
		Path:          path,
		ContentHash:   contentHash,
		Shared:        shared,
		Source:        "file",
		DocType:       strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		FragmentCount: len(fragments),
		IndexedAt:     now,
	}

	if err := s.upsertVectors(ctx, doc, text, docVector, fragments, chunkVectors); err != nil {
		return err
	}

	if err := s.repo.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	if err := s.repo.SaveFragments(ctx, fragments); err != nil {
		return fmt.Errorf("save fragments: %w", err)
	}

	s.logger.Info("Document indexed",
		"path", path,
		"document_id", docID,
		"shared", shared,
		"fragments", len(fragments),
	)

	if s.hub != nil {
		s.hub.BroadcastActivity(websocket.ActivityDocumentIndexed, map[string]any{
			"path":      path,
			"shared":    shared,
			"fragments": len(fragments),
		})
	}

	return nil
}

// RemoveFile 移除一份文档的全部索引数据
func (s *IndexerService) RemoveFile(ctx context.Context, path string, shared bool) error {
	docID := domainknowledge.DocumentID(s.agentID, path, shared)

	if err := s.deleteVectors(ctx, docID); err != nil {
		return err
	}
	if err := s.repo.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	s.logger.Info("Document removed", "path", path, "document_id", docID)

	if s.hub != nil {
		s.hub.BroadcastActivity(websocket.ActivityDocumentRemoved, map[string]any{
			"path":   path,
			"shared": shared,
		})
	}

	return nil
}

// Stats 知识库统计
type Stats struct {
	Documents int `json:"documents"`
	Fragments int `json:"fragments"`
}

// GetStats 统计 Agent 可见的文档与分块数量
func (s *IndexerService) GetStats(ctx context.Context) (*Stats, error) {
	docs, err := s.repo.CountDocuments(ctx, s.agentID)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	frags, err := s.repo.CountFragments(ctx, s.agentID)
	if err != nil {
		return nil, fmt.Errorf("count fragments: %w", err)
	}
	return &Stats{Documents: docs, Fragments: frags}, nil
}

// Clear 清空知识库：删除向量库点位和本地记录
func (s *IndexerService) Clear(ctx context.Context) error {
	client := s.qdrantManager.GetClient()
	if client == nil {
		return fmt.Errorf("qdrant client not initialized")
	}

	// 只清除本 Agent 拥有的点位，共享作用域的点也属于写入它的 Agent
	for _, collection := range []string{vector.DocumentCollection, vector.FragmentCollection} {
		_, err := client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
				Must: []*qdrant.Condition{
					qdrant.NewMatch("agent_id", s.agentID.String()),
				},
			}),
		})
		if err != nil {
			return fmt.Errorf("clear collection %s: %w", collection, err)
		}
	}

	if err := s.repo.Clear(ctx, s.agentID); err != nil {
		return fmt.Errorf("clear repository: %w", err)
	}

	s.logger.Info("Knowledge base cleared", "agent_id", s.agentID)
	return nil
}

// upsertVectors 写入文档点与分块点
func (s *IndexerService) upsertVectors(
	ctx context.Context,
	doc *domainknowledge.Document,
	text string,
	docVector []float32,
	fragments []*domainknowledge.Fragment,
	chunkVectors [][]float32,
) error {
	client := s.qdrantManager.GetClient()
	if client == nil {
		return fmt.Errorf("qdrant client not initialized")
	}

	docPoint := &qdrant.PointStruct{
		Id:      qdrant.NewID(doc.ID.String()),
		Vectors: qdrant.NewVectors(docVector...),
		Payload: qdrant.NewValueMap(map[string]interface{}{
			"original_id":   doc.ID.String(),
			"original_path": doc.Path,
			"agent_id":      doc.AgentID.String(),
			"is_shared":     doc.Shared,
			"is_chunk":      false,
			"content":       text,
		}),
	}

	if _, err := client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: vector.DocumentCollection,
		Points:         []*qdrant.PointStruct{docPoint},
	}); err != nil {
		return fmt.Errorf("upsert document point: %w", err)
	}

	points := make([]*qdrant.PointStruct, len(fragments))
	for i, frag := range fragments {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(frag.PointID.String()),
			Vectors: qdrant.NewVectors(chunkVectors[i]...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				"fragment_id":   frag.ID,
				"original_id":   frag.DocumentID.String(),
				"original_path": doc.Path,
				"chunk_index":   int64(frag.ChunkIndex),
				"agent_id":      frag.AgentID.String(),
				"is_shared":     frag.Shared,
				"is_chunk":      true,
				"content":       frag.Content,
			}),
		}
	}

	if len(points) > 0 {
		if _, err := client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: vector.FragmentCollection,
			Points:         points,
		}); err != nil {
			return fmt.Errorf("upsert fragment points: %w", err)
		}
	}

	return nil
}

// deleteVectors 删除某 Document 的文档点与全部分块点
func (s *IndexerService) deleteVectors(ctx context.Context, docID uuid.UUID) error {
	client := s.qdrantManager.GetClient()
	if client == nil {
		return fmt.Errorf("qdrant client not initialized")
	}

	if _, err := client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: vector.DocumentCollection,
		Points:         qdrant.NewPointsSelector(qdrant.NewID(docID.String())),
	}); err != nil {
		return fmt.Errorf("delete document point: %w", err)
	}

	if _, err := client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: vector.FragmentCollection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("original_id", docID.String()),
			},
		}),
	}); err != nil {
		return fmt.Errorf("delete fragment points: %w", err)
	}

	return nil
}

// NormalizeText 读入文本的规范化
// 去 BOM、统一换行、剔除非法 UTF-8、修剪首尾空白
func NormalizeText(text string) string {
	text = strings.TrimPrefix(text, "\uFEFF")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ToValidUTF8(text, "")
	return strings.TrimSpace(text)
}

// hashContent 归一化文本的 SHA-256
func hashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
