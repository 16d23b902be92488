// Package knowledge 定义知识索引的领域模型
// Document 是整份文件，Fragment 是它的分块；二者分别建立向量索引，
// 支撑文档级与片段级两种粒度的语义召回
package knowledge

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/agentloop/backend/internal/domain/identity"
)

// sharedPathPrefix 共享文档参与 ID 哈希时的前缀
// isShared 进入哈希输入，同一内容可以在私有/共享两个作用域
// 作为不同 Document 共存而不冲突
const sharedPathPrefix = "shared-knowledge-"

// DocumentID 从 (文件路径, 是否共享) 确定性派生 Document ID
func DocumentID(agentID uuid.UUID, path string, shared bool) uuid.UUID {
	input := path
	if shared {
		input = sharedPathPrefix + path
	}
	return identity.Derive(agentID, input)
}

// FragmentID 拼装 Fragment 逻辑 ID
func FragmentID(documentID uuid.UUID, index int) string {
	return fmt.Sprintf("%s-chunk-%d", documentID, index)
}

// FragmentPointID 派生 Fragment 在向量库中的点 ID
// 向量库要求点 ID 是 UUID，逻辑 ID 随 payload 存储
func FragmentPointID(documentID uuid.UUID, index int) uuid.UUID {
	return identity.Derive(documentID, fmt.Sprintf("chunk-%d", index))
}

// Document 一份完整的已索引文件
type Document struct {
	// ID 确定性派生：hash(文件路径, 是否共享)
	ID uuid.UUID `json:"id"`
	// AgentID 所属 Agent
	AgentID uuid.UUID `json:"agentId"`
	// Path 源文件路径
	Path string `json:"path"`
	// ContentHash 归一化后文本的 SHA-256，用于变更检测
	ContentHash string `json:"contentHash"`
	// Shared 是否跨 Agent 共享
	Shared bool `json:"shared"`
	// Source 来源标识
	Source string `json:"source"`
	// DocType 文档类型（扩展名）
	DocType string `json:"docType"`
	// FragmentCount 分块数量
	FragmentCount int `json:"fragmentCount"`
	// IndexedAt 索引时间（Unix 毫秒）
	IndexedAt int64 `json:"indexedAt"`
}

// Fragment Document 的一个分块
// 每个 Fragment 恰好属于一个 Document，按 ChunkIndex 有序
type Fragment struct {
	// ID 逻辑 ID：<documentId>-chunk-<index>
	ID string `json:"id"`
	// DocumentID 所属 Document（payload 中的 originalId）
	DocumentID uuid.UUID `json:"documentId"`
	// AgentID 所属 Agent
	AgentID uuid.UUID `json:"agentId"`
	// ChunkIndex 在文档中的序号
	ChunkIndex int `json:"chunkIndex"`
	// Content 分块文本
	Content string `json:"content"`
	// PointID 向量库点 ID
	PointID uuid.UUID `json:"pointId"`
	// Shared 是否跨 Agent 共享（继承自 Document）
	Shared bool `json:"shared"`
	// CreatedAt 创建时间（Unix 毫秒）
	CreatedAt int64 `json:"createdAt"`
}

// SearchResult 一条检索命中
type SearchResult struct {
	// FragmentID 命中的 Fragment 逻辑 ID（文档级命中时为空）
	FragmentID string `json:"fragment_id,omitempty"`
	// DocumentID 所属 Document
	DocumentID uuid.UUID `json:"document_id"`
	// ChunkIndex 分块序号
	ChunkIndex int `json:"chunk_index"`
	// Content 命中文本
	Content string `json:"content"`
	// Path 源文件路径
	Path string `json:"path"`
	// Shared 是否共享作用域
	Shared bool `json:"shared"`
	// Similarity 余弦相似度
	Similarity float32 `json:"similarity"`
	// IsDocument 是否文档级命中
	IsDocument bool `json:"is_document,omitempty"`
}
