package knowledge

import (
	"context"

	"github.com/google/uuid"
)

// Repository 知识索引的本地持久化接口
// 向量本身存放在向量库，这里保存文本与链接关系
type Repository interface {
	// SaveDocument 保存 Document，已存在则整体替换
	SaveDocument(ctx context.Context, doc *Document) error
	// GetDocument 按 ID 查询，未找到返回 (nil, nil)
	GetDocument(ctx context.Context, id uuid.UUID) (*Document, error)
	// ListDocuments 列出 Agent 可见的所有 Document（含共享）
	ListDocuments(ctx context.Context, agentID uuid.UUID) ([]*Document, error)
	// DeleteDocument 删除 Document 及其全部 Fragment
	DeleteDocument(ctx context.Context, id uuid.UUID) error

	// SaveFragments 批量保存 Fragment
	SaveFragments(ctx context.Context, fragments []*Fragment) error
	// DeleteFragmentsByDocument 删除某 Document 的全部 Fragment
	DeleteFragmentsByDocument(ctx context.Context, documentID uuid.UUID) error

	// CountDocuments 统计 Agent 可见的 Document 数量
	CountDocuments(ctx context.Context, agentID uuid.UUID) (int, error)
	// CountFragments 统计 Agent 可见的 Fragment 数量
	CountFragments(ctx context.Context, agentID uuid.UUID) (int, error)

	// Clear 清空 Agent 的全部知识数据（含共享作用域）
	Clear(ctx context.Context, agentID uuid.UUID) error
}
