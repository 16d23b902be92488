package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentloop/backend/internal/domain/knowledge"
)

// 确保 KnowledgeRepositoryImpl 实现了 knowledge.Repository 接口
var _ knowledge.Repository = (*KnowledgeRepositoryImpl)(nil)

// KnowledgeRepositoryImpl 知识索引仓库实现
type KnowledgeRepositoryImpl struct {
	db *sql.DB
}

// NewKnowledgeRepository 创建知识索引仓库实例
func NewKnowledgeRepository(db *sql.DB) knowledge.Repository {
	return &KnowledgeRepositoryImpl{db: db}
}

// SaveDocument 保存 Document
// 内容变更时整体替换同一 ID 的旧记录
func (r *KnowledgeRepositoryImpl) SaveDocument(ctx context.Context, doc *knowledge.Document) error {
	shared := 0
	if doc.Shared {
		shared = 1
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO knowledge_documents
		 (id, agent_id, path, content_hash, is_shared, source, doc_type, fragment_count, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID.String(),
		doc.AgentID.String(),
		doc.Path,
		doc.ContentHash,
		shared,
		doc.Source,
		doc.DocType,
		doc.FragmentCount,
		doc.IndexedAt,
	)
	return err
}

// GetDocument 按 ID 查询，未找到返回 (nil, nil)
func (r *KnowledgeRepositoryImpl) GetDocument(ctx context.Context, id uuid.UUID) (*knowledge.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, agent_id, path, content_hash, is_shared, source, doc_type, fragment_count, indexed_at
		 FROM knowledge_documents WHERE id = ?`,
		id.String(),
	)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return doc, err
}

// ListDocuments 列出 Agent 可见的所有 Document（自有 + 共享）
func (r *KnowledgeRepositoryImpl) ListDocuments(ctx context.Context, agentID uuid.UUID) ([]*knowledge.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, agent_id, path, content_hash, is_shared, source, doc_type, fragment_count, indexed_at
		 FROM knowledge_documents WHERE agent_id = ? OR is_shared = 1 ORDER BY indexed_at DESC`,
		agentID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*knowledge.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument 删除 Document 及其全部 Fragment
func (r *KnowledgeRepositoryImpl) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM knowledge_fragments WHERE document_id = ?`, id.String()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM knowledge_documents WHERE id = ?`, id.String()); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveFragments 批量保存 Fragment
func (r *KnowledgeRepositoryImpl) SaveFragments(ctx context.Context, fragments []*knowledge.Fragment) error {
	if len(fragments) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO knowledge_fragments
		 (id, document_id, agent_id, chunk_index, content, point_id, is_shared, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, frag := range fragments {
		shared := 0
		if frag.Shared {
			shared = 1
		}
		if _, err := stmt.ExecContext(ctx,
			frag.ID,
			frag.DocumentID.String(),
			frag.AgentID.String(),
			frag.ChunkIndex,
			frag.Content,
			frag.PointID.String(),
			shared,
			frag.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteFragmentsByDocument 删除某 Document 的全部 Fragment
func (r *KnowledgeRepositoryImpl) DeleteFragmentsByDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM knowledge_fragments WHERE document_id = ?`, documentID.String())
	return err
}

// CountDocuments 统计 Agent 可见的 Document 数量
func (r *KnowledgeRepositoryImpl) CountDocuments(ctx context.Context, agentID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM knowledge_documents WHERE agent_id = ? OR is_shared = 1`,
		agentID.String(),
	).Scan(&count)
	return count, err
}

// CountFragments 统计 Agent 可见的 Fragment 数量
func (r *KnowledgeRepositoryImpl) CountFragments(ctx context.Context, agentID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM knowledge_fragments WHERE agent_id = ? OR is_shared = 1`,
		agentID.String(),
	).Scan(&count)
	return count, err
}

// Clear 清空 Agent 的全部知识数据
func (r *KnowledgeRepositoryImpl) Clear(ctx context.Context, agentID uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM knowledge_fragments WHERE agent_id = ? OR is_shared = 1`, agentID.String()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM knowledge_documents WHERE agent_id = ? OR is_shared = 1`, agentID.String()); err != nil {
		return err
	}
	return tx.Commit()
}

// scanDocument 从查询结果扫描一条 Document
func scanDocument(row rowScanner) (*knowledge.Document, error) {
	var (
		idStr, agentIDStr string
		shared            int
		doc               knowledge.Document
	)

	if err := row.Scan(&idStr, &agentIDStr, &doc.Path, &doc.ContentHash, &shared,
		&doc.Source, &doc.DocType, &doc.FragmentCount, &doc.IndexedAt); err != nil {
		return nil, err
	}

	var err error
	if doc.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid document id %q: %w", idStr, err)
	}
	if doc.AgentID, err = uuid.Parse(agentIDStr); err != nil {
		return nil, fmt.Errorf("invalid agent id %q: %w", agentIDStr, err)
	}
	doc.Shared = shared == 1

	return &doc, nil
}
