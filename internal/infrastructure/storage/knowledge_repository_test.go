package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloop/backend/internal/domain/knowledge"
)

var testAgentID = uuid.MustParse("7b9d2f3a-1c4e-4a8b-9f6d-0e5a3c2b1d4f")

func newTestDocument(path string, shared bool) *knowledge.Document {
	return &knowledge.Document{
		ID:            knowledge.DocumentID(testAgentID, path, shared),
		AgentID:       testAgentID,
		Path:          path,
		ContentHash:   "abc123",
		Shared:        shared,
		Source:        "filesystem",
		DocType:       "md",
		FragmentCount: 2,
		IndexedAt:     1000,
	}
}

func newTestFragments(doc *knowledge.Document, n int) []*knowledge.Fragment {
	frags := make([]*knowledge.Fragment, 0, n)
	for i := 0; i < n; i++ {
		frags = append(frags, &knowledge.Fragment{
			ID:         knowledge.FragmentID(doc.ID, i),
			DocumentID: doc.ID,
			AgentID:    doc.AgentID,
			ChunkIndex: i,
			Content:    "chunk",
			PointID:    knowledge.FragmentPointID(doc.ID, i),
			Shared:     doc.Shared,
			CreatedAt:  1000,
		})
	}
	return frags
}

func TestKnowledgeRepository_SaveAndGetDocument(t *testing.T) {
	repo := NewKnowledgeRepository(openTestDB(t))
	ctx := context.Background()

	doc := newTestDocument("/docs/guide.md", false)
	require.NoError(t, repo.SaveDocument(ctx, doc))

	got, err := repo.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, doc.Path, got.Path)
	assert.Equal(t, doc.ContentHash, got.ContentHash)
	assert.False(t, got.Shared)
}

func TestKnowledgeRepository_SaveDocumentReplaces(t *testing.T) {
	repo := NewKnowledgeRepository(openTestDB(t))
	ctx := context.Background()

	doc := newTestDocument("/docs/guide.md", false)
	require.NoError(t, repo.SaveDocument(ctx, doc))

	// 内容变更后同一 ID 整体替换
	doc.ContentHash = "def456"
	doc.FragmentCount = 5
	require.NoError(t, repo.SaveDocument(ctx, doc))

	got, err := repo.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "def456", got.ContentHash)
	assert.Equal(t, 5, got.FragmentCount)

	docs, err := repo.ListDocuments(ctx, testAgentID)
	require.NoError(t, err)
	assert.Len(t, docs, 1, "replace must not create a second row")
}

func TestKnowledgeRepository_SharedAndPrivateScopesCoexist(t *testing.T) {
	repo := NewKnowledgeRepository(openTestDB(t))
	ctx := context.Background()

	private := newTestDocument("/docs/guide.md", false)
	shared := newTestDocument("/docs/guide.md", true)
	// isShared 参与 ID 哈希，同一路径在两个作用域是不同 Document
	require.NotEqual(t, private.ID, shared.ID)

	require.NoError(t, repo.SaveDocument(ctx, private))
	require.NoError(t, repo.SaveDocument(ctx, shared))

	count, err := repo.CountDocuments(ctx, testAgentID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestKnowledgeRepository_DeleteDocumentCascades(t *testing.T) {
	repo := NewKnowledgeRepository(openTestDB(t))
	ctx := context.Background()

	doc := newTestDocument("/docs/guide.md", false)
	require.NoError(t, repo.SaveDocument(ctx, doc))
	require.NoError(t, repo.SaveFragments(ctx, newTestFragments(doc, 3)))

	count, err := repo.CountFragments(ctx, testAgentID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, repo.DeleteDocument(ctx, doc.ID))

	got, err := repo.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	count, err = repo.CountFragments(ctx, testAgentID)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "fragments must be removed with their document")
}

func TestKnowledgeRepository_Clear(t *testing.T) {
	repo := NewKnowledgeRepository(openTestDB(t))
	ctx := context.Background()

	doc := newTestDocument("/docs/a.md", false)
	sharedDoc := newTestDocument("/docs/b.md", true)
	require.NoError(t, repo.SaveDocument(ctx, doc))
	require.NoError(t, repo.SaveDocument(ctx, sharedDoc))
	require.NoError(t, repo.SaveFragments(ctx, newTestFragments(doc, 2)))

	require.NoError(t, repo.Clear(ctx, testAgentID))

	docCount, err := repo.CountDocuments(ctx, testAgentID)
	require.NoError(t, err)
	assert.Equal(t, 0, docCount)

	fragCount, err := repo.CountFragments(ctx, testAgentID)
	require.NoError(t, err)
	assert.Equal(t, 0, fragCount)
}
