package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloop/backend/internal/domain/messaging"
	"github.com/agentloop/backend/internal/infrastructure/config"
)

// openTestDB 在临时目录创建测试数据库
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := OpenDB(&config.DatabaseConfig{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func newTestMemory(id, roomID uuid.UUID) *messaging.Memory {
	return &messaging.Memory{
		ID:       id,
		AgentID:  uuid.MustParse("7b9d2f3a-1c4e-4a8b-9f6d-0e5a3c2b1d4f"),
		EntityID: uuid.New(),
		RoomID:   roomID,
		WorldID:  uuid.New(),
		Content:  messaging.Content{Text: "hello", Source: "discord"},
		Metadata: messaging.MemoryMetadata{SourceID: "m1", SourceType: "discord"},
		CreatedAt: 1000,
	}
}

func TestMessageRepository_CreateAndGetMemory(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))
	ctx := context.Background()

	id := uuid.New()
	mem := newTestMemory(id, uuid.New())
	require.NoError(t, repo.CreateMemory(ctx, mem))

	got, err := repo.GetMemoryByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, mem.ID, got.ID)
	assert.Equal(t, "hello", got.Content.Text)
	assert.Equal(t, "m1", got.Metadata.SourceID)
	assert.Equal(t, int64(1000), got.CreatedAt)
}

func TestMessageRepository_GetMemoryNotFound(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))

	got, err := repo.GetMemoryByID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got, "missing memory returns nil without error")
}

func TestMessageRepository_DuplicateMemoryIsConstraintError(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, repo.CreateMemory(ctx, newTestMemory(id, uuid.New())))

	// 同一 ID 重复写入触发唯一约束错误
	err := repo.CreateMemory(ctx, newTestMemory(id, uuid.New()))
	require.Error(t, err)
	assert.True(t, IsUniqueConstraint(err), "duplicate insert should be a unique constraint error, got: %v", err)
}

func TestMessageRepository_DuplicateWorldRoomEntity(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))
	ctx := context.Background()

	agentID := uuid.New()
	world := &messaging.World{ID: uuid.New(), AgentID: agentID, ServerID: "s1", Name: "s1", CreatedAt: 1}
	require.NoError(t, repo.CreateWorld(ctx, world))
	assert.True(t, IsUniqueConstraint(repo.CreateWorld(ctx, world)))

	room := &messaging.Room{ID: uuid.New(), WorldID: world.ID, AgentID: agentID, ChannelID: "c1", Type: messaging.ChannelTypeGroup, CreatedAt: 1}
	require.NoError(t, repo.CreateRoom(ctx, room))
	assert.True(t, IsUniqueConstraint(repo.CreateRoom(ctx, room)))

	entity := &messaging.Entity{ID: uuid.New(), AgentID: agentID, Names: []string{"alice"}, CreatedAt: 1}
	require.NoError(t, repo.CreateEntity(ctx, entity))
	assert.True(t, IsUniqueConstraint(repo.CreateEntity(ctx, entity)))
}

func TestMessageRepository_CountMemoriesByRoom(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))
	ctx := context.Background()

	roomID := uuid.New()
	require.NoError(t, repo.CreateMemory(ctx, newTestMemory(uuid.New(), roomID)))
	require.NoError(t, repo.CreateMemory(ctx, newTestMemory(uuid.New(), roomID)))
	require.NoError(t, repo.CreateMemory(ctx, newTestMemory(uuid.New(), uuid.New())))

	count, err := repo.CountMemoriesByRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMessageRepository_GetMemoriesByRoom(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))
	ctx := context.Background()

	roomID := uuid.New()
	first := newTestMemory(uuid.New(), roomID)
	first.CreatedAt = 100
	second := newTestMemory(uuid.New(), roomID)
	second.CreatedAt = 200
	require.NoError(t, repo.CreateMemory(ctx, first))
	require.NoError(t, repo.CreateMemory(ctx, second))

	memories, err := repo.GetMemoriesByRoom(ctx, roomID, 10)
	require.NoError(t, err)
	require.Len(t, memories, 2)
	// 按时间倒序
	assert.Equal(t, second.ID, memories[0].ID)
	assert.Equal(t, first.ID, memories[1].ID)
}
