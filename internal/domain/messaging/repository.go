package messaging

import (
	"context"

	"github.com/google/uuid"
)

// Store 持久化存储接口
// 所有 Create 方法在目标已存在时返回唯一约束错误，
// 调用方将其视为成功（幂等创建），由 storage.IsUniqueConstraint 识别
type Store interface {
	// CreateWorld 创建 World
	CreateWorld(ctx context.Context, world *World) error
	// CreateRoom 创建 Room
	CreateRoom(ctx context.Context, room *Room) error
	// CreateEntity 创建 Entity
	CreateEntity(ctx context.Context, entity *Entity) error
	// CreateMemory 创建 Memory
	CreateMemory(ctx context.Context, memory *Memory) error
	// GetMemoryByID 按 ID 查询 Memory，未找到返回 (nil, nil)
	GetMemoryByID(ctx context.Context, id uuid.UUID) (*Memory, error)
	// CountMemoriesByRoom 统计房间内 Memory 数量
	CountMemoriesByRoom(ctx context.Context, roomID uuid.UUID) (int, error)
	// GetMemoriesByRoom 按时间倒序查询房间内 Memory
	GetMemoriesByRoom(ctx context.Context, roomID uuid.UUID, limit int) ([]*Memory, error)
}
