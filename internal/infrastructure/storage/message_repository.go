package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentloop/backend/internal/domain/messaging"
)

// 确保 MessageRepositoryImpl 实现了 messaging.Store 接口
var _ messaging.Store = (*MessageRepositoryImpl)(nil)

// MessageRepositoryImpl 消息镜像仓库实现
type MessageRepositoryImpl struct {
	db *sql.DB
}

// NewMessageRepository 创建消息镜像仓库实例
func NewMessageRepository(db *sql.DB) messaging.Store {
	return &MessageRepositoryImpl{db: db}
}

// CreateWorld 创建 World
// 重复创建返回唯一约束错误，由调用方按成功处理
func (r *MessageRepositoryImpl) CreateWorld(ctx context.Context, world *messaging.World) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO worlds (id, agent_id, server_id, name, created_at) VALUES (?, ?, ?, ?, ?)`,
		world.ID.String(),
		world.AgentID.String(),
		world.ServerID,
		world.Name,
		world.CreatedAt,
	)
	return err
}

// CreateRoom 创建 Room
func (r *MessageRepositoryImpl) CreateRoom(ctx context.Context, room *messaging.Room) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rooms (id, world_id, agent_id, channel_id, name, source, type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		room.ID.String(),
		room.WorldID.String(),
		room.AgentID.String(),
		room.ChannelID,
		room.Name,
		room.Source,
		string(room.Type),
		room.CreatedAt,
	)
	return err
}

// CreateEntity 创建 Entity
func (r *MessageRepositoryImpl) CreateEntity(ctx context.Context, entity *messaging.Entity) error {
	namesJSON, err := json.Marshal(entity.Names)
	if err != nil {
		return fmt.Errorf("failed to marshal entity names: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO entities (id, agent_id, names, created_at) VALUES (?, ?, ?, ?)`,
		entity.ID.String(),
		entity.AgentID.String(),
		string(namesJSON),
		entity.CreatedAt,
	)
	return err
}

// CreateMemory 创建 Memory
// Memory ID 是中央消息 ID 的确定性派生，重复投递触发唯一约束错误
func (r *MessageRepositoryImpl) CreateMemory(ctx context.Context, memory *messaging.Memory) error {
	contentJSON, err := json.Marshal(memory.Content)
	if err != nil {
		return fmt.Errorf("failed to marshal memory content: %w", err)
	}
	metadataJSON, err := json.Marshal(memory.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal memory metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO memories (id, agent_id, entity_id, room_id, world_id, content, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		memory.ID.String(),
		memory.AgentID.String(),
		memory.EntityID.String(),
		memory.RoomID.String(),
		memory.WorldID.String(),
		string(contentJSON),
		string(metadataJSON),
		memory.CreatedAt,
	)
	return err
}

// GetMemoryByID 按 ID 查询 Memory，未找到返回 (nil, nil)
func (r *MessageRepositoryImpl) GetMemoryByID(ctx context.Context, id uuid.UUID) (*messaging.Memory, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, agent_id, entity_id, room_id, world_id, content, metadata, created_at
		 FROM memories WHERE id = ?`,
		id.String(),
	)

	memory, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return memory, err
}

// CountMemoriesByRoom 统计房间内 Memory 数量
func (r *MessageRepositoryImpl) CountMemoriesByRoom(ctx context.Context, roomID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE room_id = ?`,
		roomID.String(),
	).Scan(&count)
	return count, err
}

// GetMemoriesByRoom 按时间倒序查询房间内 Memory
func (r *MessageRepositoryImpl) GetMemoriesByRoom(ctx context.Context, roomID uuid.UUID, limit int) ([]*messaging.Memory, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, agent_id, entity_id, room_id, world_id, content, metadata, created_at
		 FROM memories WHERE room_id = ? ORDER BY created_at DESC LIMIT ?`,
		roomID.String(),
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []*messaging.Memory
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, memory)
	}
	return memories, rows.Err()
}

// rowScanner 兼容 *sql.Row 和 *sql.Rows 的扫描接口
type rowScanner interface {
	Scan(dest ...any) error
}

// scanMemory 从查询结果扫描一条 Memory
func scanMemory(row rowScanner) (*messaging.Memory, error) {
	var (
		idStr, agentIDStr, entityIDStr, roomIDStr, worldIDStr string
		contentJSON, metadataJSON                             string
		createdAt                                             int64
	)

	if err := row.Scan(&idStr, &agentIDStr, &entityIDStr, &roomIDStr, &worldIDStr,
		&contentJSON, &metadataJSON, &createdAt); err != nil {
		return nil, err
	}

	memory := &messaging.Memory{CreatedAt: createdAt}

	var err error
	if memory.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid memory id %q: %w", idStr, err)
	}
	if memory.AgentID, err = uuid.Parse(agentIDStr); err != nil {
		return nil, fmt.Errorf("invalid agent id %q: %w", agentIDStr, err)
	}
	if memory.EntityID, err = uuid.Parse(entityIDStr); err != nil {
		return nil, fmt.Errorf("invalid entity id %q: %w", entityIDStr, err)
	}
	if memory.RoomID, err = uuid.Parse(roomIDStr); err != nil {
		return nil, fmt.Errorf("invalid room id %q: %w", roomIDStr, err)
	}
	if memory.WorldID, err = uuid.Parse(worldIDStr); err != nil {
		return nil, fmt.Errorf("invalid world id %q: %w", worldIDStr, err)
	}

	if err := json.Unmarshal([]byte(contentJSON), &memory.Content); err != nil {
		return nil, fmt.Errorf("failed to unmarshal memory content: %w", err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &memory.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal memory metadata: %w", err)
	}

	return memory, nil
}
