package sync

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/agentloop/backend/internal/domain/messaging"
	"github.com/agentloop/backend/internal/infrastructure/log"
)

// NoopPipeline 默认决策管线
// 真正的提示词构造与 LLM 生成在外部进程中完成，守护进程单独运行时
// 用这个实现兜底：不产生回复，只保证完成通知被触发
type NoopPipeline struct {
	logger *slog.Logger
}

var _ messaging.Pipeline = (*NoopPipeline)(nil)

// NewNoopPipeline 创建默认管线
func NewNoopPipeline() *NoopPipeline {
	return &NoopPipeline{
		logger: log.NewModuleLogger("sync", "pipeline"),
	}
}

// HandleMessage 实现 messaging.Pipeline
func (p *NoopPipeline) HandleMessage(ctx context.Context, msg *messaging.Memory, respond messaging.ResponseFunc, done func()) {
	defer done()
	p.logger.Debug("Message received, no decision pipeline attached",
		"memory_id", msg.ID,
		"room_id", msg.RoomID,
	)
}

// HandleMessageDeleted 实现 messaging.Pipeline
func (p *NoopPipeline) HandleMessageDeleted(ctx context.Context, msg *messaging.Memory) {
	p.logger.Debug("Message deleted", "memory_id", msg.ID)
}

// HandleChannelCleared 实现 messaging.Pipeline
func (p *NoopPipeline) HandleChannelCleared(ctx context.Context, roomID uuid.UUID, memoryCount int) {
	p.logger.Debug("Channel cleared", "room_id", roomID, "memory_count", memoryCount)
}
