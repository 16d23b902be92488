package messaging

import (
	"context"

	"github.com/google/uuid"
)

// ResponseFunc 响应捕获回调
// 决策管线用它提交回复内容，实现方负责本地持久化与向协调器回传，
// 返回本次产生的 Memory 列表（可能为空）
type ResponseFunc func(content *Content) ([]*Memory, error)

// Pipeline 决策管线协作接口
// 提示词构造与 LLM 生成在外部实现，这里只约定交接契约
type Pipeline interface {
	// HandleMessage 把规范化后的 Memory 交给决策管线
	// respond 用于提交回复；done 在处理结束时必须恰好调用一次，
	// 无论是否产生了回复
	HandleMessage(ctx context.Context, msg *Memory, respond ResponseFunc, done func())

	// HandleMessageDeleted 通知决策管线一条 Memory 对应的中央消息被删除
	HandleMessageDeleted(ctx context.Context, msg *Memory)

	// HandleChannelCleared 通知决策管线某房间被整体清空
	// memoryCount 仅作遥测参考，不是权威值
	HandleChannelCleared(ctx context.Context, roomID uuid.UUID, memoryCount int)
}
