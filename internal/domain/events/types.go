// Package events 定义领域事件类型和接口
// 用于进程内的事件驱动通信，事件负载在总线边界做结构校验
package events

import "time"

// EventType 事件类型标识
type EventType string

// 中央协调器消息相关事件类型
// 事件名与协调器侧的消息总线约定保持一致
const (
	// NewMessage 新消息事件
	NewMessage EventType = "new_message"
	// MessageDeleted 消息删除事件
	MessageDeleted EventType = "message_deleted"
	// ChannelCleared 频道清空事件
	ChannelCleared EventType = "channel_cleared"
	// ServerAgentUpdate Agent 服务器成员变更事件
	ServerAgentUpdate EventType = "server_agent_update"
)

// 知识库文件相关事件类型
const (
	// KnowledgeFileChanged 知识文档创建或修改事件
	KnowledgeFileChanged EventType = "knowledge.file.changed"
	// KnowledgeFileRemoved 知识文档删除事件
	KnowledgeFileRemoved EventType = "knowledge.file.removed"
)

// Event 领域事件接口
// 所有事件类型都必须实现此接口
type Event interface {
	// Type 返回事件类型
	Type() EventType
	// Timestamp 返回事件发生时间
	Timestamp() time.Time
	// Validate 校验事件负载
	// 总线在分发前调用，非法事件被丢弃而不是派发给订阅者
	Validate() error
}
