package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Agent 服务器成员变更类型
const (
	// AgentAdded Agent 被加入服务器
	AgentAdded = "agent_added"
	// AgentRemoved Agent 被移出服务器
	AgentRemoved = "agent_removed"
)

// MessageEvent 新消息事件负载
// 字段与中央协调器投递的消息结构一一对应
type MessageEvent struct {
	// ID 中央消息 ID
	ID string `json:"id"`
	// ChannelID 中央频道 ID
	ChannelID string `json:"channel_id"`
	// ServerID 中央服务器 ID
	ServerID string `json:"server_id"`
	// AuthorID 中央作者 ID
	AuthorID string `json:"author_id"`
	// AuthorDisplayName 作者展示名（可选）
	AuthorDisplayName string `json:"author_display_name,omitempty"`
	// Content 消息文本
	Content string `json:"content"`
	// RawMessage 原始平台消息负载（可选）
	RawMessage json.RawMessage `json:"raw_message,omitempty"`
	// SourceID 源平台消息 ID（可选）
	SourceID string `json:"source_id,omitempty"`
	// SourceType 源平台类型，如 discord / telegram（可选）
	SourceType string `json:"source_type,omitempty"`
	// InReplyToMessageID 被回复的中央消息 ID（可选）
	InReplyToMessageID string `json:"in_reply_to_message_id,omitempty"`
	// CreatedAt 消息创建时间（Unix 毫秒）
	CreatedAt int64 `json:"created_at"`
	// Metadata 附加元数据（可选）
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Type 实现 Event 接口
func (e *MessageEvent) Type() EventType { return NewMessage }

// Timestamp 实现 Event 接口
func (e *MessageEvent) Timestamp() time.Time {
	return time.UnixMilli(e.CreatedAt)
}

// Validate 实现 Event 接口
func (e *MessageEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("message event missing id")
	}
	if e.ChannelID == "" {
		return fmt.Errorf("message event missing channel_id")
	}
	if e.ServerID == "" {
		return fmt.Errorf("message event missing server_id")
	}
	if e.AuthorID == "" {
		return fmt.Errorf("message event missing author_id")
	}
	return nil
}

// MessageDeletedEvent 消息删除事件负载
type MessageDeletedEvent struct {
	// MessageID 被删除的中央消息 ID
	MessageID string `json:"messageId"`
	// At 事件发生时间
	At time.Time `json:"-"`
}

// Type 实现 Event 接口
func (e *MessageDeletedEvent) Type() EventType { return MessageDeleted }

// Timestamp 实现 Event 接口
func (e *MessageDeletedEvent) Timestamp() time.Time { return e.At }

// Validate 实现 Event 接口
func (e *MessageDeletedEvent) Validate() error {
	if e.MessageID == "" {
		return fmt.Errorf("message deleted event missing messageId")
	}
	return nil
}

// ChannelClearedEvent 频道清空事件负载
type ChannelClearedEvent struct {
	// ChannelID 被清空的中央频道 ID
	ChannelID string `json:"channelId"`
	// At 事件发生时间
	At time.Time `json:"-"`
}

// Type 实现 Event 接口
func (e *ChannelClearedEvent) Type() EventType { return ChannelCleared }

// Timestamp 实现 Event 接口
func (e *ChannelClearedEvent) Timestamp() time.Time { return e.At }

// Validate 实现 Event 接口
func (e *ChannelClearedEvent) Validate() error {
	if e.ChannelID == "" {
		return fmt.Errorf("channel cleared event missing channelId")
	}
	return nil
}

// AgentUpdateEvent Agent 服务器成员变更事件负载
type AgentUpdateEvent struct {
	// AgentID 目标 Agent 的中央 ID
	AgentID string `json:"agentId"`
	// ServerID 中央服务器 ID
	ServerID string `json:"serverId"`
	// UpdateType 变更类型：agent_added / agent_removed
	UpdateType string `json:"type"`
	// At 事件发生时间
	At time.Time `json:"-"`
}

// Type 实现 Event 接口
func (e *AgentUpdateEvent) Type() EventType { return ServerAgentUpdate }

// Timestamp 实现 Event 接口
func (e *AgentUpdateEvent) Timestamp() time.Time { return e.At }

// Validate 实现 Event 接口
func (e *AgentUpdateEvent) Validate() error {
	if e.AgentID == "" || e.ServerID == "" {
		return fmt.Errorf("agent update event missing agentId or serverId")
	}
	if e.UpdateType != AgentAdded && e.UpdateType != AgentRemoved {
		return fmt.Errorf("agent update event has unknown type %q", e.UpdateType)
	}
	return nil
}
