// Package messaging 定义消息同步的领域模型
// Memory/Room/World/Entity 是中央对象在 Agent 本地的镜像，
// 所有本地 ID 都通过 identity 包从中央 ID 确定性派生
package messaging

import (
	"encoding/json"

	"github.com/google/uuid"
)

// IgnoreAction 决策管线显式放弃回复时携带的动作标记
const IgnoreAction = "IGNORE"

// ChannelType 频道类型
type ChannelType string

const (
	// ChannelTypeGroup 群组频道
	ChannelTypeGroup ChannelType = "GROUP"
	// ChannelTypeDM 私聊频道
	ChannelTypeDM ChannelType = "DM"
)

// Attachment 消息附件
type Attachment struct {
	URL         string `json:"url"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// Content 消息内容（文本 + 结构化字段）
type Content struct {
	// Text 消息文本
	Text string `json:"text"`
	// Source 来源类型，如 discord / telegram / agent_response
	Source string `json:"source,omitempty"`
	// InReplyTo 被回复消息的本地 Memory ID
	InReplyTo *uuid.UUID `json:"inReplyTo,omitempty"`
	// Attachments 附件列表
	Attachments []Attachment `json:"attachments,omitempty"`
	// Actions 决策管线产生的动作标记
	Actions []string `json:"actions,omitempty"`
}

// HasIgnoreAction 检查内容是否携带显式忽略标记
func (c *Content) HasIgnoreAction() bool {
	for _, a := range c.Actions {
		if a == IgnoreAction {
			return true
		}
	}
	return false
}

// MemoryMetadata Memory 附加元数据
type MemoryMetadata struct {
	// SourceType 源平台类型
	SourceType string `json:"sourceType,omitempty"`
	// SourceID 中央消息 ID，回复时用于本地 ID 到中央 ID 的反向翻译
	SourceID string `json:"sourceId,omitempty"`
	// AuthorDisplayName 作者展示名
	AuthorDisplayName string `json:"authorDisplayName,omitempty"`
	// Raw 原始传输负载
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Memory 一条会话消息的本地规范记录
type Memory struct {
	// ID 确定性派生：hash(Agent 命名空间, 中央消息 ID)
	ID uuid.UUID `json:"id"`
	// AgentID 所属 Agent
	AgentID uuid.UUID `json:"agentId"`
	// EntityID 作者实体的本地 ID
	EntityID uuid.UUID `json:"entityId"`
	// RoomID 所在房间的本地 ID
	RoomID uuid.UUID `json:"roomId"`
	// WorldID 所在世界的本地 ID
	WorldID uuid.UUID `json:"worldId"`
	// Content 消息内容
	Content Content `json:"content"`
	// Metadata 附加元数据
	Metadata MemoryMetadata `json:"metadata"`
	// CreatedAt 创建时间（Unix 毫秒）
	CreatedAt int64 `json:"createdAt"`
}

// World 中央服务器的本地镜像
type World struct {
	ID       uuid.UUID `json:"id"`
	AgentID  uuid.UUID `json:"agentId"`
	// ServerID 中央服务器 ID
	ServerID  string `json:"serverId"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"`
}

// Room 中央频道的本地镜像
type Room struct {
	ID      uuid.UUID `json:"id"`
	WorldID uuid.UUID `json:"worldId"`
	AgentID uuid.UUID `json:"agentId"`
	// ChannelID 中央频道 ID
	ChannelID string      `json:"channelId"`
	Name      string      `json:"name"`
	Source    string      `json:"source,omitempty"`
	Type      ChannelType `json:"type"`
	CreatedAt int64       `json:"createdAt"`
}

// Entity 消息作者的本地镜像，首次见到时惰性创建
type Entity struct {
	ID      uuid.UUID `json:"id"`
	AgentID uuid.UUID `json:"agentId"`
	// Names 见过的名字集合
	Names     []string `json:"names"`
	CreatedAt int64    `json:"createdAt"`
}
