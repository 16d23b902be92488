// Package identity 提供跨域 ID 的确定性派生
//
// 每个 Agent 在本地以自己的 UUID 作为命名空间，对中央对象 ID 做
// UUIDv5 风格的哈希派生。同样的输入永远得到同样的输出，因此任意
// Agent 在任意时刻都能独立重建任何它见过的中央对象的本地 ID，
// 不需要共享 ID 注册表，也不需要跨进程协调。
package identity

import "github.com/google/uuid"

// Derive 从 (Agent 命名空间, 中央 ID) 派生本地 UUID
// 纯函数：无状态、无查表，重启与多进程下结果一致
func Derive(agentID uuid.UUID, centralID string) uuid.UUID {
	return uuid.NewSHA1(agentID, []byte(centralID))
}

// WorldID 从中央服务器 ID 派生本地 World ID
func WorldID(agentID uuid.UUID, serverID string) uuid.UUID {
	return Derive(agentID, serverID)
}

// RoomID 从中央频道 ID 派生本地 Room ID
func RoomID(agentID uuid.UUID, channelID string) uuid.UUID {
	return Derive(agentID, channelID)
}

// EntityID 从中央作者 ID 派生本地 Entity ID
func EntityID(agentID uuid.UUID, authorID string) uuid.UUID {
	return Derive(agentID, authorID)
}

// MemoryID 从中央消息 ID 派生本地 Memory ID
// 同一条中央消息的重复投递总是解析到同一个 Memory ID，
// 这是幂等写入的基础
func MemoryID(agentID uuid.UUID, messageID string) uuid.UUID {
	return Derive(agentID, messageID)
}
