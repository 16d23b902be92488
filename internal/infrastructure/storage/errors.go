package storage

import "strings"

// IsUniqueConstraint 判断错误是否为唯一约束冲突
// Room/World/Entity/Memory 的并发首建会触发此类错误，
// 调用方将其视为创建成功而不是失败
func IsUniqueConstraint(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
