package events

import (
	"fmt"
	"time"
)

// KnowledgeFileEvent 知识文档文件事件负载
// 由文件监听器在文档目录发生变化时发布
type KnowledgeFileEvent struct {
	// Path 文件绝对路径
	Path string
	// Shared 是否属于共享文档目录
	Shared bool
	// Removed 文件是否被删除
	Removed bool
	// At 事件发生时间
	At time.Time
}

// Type 实现 Event 接口
func (e *KnowledgeFileEvent) Type() EventType {
	if e.Removed {
		return KnowledgeFileRemoved
	}
	return KnowledgeFileChanged
}

// Timestamp 实现 Event 接口
func (e *KnowledgeFileEvent) Timestamp() time.Time { return e.At }

// Validate 实现 Event 接口
func (e *KnowledgeFileEvent) Validate() error {
	if e.Path == "" {
		return fmt.Errorf("knowledge file event missing path")
	}
	return nil
}
