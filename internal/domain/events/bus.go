package events

// Handler 事件处理器接口
// 订阅者需要实现此接口来处理事件
type Handler interface {
	// HandleEvent 处理事件
	// 返回 error 表示处理失败（仅用于日志记录，不会重试）
	HandleEvent(event Event) error
}

// HandlerFunc 函数类型的处理器适配器
// 方便使用具名函数作为处理器
type HandlerFunc func(event Event) error

// HandleEvent 实现 Handler 接口
func (f HandlerFunc) HandleEvent(event Event) error {
	return f(event)
}

// EventBus 事件总线接口
// 提供事件的同步发布和订阅功能，无排队、无跨进程可见性
type EventBus interface {
	// Subscribe 订阅特定类型的事件
	// 同一个 handler 对同一事件类型重复订阅是 no-op，不会导致重复派发
	Subscribe(eventType EventType, handler Handler)

	// Unsubscribe 取消订阅，精确移除该 handler
	Unsubscribe(eventType EventType, handler Handler)

	// RemoveAllListeners 清空订阅
	// 不带参数清空所有事件类型，带参数只清空指定类型
	RemoveAllListeners(eventTypes ...EventType)

	// Publish 同步发布事件
	// 在调用栈内依次派发给当前所有订阅者，仅对发布时已订阅者可见
	Publish(event Event)

	// Close 关闭事件总线
	// 停止接收新事件
	Close()
}
