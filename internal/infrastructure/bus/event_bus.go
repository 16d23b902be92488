// Package bus 提供进程内事件总线实现
// 这是一个占位传输：无持久化、无跨进程扇出，未来可替换为真正的消息代理
package bus

import (
	"log/slog"
	"reflect"
	"sync"

	"github.com/agentloop/backend/internal/domain/events"
	"github.com/agentloop/backend/internal/infrastructure/log"
)

// subscription 单个订阅记录
// key 用于识别处理器身份，实现幂等订阅与精确退订
type subscription struct {
	key     any
	handler events.Handler
}

// eventBusImpl EventBus 的实现
type eventBusImpl struct {
	// handlers 按事件类型存储的订阅列表
	handlers map[events.EventType][]subscription
	// mu 保护 handlers 的互斥锁
	mu sync.RWMutex
	// logger 日志记录器
	logger *slog.Logger
	// closed 是否已关闭
	closed bool
}

// NewEventBus 创建新的事件总线实例
// 总线由组合根显式构造并传引用给各服务，不使用全局单例
func NewEventBus() events.EventBus {
	return &eventBusImpl{
		handlers: make(map[events.EventType][]subscription),
		logger:   log.NewModuleLogger("bus", "event_bus"),
	}
}

// handlerKey 计算处理器身份
// 指针型处理器按指针比较，函数型处理器按函数指针比较
func handlerKey(h events.Handler) any {
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Chan, reflect.Map, reflect.UnsafePointer:
		return v.Pointer()
	default:
		if v.Type().Comparable() {
			return h
		}
		// 不可比较类型无法去重，退化为永不相等
		return new(int)
	}
}

// Subscribe 订阅特定类型的事件
// 同一处理器重复订阅同一事件类型是 no-op
func (b *eventBusImpl) Subscribe(eventType events.EventType, handler events.Handler) {
	if handler == nil {
		return
	}

	key := handlerKey(handler)

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.handlers[eventType] {
		if sub.key == key {
			// 已订阅，避免重复派发
			return
		}
	}

	b.handlers[eventType] = append(b.handlers[eventType], subscription{key: key, handler: handler})
}

// Unsubscribe 取消订阅，精确移除该处理器
func (b *eventBusImpl) Unsubscribe(eventType events.EventType, handler events.Handler) {
	if handler == nil {
		return
	}

	key := handlerKey(handler)

	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	for i, sub := range subs {
		if sub.key == key {
			b.handlers[eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// RemoveAllListeners 清空订阅
func (b *eventBusImpl) RemoveAllListeners(eventTypes ...events.EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(eventTypes) == 0 {
		b.handlers = make(map[events.EventType][]subscription)
		return
	}
	for _, et := range eventTypes {
		delete(b.handlers, et)
	}
}

// Publish 同步发布事件
// 在当前调用栈内依次派发给所有订阅者，订阅者自行决定是否转入后台处理
func (b *eventBusImpl) Publish(event events.Event) {
	if event == nil {
		return
	}

	// 非法事件在总线边界丢弃
	if err := event.Validate(); err != nil {
		b.logger.Warn("Dropping invalid event",
			"type", event.Type(),
			"error", err,
		)
		return
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}

	// 复制订阅列表，派发期间的订阅变更不影响本次发布
	subs := make([]subscription, len(b.handlers[event.Type()]))
	copy(subs, b.handlers[event.Type()])
	b.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	b.logger.Debug("Publishing event",
		"type", event.Type(),
		"handlers_count", len(subs),
	)

	for _, sub := range subs {
		b.dispatchToHandler(event, sub.handler)
	}
}

// dispatchToHandler 派发事件到单个处理器
func (b *eventBusImpl) dispatchToHandler(event events.Event, handler events.Handler) {
	// 捕获 panic，防止单个处理器崩溃影响其他处理器和发布方
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Handler panicked",
				"type", event.Type(),
				"panic", r,
			)
		}
	}()

	if err := handler.HandleEvent(event); err != nil {
		b.logger.Error("Handler returned error",
			"type", event.Type(),
			"error", err,
		)
	}
}

// Close 关闭事件总线
func (b *eventBusImpl) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.logger.Info("Event bus closed")
}
