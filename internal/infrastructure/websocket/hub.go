// Package websocket 提供活动事件的 WebSocket 广播中心
package websocket

import (
	"encoding/json"
	"sync"
	"time"
)

// 活动事件类型
const (
	ActivityMessageSynced   = "message_synced"
	ActivityDocumentIndexed = "document_indexed"
	ActivityDocumentRemoved = "document_removed"
)

// Activity 推送给客户端的活动事件
type Activity struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
	At   int64  `json:"at"`
}

// Hub WebSocket 连接管理中心
// 所有客户端接收同一条活动流
type Hub struct {
	connections map[*Connection]bool
	register    chan *Connection
	unregister  chan *Connection
	broadcast   chan []byte
	stop        chan struct{}
	mu          sync.RWMutex
}

// Connection WebSocket 连接
type Connection struct {
	Send chan []byte
}

// NewConnection 创建连接
func NewConnection() *Connection {
	return &Connection{
		Send: make(chan []byte, 16),
	}
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan []byte),
		stop:        make(chan struct{}),
	}
}

// Run 运行 Hub（需要在 goroutine 中运行）
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for conn := range h.connections {
				close(conn.Send)
				delete(h.connections, conn)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn] = true
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.Send)
			}
			h.mu.Unlock()

		case data := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.connections {
				select {
				case conn.Send <- data:
				default:
					// 消费太慢的客户端直接断开
					close(conn.Send)
					delete(h.connections, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Start 启动 Hub（启动后台 goroutine）
func (h *Hub) Start() {
	go h.Run()
}

// Stop 停止 Hub 并断开所有连接
func (h *Hub) Stop() {
	close(h.stop)
}

// Register 注册连接
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister 注销连接
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// BroadcastActivity 向所有客户端广播活动事件
func (h *Hub) BroadcastActivity(activityType string, data any) error {
	jsonData, err := json.Marshal(&Activity{
		Type: activityType,
		Data: data,
		At:   time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- jsonData:
	case <-h.stop:
	}
	return nil
}

// ConnectionCount 当前连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}
