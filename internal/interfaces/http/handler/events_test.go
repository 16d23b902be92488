package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloop/backend/internal/domain/events"
	"github.com/agentloop/backend/internal/infrastructure/bus"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// eventRecorder 记录收到的事件
type eventRecorder struct {
	mu     gosync.Mutex
	events []events.Event
}

func (r *eventRecorder) HandleEvent(event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) received() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// setupEventsRouter 创建测试路由
func setupEventsRouter(t *testing.T) (*gin.Engine, *eventRecorder) {
	t.Helper()

	eventBus := bus.NewEventBus()
	t.Cleanup(eventBus.Close)

	recorder := &eventRecorder{}
	eventBus.Subscribe(events.NewMessage, recorder)
	eventBus.Subscribe(events.MessageDeleted, recorder)
	eventBus.Subscribe(events.ServerAgentUpdate, recorder)

	router := gin.New()
	router.POST("/api/v1/events", NewEventsHandler(eventBus).Ingest)
	return router, recorder
}

func postEvent(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestEventsHandler_NewMessageIsPublished 测试新消息事件被发布到总线
func TestEventsHandler_NewMessageIsPublished(t *testing.T) {
	router, recorder := setupEventsRouter(t)

	w := postEvent(router, `{
		"type": "new_message",
		"payload": {
			"id": "m1",
			"channel_id": "c1",
			"server_id": "S",
			"author_id": "u1",
			"content": "hi",
			"created_at": 1000
		}
	}`)

	assert.Equal(t, http.StatusAccepted, w.Code)

	received := recorder.received()
	require.Len(t, received, 1)

	msg, ok := received[0].(*events.MessageEvent)
	require.True(t, ok)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "c1", msg.ChannelID)
	assert.Equal(t, "S", msg.ServerID)
	assert.Equal(t, int64(1000), msg.CreatedAt)
}

// TestEventsHandler_InvalidPayloadIsRejected 测试缺字段的负载被拒绝
func TestEventsHandler_InvalidPayloadIsRejected(t *testing.T) {
	router, recorder := setupEventsRouter(t)

	// 缺少 channel_id
	w := postEvent(router, `{
		"type": "new_message",
		"payload": {"id": "m1", "server_id": "S", "author_id": "u1"}
	}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, recorder.received())
}

// TestEventsHandler_UnknownTypeIsRejected 测试未知事件类型被拒绝
func TestEventsHandler_UnknownTypeIsRejected(t *testing.T) {
	router, recorder := setupEventsRouter(t)

	w := postEvent(router, `{"type": "bogus", "payload": {}}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, recorder.received())

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Contains(t, response["message"], "unknown event type")
}

// TestEventsHandler_AgentUpdateIsPublished 测试成员变更事件被发布
func TestEventsHandler_AgentUpdateIsPublished(t *testing.T) {
	router, recorder := setupEventsRouter(t)

	w := postEvent(router, `{
		"type": "server_agent_update",
		"payload": {"agentId": "a1", "serverId": "S", "type": "agent_added"}
	}`)

	assert.Equal(t, http.StatusAccepted, w.Code)

	received := recorder.received()
	require.Len(t, received, 1)

	update, ok := received[0].(*events.AgentUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, events.AgentAdded, update.UpdateType)
	assert.False(t, update.At.IsZero())
}
