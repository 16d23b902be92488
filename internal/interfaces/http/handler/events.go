package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/agentloop/backend/internal/domain/events"
	"github.com/agentloop/backend/internal/infrastructure/log"
	"github.com/agentloop/backend/internal/interfaces/http/response"
)

// EventsHandler 协调器事件入口
// 中央协调器把事件推送到这里，转为类型化负载后发布到进程内总线
type EventsHandler struct {
	eventBus events.EventBus
	logger   *slog.Logger
}

// NewEventsHandler 创建事件入口处理器
func NewEventsHandler(eventBus events.EventBus) *EventsHandler {
	return &EventsHandler{
		eventBus: eventBus,
		logger:   log.NewModuleLogger("events", "handler"),
	}
}

// EventEnvelope 事件信封
type EventEnvelope struct {
	Type    string          `json:"type" binding:"required"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

// Ingest 接收协调器事件
// POST /api/v1/events
func (h *EventsHandler) Ingest(c *gin.Context) {
	var envelope EventEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		response.Error(c, http.StatusBadRequest, 400, err.Error())
		return
	}

	event, err := decodeEvent(&envelope)
	if err != nil {
		response.Error(c, http.StatusBadRequest, 400, err.Error())
		return
	}

	if err := event.Validate(); err != nil {
		response.Error(c, http.StatusBadRequest, 400, err.Error())
		return
	}

	h.eventBus.Publish(event)

	h.logger.Debug("event accepted",
		"type", envelope.Type,
	)

	c.JSON(http.StatusAccepted, response.Response{
		Code:    0,
		Message: "accepted",
	})
}

// decodeEvent 按类型解码事件负载
func decodeEvent(envelope *EventEnvelope) (events.Event, error) {
	now := time.Now()

	switch events.EventType(envelope.Type) {
	case events.NewMessage:
		var event events.MessageEvent
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			return nil, err
		}
		return &event, nil

	case events.MessageDeleted:
		event := events.MessageDeletedEvent{At: now}
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			return nil, err
		}
		return &event, nil

	case events.ChannelCleared:
		event := events.ChannelClearedEvent{At: now}
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			return nil, err
		}
		return &event, nil

	case events.ServerAgentUpdate:
		event := events.AgentUpdateEvent{At: now}
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			return nil, err
		}
		return &event, nil

	default:
		return nil, &UnknownEventTypeError{Type: envelope.Type}
	}
}

// UnknownEventTypeError 未知事件类型错误
type UnknownEventTypeError struct {
	Type string
}

func (e *UnknownEventTypeError) Error() string {
	return "unknown event type: " + e.Type
}
