// Package sync 实现 Agent 与中央协调器之间的消息同步
//
// SyncService 订阅进程内事件总线，把协调器投递的消息事件落为本地
// Memory 状态，并把决策管线产生的回复经 HTTP 回传协调器。
// 同步语义为至多一次：校验失败静默跳过，网络失败记日志后放弃该步骤，
// 不存在重试队列。
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentloop/backend/internal/domain/events"
	"github.com/agentloop/backend/internal/domain/identity"
	"github.com/agentloop/backend/internal/domain/messaging"
	"github.com/agentloop/backend/internal/infrastructure/config"
	"github.com/agentloop/backend/internal/infrastructure/coordinator"
	"github.com/agentloop/backend/internal/infrastructure/log"
	"github.com/agentloop/backend/internal/infrastructure/storage"
	"github.com/agentloop/backend/internal/infrastructure/websocket"
)

// Coordinator 协调器客户端能力约定
// 与 coordinator.Client 的方法集一致，便于测试替换
type Coordinator interface {
	GetAgentServers(ctx context.Context, agentID string) ([]string, error)
	GetServerChannels(ctx context.Context, serverID string) ([]coordinator.ChannelInfo, error)
	GetChannelParticipants(ctx context.Context, channelID string) ([]string, error)
	ValidateChannel(ctx context.Context, channelID string) (bool, error)
	SubmitMessage(ctx context.Context, req *coordinator.SubmitMessageRequest) error
	NotifyComplete(ctx context.Context, req *coordinator.CompleteRequest) error
}

var _ Coordinator = (*coordinator.Client)(nil)

// SyncService 消息同步服务
type SyncService struct {
	agentID   uuid.UUID
	agentName string

	store    messaging.Store
	coord    Coordinator
	pipeline messaging.Pipeline
	eventBus events.EventBus
	hub      *websocket.Hub
	logger   *slog.Logger

	// 进程生命周期缓存，server_agent_update 时整体刷新
	mu                sync.RWMutex
	subscribedServers map[string]bool
	validChannelIds   map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ events.Handler = (*SyncService)(nil)

// NewSyncService 创建同步服务
func NewSyncService(
	agentCfg *config.AgentConfig,
	store messaging.Store,
	coord Coordinator,
	pipeline messaging.Pipeline,
	eventBus events.EventBus,
	hub *websocket.Hub,
) (*SyncService, error) {
	logger := log.NewModuleLogger("sync", "service")

	var agentID uuid.UUID
	if agentCfg.ID == "" {
		// 未配置身份时生成临时命名空间，本地派生仍然自洽，
		// 但重启后派生结果会变化
		agentID = uuid.New()
		logger.Warn("Agent ID not configured, generated ephemeral identity", "agent_id", agentID)
	} else {
		parsed, err := uuid.Parse(agentCfg.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid agent id %q: %w", agentCfg.ID, err)
		}
		agentID = parsed
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &SyncService{
		agentID:           agentID,
		agentName:         agentCfg.Name,
		store:             store,
		coord:             coord,
		pipeline:          pipeline,
		eventBus:          eventBus,
		hub:               hub,
		logger:            logger,
		subscribedServers: make(map[string]bool),
		validChannelIds:   make(map[string]bool),
		ctx:               ctx,
		cancel:            cancel,
	}, nil
}

// AgentID 返回 Agent 命名空间 UUID
func (s *SyncService) AgentID() uuid.UUID {
	return s.agentID
}

// Start 启动同步服务：注册事件订阅并执行启动同步
func (s *SyncService) Start() error {
	s.eventBus.Subscribe(events.NewMessage, s)
	s.eventBus.Subscribe(events.MessageDeleted, s)
	s.eventBus.Subscribe(events.ChannelCleared, s)
	s.eventBus.Subscribe(events.ServerAgentUpdate, s)

	s.bootSync()

	s.logger.Info("Sync service started",
		"agent_id", s.agentID,
		"subscribed_servers", len(s.snapshotServers()),
	)
	return nil
}

// Stop 停止服务并等待进行中的消息处理完成
func (s *SyncService) Stop() {
	s.eventBus.Unsubscribe(events.NewMessage, s)
	s.eventBus.Unsubscribe(events.MessageDeleted, s)
	s.eventBus.Unsubscribe(events.ChannelCleared, s)
	s.eventBus.Unsubscribe(events.ServerAgentUpdate, s)

	s.cancel()
	s.wg.Wait()
	s.logger.Info("Sync service stopped")
}

// bootSync 启动时从协调器拉取订阅的服务器与频道，预热缓存
// 网络失败不阻止启动，缓存会在后续事件中逐步修复
func (s *SyncService) bootSync() {
	servers, err := s.coord.GetAgentServers(s.ctx, s.agentID.String())
	if err != nil {
		s.logger.Error("Boot sync failed to fetch agent servers", "error", err)
		return
	}

	channels := make(map[string]bool)
	for _, serverID := range servers {
		infos, err := s.coord.GetServerChannels(s.ctx, serverID)
		if err != nil {
			s.logger.Error("Boot sync failed to fetch server channels",
				"server_id", serverID,
				"error", err,
			)
			continue
		}
		for _, ch := range infos {
			channels[ch.ID] = true
		}
	}

	s.mu.Lock()
	s.subscribedServers = make(map[string]bool, len(servers))
	for _, serverID := range servers {
		s.subscribedServers[serverID] = true
	}
	for id := range channels {
		s.validChannelIds[id] = true
	}
	s.mu.Unlock()

	s.logger.Info("Boot sync completed",
		"servers", len(servers),
		"channels", len(channels),
	)
}

// HandleEvent 实现 events.Handler
// 总线同步派发；消息处理涉及网络 I/O，放到独立 goroutine 中执行，
// 因此不同频道的多条消息可以并发在途
func (s *SyncService) HandleEvent(event events.Event) error {
	switch e := event.(type) {
	case *events.MessageEvent:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleNewMessage(s.ctx, e)
		}()
	case *events.MessageDeletedEvent:
		s.handleMessageDeleted(s.ctx, e)
	case *events.ChannelClearedEvent:
		s.handleChannelCleared(s.ctx, e)
	case *events.AgentUpdateEvent:
		s.handleAgentUpdate(s.ctx, e)
	default:
		s.logger.Debug("Ignoring unexpected event", "type", event.Type())
	}
	return nil
}

// handleNewMessage 新消息状态机
func (s *SyncService) handleNewMessage(ctx context.Context, e *events.MessageEvent) {
	// 1. 参与者校验：消息不是发给这个 Agent 的就直接跳过
	participants, err := s.coord.GetChannelParticipants(ctx, e.ChannelID)
	if err != nil {
		s.logger.Error("Failed to fetch channel participants",
			"channel_id", e.ChannelID,
			"message_id", e.ID,
			"error", err,
		)
		return
	}
	if !contains(participants, s.agentID.String()) {
		s.logger.Debug("Agent not a participant, skipping message",
			"channel_id", e.ChannelID,
			"message_id", e.ID,
		)
		return
	}

	// 2. 服务器订阅校验
	if !s.isSubscribed(e.ServerID) {
		s.logger.Debug("Server not subscribed, skipping message",
			"server_id", e.ServerID,
			"message_id", e.ID,
		)
		return
	}

	// 3. 跳过自己的回声
	if e.AuthorID == s.agentID.String() {
		s.logger.Debug("Skipping own message echo", "message_id", e.ID)
		return
	}

	// 4. 频道有效性：未见过的频道惰性验证一次，结果进缓存
	if !s.ensureChannelValid(ctx, e.ChannelID) {
		return
	}

	// 5. 派生本地 ID 并幂等建立 World/Room/Entity
	worldID := identity.WorldID(s.agentID, e.ServerID)
	roomID := identity.RoomID(s.agentID, e.ChannelID)
	entityID := identity.EntityID(s.agentID, e.AuthorID)

	if err := s.ensureWorld(ctx, worldID, e.ServerID); err != nil {
		s.logger.Error("Failed to ensure world", "server_id", e.ServerID, "error", err)
		return
	}
	if err := s.ensureRoom(ctx, roomID, worldID, e); err != nil {
		s.logger.Error("Failed to ensure room", "channel_id", e.ChannelID, "error", err)
		return
	}
	if err := s.ensureEntity(ctx, entityID, e.AuthorDisplayName); err != nil {
		s.logger.Error("Failed to ensure entity", "author_id", e.AuthorID, "error", err)
		return
	}

	// 6. 重复投递检查：同一条中央消息总是派生出同一个 Memory ID
	memoryID := identity.MemoryID(s.agentID, e.ID)
	existing, err := s.store.GetMemoryByID(ctx, memoryID)
	if err != nil {
		s.logger.Error("Failed to check for duplicate memory", "memory_id", memoryID, "error", err)
		return
	}
	if existing != nil {
		s.logger.Debug("Duplicate message delivery, memory already exists",
			"message_id", e.ID,
			"memory_id", memoryID,
		)
		return
	}

	// 7. 构建规范 Memory
	memory := s.buildMemory(e, memoryID, entityID, roomID, worldID)

	if err := s.store.CreateMemory(ctx, memory); err != nil {
		if storage.IsUniqueConstraint(err) {
			// 并发投递竞态，另一条在途事件先落库了
			s.logger.Debug("Memory created concurrently", "memory_id", memoryID)
			return
		}
		s.logger.Error("Failed to create memory", "memory_id", memoryID, "error", err)
		return
	}

	if s.hub != nil {
		s.hub.BroadcastActivity(websocket.ActivityMessageSynced, map[string]any{
			"message_id": e.ID,
			"channel_id": e.ChannelID,
			"server_id":  e.ServerID,
		})
	}

	// 8. 交给决策管线：respond 负责本地持久化与回传，
	//    done 无论是否产生回复都恰好触发一次完成通知
	var completeOnce sync.Once
	done := func() {
		completeOnce.Do(func() {
			if err := s.coord.NotifyComplete(ctx, &coordinator.CompleteRequest{
				ChannelID: e.ChannelID,
				ServerID:  e.ServerID,
			}); err != nil {
				s.logger.Error("Failed to notify completion",
					"channel_id", e.ChannelID,
					"error", err,
				)
			}
		})
	}

	respond := func(content *messaging.Content) ([]*messaging.Memory, error) {
		return s.submitResponse(ctx, e, memory, content)
	}

	s.pipeline.HandleMessage(ctx, memory, respond, done)
}

// buildMemory 从消息事件构建规范 Memory
func (s *SyncService) buildMemory(
	e *events.MessageEvent,
	memoryID, entityID, roomID, worldID uuid.UUID,
) *messaging.Memory {
	content := messaging.Content{
		Text:   e.Content,
		Source: e.SourceType,
	}

	// 被回复的消息用同样的派生规则翻译成本地 ID，
	// 不要求那条 Memory 已经存在
	if e.InReplyToMessageID != "" {
		replyTo := identity.MemoryID(s.agentID, e.InReplyToMessageID)
		content.InReplyTo = &replyTo
	}

	return &messaging.Memory{
		ID:       memoryID,
		AgentID:  s.agentID,
		EntityID: entityID,
		RoomID:   roomID,
		WorldID:  worldID,
		Content:  content,
		Metadata: messaging.MemoryMetadata{
			SourceType:        e.SourceType,
			SourceID:          e.ID,
			AuthorDisplayName: e.AuthorDisplayName,
			Raw:               e.RawMessage,
		},
		CreatedAt: e.CreatedAt,
	}
}

// submitResponse 响应捕获回调：本地持久化回复并回传协调器
// 空文本或显式 IGNORE 的回复只落库，不回传
func (s *SyncService) submitResponse(
	ctx context.Context,
	e *events.MessageEvent,
	original *messaging.Memory,
	content *messaging.Content,
) ([]*messaging.Memory, error) {
	if content == nil {
		return nil, nil
	}

	// Agent 自己的 Entity 也按派生规则建立
	selfEntityID := identity.EntityID(s.agentID, s.agentID.String())
	if err := s.ensureEntity(ctx, selfEntityID, s.agentName); err != nil {
		return nil, fmt.Errorf("ensure self entity: %w", err)
	}

	reply := &messaging.Memory{
		// 回复是本地产生的，没有中央 ID 可派生，用随机 ID
		ID:       uuid.New(),
		AgentID:  s.agentID,
		EntityID: selfEntityID,
		RoomID:   original.RoomID,
		WorldID:  original.WorldID,
		Content:  *content,
		Metadata: messaging.MemoryMetadata{
			SourceType: "agent_response",
		},
		CreatedAt: time.Now().UnixMilli(),
	}
	reply.Content.InReplyTo = &original.ID

	if err := s.store.CreateMemory(ctx, reply); err != nil {
		return nil, fmt.Errorf("persist reply: %w", err)
	}

	if content.Text == "" || content.HasIgnoreAction() {
		s.logger.Debug("Reply suppressed, not submitting to coordinator",
			"message_id", e.ID,
			"empty", content.Text == "",
		)
		return []*messaging.Memory{reply}, nil
	}

	// 本地 ID 翻译回中央 ID：原始 Memory 的 sourceId 就是中央消息 ID
	err := s.coord.SubmitMessage(ctx, &coordinator.SubmitMessageRequest{
		ChannelID:          e.ChannelID,
		ServerID:           e.ServerID,
		AuthorID:           s.agentID.String(),
		Content:            content.Text,
		InReplyToMessageID: original.Metadata.SourceID,
		SourceType:         "agent_response",
	})
	if err != nil {
		s.logger.Error("Failed to submit reply to coordinator",
			"message_id", e.ID,
			"error", err,
		)
		return []*messaging.Memory{reply}, err
	}

	return []*messaging.Memory{reply}, nil
}

// handleMessageDeleted 消息删除事件
func (s *SyncService) handleMessageDeleted(ctx context.Context, e *events.MessageDeletedEvent) {
	memoryID := identity.MemoryID(s.agentID, e.MessageID)

	memory, err := s.store.GetMemoryByID(ctx, memoryID)
	if err != nil {
		s.logger.Error("Failed to look up memory for deletion",
			"message_id", e.MessageID,
			"error", err,
		)
		return
	}
	if memory == nil {
		s.logger.Debug("Deleted message has no local memory",
			"message_id", e.MessageID,
			"memory_id", memoryID,
		)
		return
	}

	s.pipeline.HandleMessageDeleted(ctx, memory)
}

// handleChannelCleared 频道清空事件
func (s *SyncService) handleChannelCleared(ctx context.Context, e *events.ChannelClearedEvent) {
	roomID := identity.RoomID(s.agentID, e.ChannelID)

	count, err := s.store.CountMemoriesByRoom(ctx, roomID)
	if err != nil {
		s.logger.Error("Failed to count memories for cleared channel",
			"channel_id", e.ChannelID,
			"error", err,
		)
		return
	}

	s.logger.Info("Channel cleared",
		"channel_id", e.ChannelID,
		"room_id", roomID,
		"memory_count", count,
	)
	s.pipeline.HandleChannelCleared(ctx, roomID, count)
}

// handleAgentUpdate 服务器成员变更事件
// 只处理针对本 Agent 的变更，频道缓存整体刷新
func (s *SyncService) handleAgentUpdate(ctx context.Context, e *events.AgentUpdateEvent) {
	if e.AgentID != s.agentID.String() {
		return
	}

	s.mu.Lock()
	switch e.UpdateType {
	case events.AgentAdded:
		s.subscribedServers[e.ServerID] = true
	case events.AgentRemoved:
		delete(s.subscribedServers, e.ServerID)
	}
	servers := make([]string, 0, len(s.subscribedServers))
	for id := range s.subscribedServers {
		servers = append(servers, id)
	}
	s.mu.Unlock()

	s.logger.Info("Subscription updated",
		"server_id", e.ServerID,
		"type", e.UpdateType,
		"subscribed_count", len(servers),
	)

	s.refreshValidChannels(ctx, servers)
}

// refreshValidChannels 按当前订阅的服务器整体重建频道缓存
func (s *SyncService) refreshValidChannels(ctx context.Context, servers []string) {
	channels := make(map[string]bool)
	for _, serverID := range servers {
		infos, err := s.coord.GetServerChannels(ctx, serverID)
		if err != nil {
			s.logger.Error("Failed to refresh server channels",
				"server_id", serverID,
				"error", err,
			)
			continue
		}
		for _, ch := range infos {
			channels[ch.ID] = true
		}
	}

	s.mu.Lock()
	s.validChannelIds = channels
	s.mu.Unlock()
}

// ensureChannelValid 频道有效性惰性校验
func (s *SyncService) ensureChannelValid(ctx context.Context, channelID string) bool {
	s.mu.RLock()
	valid := s.validChannelIds[channelID]
	s.mu.RUnlock()
	if valid {
		return true
	}

	exists, err := s.coord.ValidateChannel(ctx, channelID)
	if err != nil {
		s.logger.Error("Failed to validate channel", "channel_id", channelID, "error", err)
		return false
	}
	if !exists {
		s.logger.Debug("Channel does not exist, skipping message", "channel_id", channelID)
		return false
	}

	s.mu.Lock()
	s.validChannelIds[channelID] = true
	s.mu.Unlock()
	return true
}

// ensureWorld 幂等创建 World，唯一约束视为成功
func (s *SyncService) ensureWorld(ctx context.Context, worldID uuid.UUID, serverID string) error {
	err := s.store.CreateWorld(ctx, &messaging.World{
		ID:        worldID,
		AgentID:   s.agentID,
		ServerID:  serverID,
		Name:      fmt.Sprintf("server-%s", serverID),
		CreatedAt: time.Now().UnixMilli(),
	})
	if err != nil && !storage.IsUniqueConstraint(err) {
		return err
	}
	return nil
}

// ensureRoom 幂等创建 Room
func (s *SyncService) ensureRoom(ctx context.Context, roomID, worldID uuid.UUID, e *events.MessageEvent) error {
	err := s.store.CreateRoom(ctx, &messaging.Room{
		ID:        roomID,
		WorldID:   worldID,
		AgentID:   s.agentID,
		ChannelID: e.ChannelID,
		Name:      fmt.Sprintf("channel-%s", e.ChannelID),
		Source:    e.SourceType,
		Type:      messaging.ChannelTypeGroup,
		CreatedAt: time.Now().UnixMilli(),
	})
	if err != nil && !storage.IsUniqueConstraint(err) {
		return err
	}
	return nil
}

// ensureEntity 幂等创建 Entity
func (s *SyncService) ensureEntity(ctx context.Context, entityID uuid.UUID, displayName string) error {
	names := []string{}
	if displayName != "" {
		names = append(names, displayName)
	}
	err := s.store.CreateEntity(ctx, &messaging.Entity{
		ID:        entityID,
		AgentID:   s.agentID,
		Names:     names,
		CreatedAt: time.Now().UnixMilli(),
	})
	if err != nil && !storage.IsUniqueConstraint(err) {
		return err
	}
	return nil
}

// isSubscribed 检查服务器是否在订阅集合中
func (s *SyncService) isSubscribed(serverID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscribedServers[serverID]
}

// snapshotServers 当前订阅的服务器快照
func (s *SyncService) snapshotServers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	servers := make([]string, 0, len(s.subscribedServers))
	for id := range s.subscribedServers {
		servers = append(servers, id)
	}
	return servers
}

// SnapshotChannels 当前缓存的有效频道快照
func (s *SyncService) SnapshotChannels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	channels := make([]string, 0, len(s.validChannelIds))
	for id := range s.validChannelIds {
		channels = append(channels, id)
	}
	return channels
}

// SubscribedServers 当前订阅的服务器列表（对外只读）
func (s *SyncService) SubscribedServers() []string {
	return s.snapshotServers()
}

func contains(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
