package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/agentloop/backend/internal/domain/events"
	"github.com/agentloop/backend/internal/domain/identity"
	"github.com/agentloop/backend/internal/domain/messaging"
	"github.com/agentloop/backend/internal/infrastructure/bus"
	"github.com/agentloop/backend/internal/infrastructure/config"
	"github.com/agentloop/backend/internal/infrastructure/coordinator"
	"github.com/agentloop/backend/internal/infrastructure/storage"
)

const testAgentID = "7b9d2f3a-1c4e-4a8b-9f6d-0e5a3c2b1d4f"

// mockCoordinator 协调器客户端 mock
type mockCoordinator struct {
	mock.Mock
}

func (m *mockCoordinator) GetAgentServers(ctx context.Context, agentID string) ([]string, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockCoordinator) GetServerChannels(ctx context.Context, serverID string) ([]coordinator.ChannelInfo, error) {
	args := m.Called(ctx, serverID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]coordinator.ChannelInfo), args.Error(1)
}

func (m *mockCoordinator) GetChannelParticipants(ctx context.Context, channelID string) ([]string, error) {
	args := m.Called(ctx, channelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockCoordinator) ValidateChannel(ctx context.Context, channelID string) (bool, error) {
	args := m.Called(ctx, channelID)
	return args.Bool(0), args.Error(1)
}

func (m *mockCoordinator) SubmitMessage(ctx context.Context, req *coordinator.SubmitMessageRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *mockCoordinator) NotifyComplete(ctx context.Context, req *coordinator.CompleteRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

// scriptedPipeline 可编程的决策管线
type scriptedPipeline struct {
	mu          gosync.Mutex
	handled     []*messaging.Memory
	respondWith *messaging.Content
	deleted     []*messaging.Memory
	clearedWith []int
}

func (p *scriptedPipeline) HandleMessage(ctx context.Context, msg *messaging.Memory, respond messaging.ResponseFunc, done func()) {
	defer done()
	p.mu.Lock()
	p.handled = append(p.handled, msg)
	p.mu.Unlock()
	if p.respondWith != nil {
		respond(p.respondWith)
	}
}

func (p *scriptedPipeline) HandleMessageDeleted(ctx context.Context, msg *messaging.Memory) {
	p.mu.Lock()
	p.deleted = append(p.deleted, msg)
	p.mu.Unlock()
}

func (p *scriptedPipeline) HandleChannelCleared(ctx context.Context, roomID uuid.UUID, memoryCount int) {
	p.mu.Lock()
	p.clearedWith = append(p.clearedWith, memoryCount)
	p.mu.Unlock()
}

func (p *scriptedPipeline) handledCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handled)
}

// newTestService 真实 SQLite 存储 + mock 协调器 + 可编程管线
func newTestService(t *testing.T, coord Coordinator, pipeline messaging.Pipeline) (*SyncService, messaging.Store) {
	t.Helper()

	db, err := storage.OpenDB(&config.DatabaseConfig{
		Path: t.TempDir() + "/test.db",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := storage.NewMessageRepository(db)
	eventBus := bus.NewEventBus()
	t.Cleanup(eventBus.Close)

	svc, err := NewSyncService(
		&config.AgentConfig{ID: testAgentID, Name: "test-agent"},
		store, coord, pipeline, eventBus, nil,
	)
	require.NoError(t, err)
	t.Cleanup(svc.Stop)

	return svc, store
}

func newMessageEvent(id string) *events.MessageEvent {
	return &events.MessageEvent{
		ID:        id,
		ChannelID: "c1",
		ServerID:  "S",
		AuthorID:  "u1",
		Content:   "hi",
		CreatedAt: 1000,
	}
}

// expectHappyPath 满足状态机全部校验的协调器桩
func expectHappyPath(coord *mockCoordinator) {
	coord.On("GetChannelParticipants", mock.Anything, "c1").
		Return([]string{testAgentID, "u1"}, nil)
	coord.On("ValidateChannel", mock.Anything, "c1").Return(true, nil)
	coord.On("NotifyComplete", mock.Anything, mock.Anything).Return(nil)
}

func TestSyncService_NewMessageCreatesDerivedMemory(t *testing.T) {
	coord := &mockCoordinator{}
	expectHappyPath(coord)
	pipeline := &scriptedPipeline{}

	svc, store := newTestService(t, coord, pipeline)
	svc.subscribedServers["S"] = true

	svc.handleNewMessage(context.Background(), newMessageEvent("m1"))

	agentID := uuid.MustParse(testAgentID)
	wantMemoryID := identity.MemoryID(agentID, "m1")

	memory, err := store.GetMemoryByID(context.Background(), wantMemoryID)
	require.NoError(t, err)
	require.NotNil(t, memory)
	assert.Equal(t, identity.RoomID(agentID, "c1"), memory.RoomID)
	assert.Equal(t, identity.WorldID(agentID, "S"), memory.WorldID)
	assert.Equal(t, identity.EntityID(agentID, "u1"), memory.EntityID)
	assert.Equal(t, "hi", memory.Content.Text)
	assert.Equal(t, "m1", memory.Metadata.SourceID)

	assert.Equal(t, 1, pipeline.handledCount())
	coord.AssertNumberOfCalls(t, "NotifyComplete", 1)
}

func TestSyncService_DuplicateDeliveryIsIdempotent(t *testing.T) {
	coord := &mockCoordinator{}
	expectHappyPath(coord)
	pipeline := &scriptedPipeline{}

	svc, store := newTestService(t, coord, pipeline)
	svc.subscribedServers["S"] = true

	svc.handleNewMessage(context.Background(), newMessageEvent("m1"))
	svc.handleNewMessage(context.Background(), newMessageEvent("m1"))

	agentID := uuid.MustParse(testAgentID)
	memory, err := store.GetMemoryByID(context.Background(), identity.MemoryID(agentID, "m1"))
	require.NoError(t, err)
	require.NotNil(t, memory)

	// 重复投递既不重复落库也不重复触发管线
	assert.Equal(t, 1, pipeline.handledCount())
	coord.AssertNumberOfCalls(t, "NotifyComplete", 1)
}

func TestSyncService_SkipsWhenNotParticipant(t *testing.T) {
	coord := &mockCoordinator{}
	coord.On("GetChannelParticipants", mock.Anything, "c1").
		Return([]string{"someone-else"}, nil)
	pipeline := &scriptedPipeline{}

	svc, _ := newTestService(t, coord, pipeline)
	svc.subscribedServers["S"] = true

	svc.handleNewMessage(context.Background(), newMessageEvent("m1"))

	assert.Equal(t, 0, pipeline.handledCount())
	coord.AssertNotCalled(t, "NotifyComplete", mock.Anything, mock.Anything)
}

func TestSyncService_SkipsWhenServerNotSubscribed(t *testing.T) {
	coord := &mockCoordinator{}
	coord.On("GetChannelParticipants", mock.Anything, "c1").
		Return([]string{testAgentID}, nil)
	pipeline := &scriptedPipeline{}

	svc, _ := newTestService(t, coord, pipeline)

	svc.handleNewMessage(context.Background(), newMessageEvent("m1"))

	assert.Equal(t, 0, pipeline.handledCount())
}

func TestSyncService_SkipsOwnEcho(t *testing.T) {
	coord := &mockCoordinator{}
	coord.On("GetChannelParticipants", mock.Anything, "c1").
		Return([]string{testAgentID}, nil)
	pipeline := &scriptedPipeline{}

	svc, _ := newTestService(t, coord, pipeline)
	svc.subscribedServers["S"] = true

	e := newMessageEvent("m1")
	e.AuthorID = testAgentID
	svc.handleNewMessage(context.Background(), e)

	assert.Equal(t, 0, pipeline.handledCount())
}

func TestSyncService_SkipsUnknownChannel(t *testing.T) {
	coord := &mockCoordinator{}
	coord.On("GetChannelParticipants", mock.Anything, "c1").
		Return([]string{testAgentID}, nil)
	coord.On("ValidateChannel", mock.Anything, "c1").Return(false, nil)
	pipeline := &scriptedPipeline{}

	svc, _ := newTestService(t, coord, pipeline)
	svc.subscribedServers["S"] = true

	svc.handleNewMessage(context.Background(), newMessageEvent("m1"))

	assert.Equal(t, 0, pipeline.handledCount())
}

func TestSyncService_ReplyIsPersistedAndSubmitted(t *testing.T) {
	coord := &mockCoordinator{}
	expectHappyPath(coord)

	var submitted *coordinator.SubmitMessageRequest
	coord.On("SubmitMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			submitted = args.Get(1).(*coordinator.SubmitMessageRequest)
		}).
		Return(nil)

	pipeline := &scriptedPipeline{
		respondWith: &messaging.Content{Text: "hello back"},
	}

	svc, store := newTestService(t, coord, pipeline)
	svc.subscribedServers["S"] = true

	svc.handleNewMessage(context.Background(), newMessageEvent("m1"))

	require.NotNil(t, submitted)
	assert.Equal(t, "hello back", submitted.Content)
	// 回传用中央消息 ID，而不是本地派生 ID
	assert.Equal(t, "m1", submitted.InReplyToMessageID)
	assert.Equal(t, testAgentID, submitted.AuthorID)

	// 回复也落到原始消息所在的房间
	agentID := uuid.MustParse(testAgentID)
	roomID := identity.RoomID(agentID, "c1")
	memories, err := store.GetMemoriesByRoom(context.Background(), roomID, 10)
	require.NoError(t, err)
	assert.Len(t, memories, 2)

	coord.AssertNumberOfCalls(t, "NotifyComplete", 1)
}

func TestSyncService_ReplySuppression(t *testing.T) {
	tests := []struct {
		name    string
		content *messaging.Content
	}{
		{"empty text", &messaging.Content{Text: ""}},
		{"ignore action", &messaging.Content{Text: "ignored", Actions: []string{messaging.IgnoreAction}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coord := &mockCoordinator{}
			expectHappyPath(coord)
			pipeline := &scriptedPipeline{respondWith: tt.content}

			svc, _ := newTestService(t, coord, pipeline)
			svc.subscribedServers["S"] = true

			svc.handleNewMessage(context.Background(), newMessageEvent("m1"))

			// 被压制的回复不回传，但完成通知仍然恰好一次
			coord.AssertNotCalled(t, "SubmitMessage", mock.Anything, mock.Anything)
			coord.AssertNumberOfCalls(t, "NotifyComplete", 1)
		})
	}
}

func TestSyncService_HandleEventRunsMessageAsync(t *testing.T) {
	coord := &mockCoordinator{}
	expectHappyPath(coord)
	pipeline := &scriptedPipeline{}

	svc, _ := newTestService(t, coord, pipeline)
	svc.subscribedServers["S"] = true

	require.NoError(t, svc.HandleEvent(newMessageEvent("m1")))
	svc.wg.Wait()

	assert.Equal(t, 1, pipeline.handledCount())
}

func TestSyncService_MessageDeletedWithoutLocalMemoryIsNoop(t *testing.T) {
	coord := &mockCoordinator{}
	pipeline := &scriptedPipeline{}

	svc, _ := newTestService(t, coord, pipeline)

	svc.handleMessageDeleted(context.Background(), &events.MessageDeletedEvent{MessageID: "ghost"})

	pipeline.mu.Lock()
	defer pipeline.mu.Unlock()
	assert.Empty(t, pipeline.deleted)
}

func TestSyncService_MessageDeletedNotifiesPipeline(t *testing.T) {
	coord := &mockCoordinator{}
	expectHappyPath(coord)
	pipeline := &scriptedPipeline{}

	svc, _ := newTestService(t, coord, pipeline)
	svc.subscribedServers["S"] = true

	svc.handleNewMessage(context.Background(), newMessageEvent("m1"))
	svc.handleMessageDeleted(context.Background(), &events.MessageDeletedEvent{MessageID: "m1"})

	pipeline.mu.Lock()
	defer pipeline.mu.Unlock()
	require.Len(t, pipeline.deleted, 1)
	agentID := uuid.MustParse(testAgentID)
	assert.Equal(t, identity.MemoryID(agentID, "m1"), pipeline.deleted[0].ID)
}

func TestSyncService_ChannelClearedReportsCount(t *testing.T) {
	coord := &mockCoordinator{}
	expectHappyPath(coord)
	pipeline := &scriptedPipeline{}

	svc, _ := newTestService(t, coord, pipeline)
	svc.subscribedServers["S"] = true

	for i := 0; i < 3; i++ {
		svc.handleNewMessage(context.Background(), newMessageEvent(fmt.Sprintf("m%d", i)))
	}

	svc.handleChannelCleared(context.Background(), &events.ChannelClearedEvent{ChannelID: "c1"})

	pipeline.mu.Lock()
	defer pipeline.mu.Unlock()
	require.Len(t, pipeline.clearedWith, 1)
	assert.Equal(t, 3, pipeline.clearedWith[0])
}

func TestSyncService_AgentUpdateRefreshesCaches(t *testing.T) {
	coord := &mockCoordinator{}
	coord.On("GetServerChannels", mock.Anything, "S2").
		Return([]coordinator.ChannelInfo{{ID: "c9"}}, nil)
	pipeline := &scriptedPipeline{}

	svc, _ := newTestService(t, coord, pipeline)

	svc.handleAgentUpdate(context.Background(), &events.AgentUpdateEvent{
		AgentID:    testAgentID,
		ServerID:   "S2",
		UpdateType: events.AgentAdded,
	})

	assert.True(t, svc.isSubscribed("S2"))
	assert.Contains(t, svc.SnapshotChannels(), "c9")

	svc.handleAgentUpdate(context.Background(), &events.AgentUpdateEvent{
		AgentID:    testAgentID,
		ServerID:   "S2",
		UpdateType: events.AgentRemoved,
	})

	assert.False(t, svc.isSubscribed("S2"))
	assert.Empty(t, svc.SnapshotChannels())
}

func TestSyncService_AgentUpdateForOtherAgentIgnored(t *testing.T) {
	coord := &mockCoordinator{}
	pipeline := &scriptedPipeline{}

	svc, _ := newTestService(t, coord, pipeline)

	svc.handleAgentUpdate(context.Background(), &events.AgentUpdateEvent{
		AgentID:    uuid.NewString(),
		ServerID:   "S2",
		UpdateType: events.AgentAdded,
	})

	assert.False(t, svc.isSubscribed("S2"))
	coord.AssertNotCalled(t, "GetServerChannels", mock.Anything, mock.Anything)
}

func TestSyncService_BootSyncSeedsCaches(t *testing.T) {
	coord := &mockCoordinator{}
	coord.On("GetAgentServers", mock.Anything, testAgentID).
		Return([]string{"S1", "S2"}, nil)
	coord.On("GetServerChannels", mock.Anything, "S1").
		Return([]coordinator.ChannelInfo{{ID: "c1"}}, nil)
	coord.On("GetServerChannels", mock.Anything, "S2").
		Return([]coordinator.ChannelInfo{{ID: "c2"}, {ID: "c3"}}, nil)
	pipeline := &scriptedPipeline{}

	svc, _ := newTestService(t, coord, pipeline)

	svc.bootSync()

	assert.True(t, svc.isSubscribed("S1"))
	assert.True(t, svc.isSubscribed("S2"))
	assert.ElementsMatch(t, []string{"c1", "c2", "c3"}, svc.SnapshotChannels())
}
