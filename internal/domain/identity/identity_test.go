package identity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDerive_Deterministic(t *testing.T) {
	agent := uuid.MustParse("7b9d2f3a-1c4e-4a8b-9f6d-0e5a3c2b1d4f")

	first := Derive(agent, "msg-123")
	second := Derive(agent, "msg-123")

	assert.Equal(t, first, second, "same inputs must derive the same id")
}

func TestDerive_DifferentNamespaces(t *testing.T) {
	agentA := uuid.MustParse("7b9d2f3a-1c4e-4a8b-9f6d-0e5a3c2b1d4f")
	agentB := uuid.MustParse("11111111-2222-3333-4444-555555555555")

	idA := Derive(agentA, "msg-123")
	idB := Derive(agentB, "msg-123")

	assert.NotEqual(t, idA, idB, "different namespaces must derive different ids for the same central id")
}

func TestDerive_DifferentCentralIDs(t *testing.T) {
	agent := uuid.MustParse("7b9d2f3a-1c4e-4a8b-9f6d-0e5a3c2b1d4f")

	assert.NotEqual(t, Derive(agent, "msg-1"), Derive(agent, "msg-2"))
}

func TestDerive_HelpersShareDerivation(t *testing.T) {
	agent := uuid.MustParse("7b9d2f3a-1c4e-4a8b-9f6d-0e5a3c2b1d4f")

	// 各类 ID 的派生使用同一个纯函数
	assert.Equal(t, Derive(agent, "server-1"), WorldID(agent, "server-1"))
	assert.Equal(t, Derive(agent, "channel-1"), RoomID(agent, "channel-1"))
	assert.Equal(t, Derive(agent, "author-1"), EntityID(agent, "author-1"))
	assert.Equal(t, Derive(agent, "msg-1"), MemoryID(agent, "msg-1"))
}
