package sync

import (
	"github.com/google/wire"

	"github.com/agentloop/backend/internal/domain/messaging"
	"github.com/agentloop/backend/internal/infrastructure/coordinator"
)

// ProviderSet 消息同步服务 ProviderSet
var ProviderSet = wire.NewSet(
	NewSyncService,
	NewNoopPipeline,
	wire.Bind(new(messaging.Pipeline), new(*NoopPipeline)),
	wire.Bind(new(Coordinator), new(*coordinator.Client)),
)
