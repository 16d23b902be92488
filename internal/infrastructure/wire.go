package infrastructure

import (
	"github.com/google/wire"

	"github.com/agentloop/backend/internal/infrastructure/bus"
	"github.com/agentloop/backend/internal/infrastructure/config"
	"github.com/agentloop/backend/internal/infrastructure/coordinator"
	"github.com/agentloop/backend/internal/infrastructure/embedding"
	"github.com/agentloop/backend/internal/infrastructure/storage"
	"github.com/agentloop/backend/internal/infrastructure/vector"
	"github.com/agentloop/backend/internal/infrastructure/watcher"
	"github.com/agentloop/backend/internal/infrastructure/websocket"
)

// ProviderSet Infrastructure 层总 ProviderSet
var ProviderSet = wire.NewSet(
	config.ProviderSet,
	bus.ProviderSet,
	storage.ProviderSet,
	coordinator.ProviderSet,
	embedding.ProviderSet,
	vector.ProviderSet,
	watcher.ProviderSet,
	websocket.ProviderSet,
)
