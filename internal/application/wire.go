package application

import (
	"github.com/google/wire"

	"github.com/agentloop/backend/internal/application/knowledge"
	"github.com/agentloop/backend/internal/application/sync"
)

// ProviderSet Application 层总 ProviderSet
var ProviderSet = wire.NewSet(
	sync.ProviderSet,
	knowledge.ProviderSet,
)
