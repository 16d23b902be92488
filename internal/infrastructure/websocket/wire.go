package websocket

import "github.com/google/wire"

// ProviderSet WebSocket Hub ProviderSet
var ProviderSet = wire.NewSet(NewHub)
