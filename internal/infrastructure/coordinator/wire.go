package coordinator

import "github.com/google/wire"

// ProviderSet 协调器客户端 ProviderSet
var ProviderSet = wire.NewSet(NewClient)
