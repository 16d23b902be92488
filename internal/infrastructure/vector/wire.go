package vector

import "github.com/google/wire"

// ProviderSet 向量数据库 ProviderSet
var ProviderSet = wire.NewSet(NewQdrantManager)
