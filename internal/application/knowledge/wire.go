package knowledge

import "github.com/google/wire"

// ProviderSet 知识索引与检索 ProviderSet
var ProviderSet = wire.NewSet(
	NewChunker,
	NewIndexerService,
	NewSearchService,
	NewInitializer,
)
