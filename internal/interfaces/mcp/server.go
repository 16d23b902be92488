package mcp

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	appKnowledge "github.com/agentloop/backend/internal/application/knowledge"
	appSync "github.com/agentloop/backend/internal/application/sync"
)

// MCPServer MCP 服务器
type MCPServer struct {
	server  *mcp.Server
	handler http.Handler

	searchService *appKnowledge.SearchService
	indexer       *appKnowledge.IndexerService
	syncService   *appSync.SyncService
}

// NewServer 创建 MCP 服务器
func NewServer(
	searchService *appKnowledge.SearchService,
	indexer *appKnowledge.IndexerService,
	syncService *appSync.SyncService,
) *MCPServer {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "agentloop-daemon",
			Version: "0.1.0",
		},
		nil, // 使用默认能力
	)

	// 创建服务器实例（用于闭包捕获依赖）
	mcpServer := &MCPServer{
		server:        server,
		searchService: searchService,
		indexer:       indexer,
		syncService:   syncService,
	}

	// 注册工具：search_knowledge
	mcp.AddTool(server, &mcp.Tool{
		Name: "search_knowledge",
		Description: `Search the agent's knowledge base using semantic similarity.

Use this tool when you need to:
- Find documents or document fragments relevant to a topic
- Retrieve background knowledge the agent has indexed from its document directories
- Look up shared knowledge published by other agents

Parameters:
- query (string, required): Natural language description of what you're looking for
- match_count (int, optional): Maximum number of results to return (1-20, default: 5)
- match_threshold (float, optional): Minimum similarity score (0-1, default: 0.85)
- include_documents (bool, optional): Also search whole-document embeddings, defaults to false

Returns: List of matching fragments with content, source path, chunk index, and similarity score.`,
	}, mcpServer.searchKnowledgeTool)

	// 注册工具：get_daemon_status
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_daemon_status",
		Description: "Get the status information of the agentloop daemon, including the agent identity, subscribed servers, and knowledge index statistics. No parameters required.",
	}, mcpServer.getDaemonStatusTool)

	// 创建 SSE Handler
	handler := mcp.NewSSEHandler(
		func(r *http.Request) *mcp.Server {
			// 每个请求返回同一个服务器实例
			return server
		},
		nil, // SSEOptions，使用默认值
	)

	mcpServer.handler = handler
	return mcpServer
}

// GetHandler 获取 HTTP Handler（用于集成到 HTTP 服务器）
func (s *MCPServer) GetHandler() http.Handler {
	return s.handler
}
