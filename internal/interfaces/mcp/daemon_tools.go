package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// DaemonStatusInput 守护进程状态工具输入（空输入）
type DaemonStatusInput struct{}

// DaemonStatusOutput 守护进程状态工具输出
type DaemonStatusOutput struct {
	Status            string   `json:"status" jsonschema:"Running status"`
	Version           string   `json:"version" jsonschema:"Daemon version"`
	AgentID           string   `json:"agent_id" jsonschema:"Agent UUID used as the identity namespace"`
	SubscribedServers []string `json:"subscribed_servers" jsonschema:"Servers the agent is currently subscribed to"`
	Documents         int      `json:"documents" jsonschema:"Number of indexed knowledge documents"`
	Fragments         int      `json:"fragments" jsonschema:"Number of indexed knowledge fragments"`
}

// getDaemonStatusTool 获取守护进程状态工具
func (s *MCPServer) getDaemonStatusTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input DaemonStatusInput,
) (*mcp.CallToolResult, DaemonStatusOutput, error) {
	output := DaemonStatusOutput{
		Status:            "running",
		Version:           "v0.1.0",
		AgentID:           s.syncService.AgentID().String(),
		SubscribedServers: s.syncService.SubscribedServers(),
	}

	// 统计失败不影响状态返回
	if stats, err := s.indexer.GetStats(ctx); err == nil {
		output.Documents = stats.Documents
		output.Fragments = stats.Fragments
	}

	return nil, output, nil
}
