package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	appKnowledge "github.com/agentloop/backend/internal/application/knowledge"
)

// SearchKnowledgeInput 知识检索工具输入
type SearchKnowledgeInput struct {
	Query            string  `json:"query" jsonschema:"Search query - describe what you're looking for in natural language (required)"`
	MatchCount       int     `json:"match_count,omitempty" jsonschema:"Maximum number of results to return, defaults to 5, max 20"`
	MatchThreshold   float32 `json:"match_threshold,omitempty" jsonschema:"Minimum similarity score between 0 and 1, defaults to 0.85"`
	IncludeDocuments bool    `json:"include_documents,omitempty" jsonschema:"Also search whole-document embeddings, defaults to false"`
}

// SearchKnowledgeOutput 知识检索工具输出
type SearchKnowledgeOutput struct {
	Results    []*KnowledgeHit `json:"results" jsonschema:"List of matching knowledge fragments"`
	TotalCount int             `json:"total_count" jsonschema:"Total number of results found"`
}

// KnowledgeHit 单条检索命中（精简版，只包含对 AI 有用的信息）
type KnowledgeHit struct {
	Content    string  `json:"content" jsonschema:"Fragment text content"`
	Path       string  `json:"path,omitempty" jsonschema:"Source document path"`
	ChunkIndex int     `json:"chunk_index" jsonschema:"Position of the fragment within its document"`
	Similarity float32 `json:"similarity" jsonschema:"Cosine similarity score"`
	Shared     bool    `json:"shared,omitempty" jsonschema:"Whether the fragment comes from shared knowledge"`
}

// searchKnowledgeTool 知识检索工具实现
func (s *MCPServer) searchKnowledgeTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SearchKnowledgeInput,
) (*mcp.CallToolResult, SearchKnowledgeOutput, error) {
	output := SearchKnowledgeOutput{
		Results: []*KnowledgeHit{},
	}

	if input.Query == "" {
		return nil, output, fmt.Errorf("query is required")
	}

	// 默认 5 条，最多 20 条，避免上下文过载
	count := input.MatchCount
	if count <= 0 {
		count = 5
	}
	if count > 20 {
		count = 20
	}

	results, err := s.searchService.Search(ctx, &appKnowledge.SearchRequest{
		Query:            input.Query,
		MatchThreshold:   input.MatchThreshold,
		MatchCount:       count,
		IncludeDocuments: input.IncludeDocuments,
	})
	if err != nil {
		return nil, output, fmt.Errorf("search failed: %w", err)
	}

	output.Results = make([]*KnowledgeHit, 0, len(results))
	for _, r := range results {
		output.Results = append(output.Results, &KnowledgeHit{
			Content:    r.Content,
			Path:       r.Path,
			ChunkIndex: r.ChunkIndex,
			Similarity: r.Similarity,
			Shared:     r.Shared,
		})
	}
	output.TotalCount = len(output.Results)

	// 返回 nil，SDK 会自动序列化 output
	return nil, output, nil
}
