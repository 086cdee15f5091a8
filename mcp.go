package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gamma-omg/contextqa/docstore"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type chunkRetriever interface {
	Retrieve(ctx context.Context, question, source string) ([]docstore.ScoredChunk, error)
}

// NewMCPServer exposes the knowledge base as an MCP tool so external agents
// can search the ingested documents.
func NewMCPServer(retriever chunkRetriever) *server.MCPServer {
	tool := mcp.NewTool("search_knowledge_base",
		mcp.WithDescription("Searches the ingested documents and returns the best matching text chunks"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithString("source",
			mcp.Description("Restrict the search to a single document by name"),
		))

	srv := server.NewMCPServer("ContextQA", "1.0.0", server.WithToolCapabilities(false))
	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		source := request.GetString("source", "")

		hits, err := retriever.Retrieve(ctx, q, source)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var response string
		for _, h := range hits {
			raw, err := json.Marshal(struct {
				Score  float32 `json:"score"`
				Source string  `json:"source"`
				Text   string  `json:"text"`
			}{
				Score:  h.Score,
				Source: h.Source,
				Text:   h.Text,
			})
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			response += fmt.Sprintf("%s\n", string(raw))
		}

		return mcp.NewToolResultText(response), nil
	})

	return srv
}
