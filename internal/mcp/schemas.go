package mcp

import "github.com/mark3labs/mcp-go/mcp"

// chunkHTMLTool returns the tool definition for chunk_html
func chunkHTMLTool() mcp.Tool {
	return mcp.Tool{
		Name:        "chunk_html",
		Description: "Split one HTML page into token-bounded chunks with navigation metadata",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"html": map[string]interface{}{
					"type":        "string",
					"description": "Rendered page HTML",
				},
				"page_id": map[string]interface{}{
					"type":        "string",
					"description": "Page identifier used in chunk ids (defaults to a content hash)",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Page title (defaults to the document <title> or first <h1>)",
				},
				"url": map[string]interface{}{
					"type":        "string",
					"description": "Page URL used to build text-fragment deep links",
				},
				"chunk_size": map[string]interface{}{
					"type":        "integer",
					"description": "Token budget per chunk, overlap included",
					"minimum":     1,
				},
				"chunk_overlap": map[string]interface{}{
					"type":        "integer",
					"description": "Tokens carried from one chunk into the next",
					"minimum":     0,
				},
			},
			Required: []string{"html"},
		},
	}
}

// listPagesTool returns the tool definition for list_pages
func listPagesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_pages",
		Description: "List pages stored in the chunk database",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// getPageChunksTool returns the tool definition for get_page_chunks
func getPageChunksTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_page_chunks",
		Description: "Return the stored chunks of one page in chunk order",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"page_id": map[string]interface{}{
					"type":        "string",
					"description": "Page identifier",
				},
			},
			Required: []string{"page_id"},
		},
	}
}
