package mcp

import "github.com/mark3labs/mcp-go/mcp"

// processVolleyTool defines the process_volley MCP tool.
var processVolleyTool = mcp.NewTool("process_volley",
	mcp.WithDescription("Run one image assistant turn: classify the request, adjust generation parameters, compose the prompt and generate images. Returns the assistant's answer and the stored image URLs."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("Id of the user the conversation belongs to"),
	),
	mcp.WithString("prompt",
		mcp.Required(),
		mcp.Description("What the user typed"),
	),
	mcp.WithString("mode",
		mcp.Description("Image processing mode (default new)"),
		mcp.Enum("new", "refine", "enhance"),
	),
	mcp.WithString("active_image_url",
		mcp.Description("URL of the image being refined; required in refine mode"),
	),
)

// getHistoryTool defines the get_history MCP tool.
var getHistoryTool = mcp.NewTool("get_history",
	mcp.WithDescription("Summarize a user's recent conversation with an assistant as USER INPUT / SYSTEM RESPONSE pairs."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("Id of the user"),
	),
	mcp.WithString("assistant_kind",
		mcp.Description("Which assistant's history to read (default image_assistant)"),
		mcp.Enum("image_assistant", "license_assistant"),
	),
	mcp.WithNumber("last",
		mcp.Description("How many recent turns to include; -1 for all (default -1)"),
	),
)

// getTurnAuditTool defines the get_turn_audit MCP tool.
var getTurnAuditTool = mcp.NewTool("get_turn_audit",
	mcp.WithDescription("List recent image assistant turns with their outcome, duration and parameter changes."),
	mcp.WithString("user_id",
		mcp.Description("Only show turns for this user"),
	),
	mcp.WithString("status",
		mcp.Description("Only show turns with this outcome"),
		mcp.Enum("succeeded", "failed"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of entries to return (default 20)"),
	),
)
