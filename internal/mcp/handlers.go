package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/roschler/livepeer-image-helper-back-end/internal/audit"
	"github.com/roschler/livepeer-image-helper-back-end/internal/chat"
	"github.com/roschler/livepeer-image-helper-back-end/internal/params"
	"github.com/roschler/livepeer-image-helper-back-end/internal/volley"
)

// handleProcessVolley runs one turn to completion.
func (s *Server) handleProcessVolley(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: user_id"), nil
	}
	prompt, err := request.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: prompt"), nil
	}

	turn := volley.Turn{
		UserID:         userID,
		Input:          prompt,
		Mode:           params.Mode(request.GetString("mode", string(params.ModeNew))),
		ActiveImageURL: request.GetString("active_image_url", ""),
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	var progress []string
	out, err := s.proc.Process(ctx, turn, volley.NotifierFunc(func(msg string) {
		progress = append(progress, msg)
	}))
	if err != nil {
		if errors.Is(err, volley.ErrInvalidInput) {
			return mcp.NewToolResultError(fmt.Sprintf("bad request: %v", err)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("turn failed after %q: %v", strings.Join(progress, " "), err)), nil
	}

	return mcp.NewToolResultText(formatOutcome(out)), nil
}

// handleGetHistory returns the history summary for a user.
func (s *Server) handleGetHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: user_id"), nil
	}
	kind, err := chat.ParseKind(request.GetString("assistant_kind", string(chat.ImageAssistant)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	h, err := s.history.Load(ctx, userID, kind)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load history: %v", err)), nil
	}
	summary, err := h.BuildHistoryPrompt(request.GetInt("last", -1))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if summary == "" {
		return mcp.NewToolResultText(fmt.Sprintf("No conversation found for %q.", userID)), nil
	}
	return mcp.NewToolResultText(summary), nil
}

// handleGetTurnAudit lists recent turns from the audit trail.
func (s *Server) handleGetTurnAudit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 20)
	if limit <= 0 {
		limit = 20
	}
	entries, err := s.audit.Query(ctx, audit.QueryFilter{
		UserID: request.GetString("user_id", ""),
		Status: audit.Status(request.GetString("status", "")),
		Limit:  limit,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("audit query failed: %v", err)), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("No turns recorded."), nil
	}
	return mcp.NewToolResultText(formatAudit(entries)), nil
}

func formatOutcome(out *volley.Outcome) string {
	var sb strings.Builder
	sb.WriteString(out.Volley.ResponseToUser)
	sb.WriteString("\n\nImages:\n")
	for _, u := range out.ImageURLs {
		sb.WriteString("- " + u + "\n")
	}
	return sb.String()
}

func formatAudit(entries []audit.Entry) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d turn(s):\n", len(entries)))
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("\n%s  %s  user=%s mode=%s status=%s (%dms)\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.ID, e.UserID, e.Mode, e.Status, e.DurationMS))
		sb.WriteString("  input: " + e.UserInput + "\n")
		if e.Error != "" {
			sb.WriteString("  error: " + e.Error + "\n")
		}
		if len(e.Changes) > 0 {
			sb.WriteString("  changes: " + strings.Join(e.Changes, "; ") + "\n")
		}
	}
	return sb.String()
}
