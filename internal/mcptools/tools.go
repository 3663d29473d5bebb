// Package mcptools exposes identity and engagement queries as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/services"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/store"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Handler serves the engagement tools over an in-process store.
type Handler struct {
	svc   *services.IdentityService
	store store.Store
}

func NewHandler(svc *services.IdentityService, s store.Store) *Handler {
	return &Handler{svc: svc, store: s}
}

// RegisterTools adds every tool to s.
func (h *Handler) RegisterTools(s *server.MCPServer) error {
	s.AddTool(mcp.NewTool("get_identity",
		mcp.WithDescription("Look up a platform identity by handle, including its bound wallets and archived flag."),
		mcp.WithString("handle", mcp.Required(), mcp.Description("Platform handle, with or without a leading @")),
	), h.handleGetIdentity)

	s.AddTool(mcp.NewTool("register_identity",
		mcp.WithDescription("Register a handle with its first wallet. The result reports ok plus a reason such as registered, duplicate_identity, duplicate_wallet, invalid_wallet or invalid_identity."),
		mcp.WithString("handle", mcp.Required(), mcp.Description("Platform handle")),
		mcp.WithString("address", mcp.Required(), mcp.Description("Wallet address")),
		mcp.WithString("chain", mcp.Description("Wallet chain (default solana)")),
	), h.handleRegister)

	s.AddTool(mcp.NewTool("recent_posts",
		mcp.WithDescription("Most recent stored posts authored by a handle, newest first."),
		mcp.WithString("handle", mcp.Required(), mcp.Description("Platform handle")),
		mcp.WithNumber("limit", mcp.Description("Number of posts (1-100, default 10)")),
	), h.handleRecentPosts)

	s.AddTool(mcp.NewTool("relevant_posts",
		mcp.WithDescription("Most recent posts classified as relevant to the tracked project."),
		mcp.WithNumber("limit", mcp.Description("Number of posts (1-100, default 10)")),
	), h.handleRelevantPosts)

	s.AddTool(mcp.NewTool("top_engagement",
		mcp.WithDescription("Identities ranked by summed engagement score."),
		mcp.WithNumber("limit", mcp.Description("Number of identities (1-100, default 10)")),
	), h.handleTop)
	return nil
}

func (h *Handler) handleGetIdentity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	handle, err := req.RequireString("handle")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := h.svc.Get(ctx, handle)
	if errors.Is(err, model.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("identity @%s not found", model.NormalizeHandle(handle))), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}
	return jsonResult(id)
}

func (h *Handler) handleRegister(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	handle, err := req.RequireString("handle")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	address, err := req.RequireString("address")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	chain, _ := req.GetArguments()["chain"].(string)

	out, err := h.svc.Register(ctx, handle, address, chain)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("registration failed: %v", err)), nil
	}
	return jsonResult(out)
}

func (h *Handler) handleRecentPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	handle, err := req.RequireString("handle")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := h.svc.Get(ctx, handle)
	if errors.Is(err, model.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("identity @%s not found", model.NormalizeHandle(handle))), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}
	posts, err := h.store.Posts().RecentByAuthor(ctx, id.ExternalID, limitArg(req))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{"posts": posts, "count": len(posts)})
}

func (h *Handler) handleRelevantPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	posts, err := h.store.Posts().Relevant(ctx, limitArg(req))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{"posts": posts, "count": len(posts)})
}

func (h *Handler) handleTop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	aggs, err := h.store.Engagement().Top(ctx, limitArg(req))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{"leaders": aggs, "count": len(aggs)})
}

// limitArg reads the optional numeric limit. JSON numbers arrive as float64.
func limitArg(req mcp.CallToolRequest) int {
	switch v := req.GetArguments()["limit"].(type) {
	case float64:
		if v >= 1 && v <= maxLimit {
			return int(v)
		}
	case int:
		if v >= 1 && v <= maxLimit {
			return v
		}
	}
	return defaultLimit
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}
