// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hylla/kanflow/internal/adapters/server/common"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the board tools.
func NewHandler(cfg Config, board common.BoardService) (*Handler, error) {
	if board == nil {
		return nil, fmt.Errorf("board service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerBoardTools(mcpSrv, board)
	registerItemTools(mcpSrv, board)
	registerGraphTools(mcpSrv, board)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "kanflow"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerBoardTools registers the board-level state tools.
func registerBoardTools(srv *mcpserver.MCPServer, board common.BoardService) {
	srv.AddTool(
		mcp.NewTool(
			"kanflow.board_state",
			mcp.WithDescription("Return the full board grouped by column, with ready items and cycle counts."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			state, err := board.BoardState(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(state)
			if err != nil {
				return nil, fmt.Errorf("encode board_state result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"kanflow.history",
			mcp.WithDescription("Return one item's status timeline and per-status accumulated time."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Work item id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			itemID, err := req.RequireString("id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			view, err := board.History(ctx, itemID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(view)
			if err != nil {
				return nil, fmt.Errorf("encode history result: %w", err)
			}
			return result, nil
		},
	)
}

// registerItemTools registers create/move/validate/link tools.
func registerItemTools(srv *mcpserver.MCPServer, board common.BoardService) {
	srv.AddTool(
		mcp.NewTool(
			"kanflow.create_item",
			mcp.WithDescription("Create a new work item on the board."),
			mcp.WithString("title", mcp.Required(), mcp.Description("Item title")),
			mcp.WithString("id", mcp.Description("Optional explicit id")),
			mcp.WithString("status", mcp.Description("Initial column (defaults to the first column)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			title, err := req.RequireString("title")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			item, err := board.CreateItem(ctx, common.CreateItemRequest{
				ID:     req.GetString("id", ""),
				Title:  title,
				Status: req.GetString("status", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(item)
			if err != nil {
				return nil, fmt.Errorf("encode create_item result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"kanflow.move_item",
			mcp.WithDescription("Move one item to a new column; rejected moves return the validation verdict."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Work item id")),
			mcp.WithString("status", mcp.Required(), mcp.Description("Target column")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			itemID, err := req.RequireString("id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			status, err := req.RequireString("status")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			resp, err := board.MoveItem(ctx, common.MoveRequest{ID: itemID, Status: status})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(resp)
			if err != nil {
				return nil, fmt.Errorf("encode move_item result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"kanflow.validate_move",
			mcp.WithDescription("Preview the validation verdict for a move without applying it."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Work item id")),
			mcp.WithString("status", mcp.Required(), mcp.Description("Target column")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			itemID, err := req.RequireString("id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			status, err := req.RequireString("status")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			verdict, err := board.ValidateMove(ctx, common.MoveRequest{ID: itemID, Status: status})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(verdict)
			if err != nil {
				return nil, fmt.Errorf("encode validate_move result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"kanflow.link_items",
			mcp.WithDescription("Declare a dependency: the predecessor must finish before the successor starts."),
			mcp.WithString("predecessor_id", mcp.Required(), mcp.Description("Predecessor item id")),
			mcp.WithString("successor_id", mcp.Required(), mcp.Description("Successor item id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			predecessorID, err := req.RequireString("predecessor_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			successorID, err := req.RequireString("successor_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if err := board.LinkItems(ctx, common.LinkRequest{PredecessorID: predecessorID, SuccessorID: successorID}); err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"linked": true})
			if err != nil {
				return nil, fmt.Errorf("encode link_items result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"kanflow.unlink_items",
			mcp.WithDescription("Remove a declared dependency between two items."),
			mcp.WithString("predecessor_id", mcp.Required(), mcp.Description("Predecessor item id")),
			mcp.WithString("successor_id", mcp.Required(), mcp.Description("Successor item id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			predecessorID, err := req.RequireString("predecessor_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			successorID, err := req.RequireString("successor_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if err := board.UnlinkItems(ctx, common.LinkRequest{PredecessorID: predecessorID, SuccessorID: successorID}); err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"linked": false})
			if err != nil {
				return nil, fmt.Errorf("encode unlink_items result: %w", err)
			}
			return result, nil
		},
	)
}

// registerGraphTools registers ready/blocking/cycles/order tools.
func registerGraphTools(srv *mcpserver.MCPServer, board common.BoardService) {
	srv.AddTool(
		mcp.NewTool(
			"kanflow.ready_items",
			mcp.WithDescription("List items whose predecessors are all done and are not done themselves."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			items, err := board.ReadyItems(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"items": items})
			if err != nil {
				return nil, fmt.Errorf("encode ready_items result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"kanflow.blocking_items",
			mcp.WithDescription("List unfinished items that other items are waiting on."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			items, err := board.BlockingItems(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"items": items})
			if err != nil {
				return nil, fmt.Errorf("encode blocking_items result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"kanflow.cycles",
			mcp.WithDescription("Enumerate dependency cycles on the board as id paths."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			cycles, err := board.Cycles(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"cycles": cycles})
			if err != nil {
				return nil, fmt.Errorf("encode cycles result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"kanflow.order",
			mcp.WithDescription("Return a dependency-respecting order over all items; fails on cycles."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			order, err := board.Order(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"order": order})
			if err != nil {
				return nil, fmt.Errorf("encode order result: %w", err)
			}
			return result, nil
		},
	)
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, common.ErrCycleDetected):
		return mcp.NewToolResultError("cycle_detected: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
