package mcpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hylla/kanflow/internal/adapters/server/common"
	"github.com/mark3labs/mcp-go/mcp"
)

// stubBoardService provides deterministic board responses for MCP tool tests.
type stubBoardService struct {
	state    common.BoardStateResponse
	item     common.ItemView
	moveResp common.MoveResponse
	verdict  common.ValidationView
	items    []common.ItemView
	cycles   [][]string
	order    []string
	history  common.HistoryView
	err      error

	lastCreate common.CreateItemRequest
	lastMove   common.MoveRequest
	lastLink   common.LinkRequest
}

func (s *stubBoardService) BoardState(context.Context) (common.BoardStateResponse, error) {
	return s.state, s.err
}

func (s *stubBoardService) ListItems(context.Context) ([]common.ItemView, error) {
	return s.items, s.err
}

func (s *stubBoardService) GetItem(context.Context, string) (common.ItemView, error) {
	return s.item, s.err
}

func (s *stubBoardService) CreateItem(_ context.Context, req common.CreateItemRequest) (common.ItemView, error) {
	s.lastCreate = req
	if s.err != nil {
		return common.ItemView{}, s.err
	}
	return s.item, nil
}

func (s *stubBoardService) DeleteItem(context.Context, string) error {
	return s.err
}

func (s *stubBoardService) LinkItems(_ context.Context, req common.LinkRequest) error {
	s.lastLink = req
	return s.err
}

func (s *stubBoardService) UnlinkItems(_ context.Context, req common.LinkRequest) error {
	s.lastLink = req
	return s.err
}

func (s *stubBoardService) MoveItem(_ context.Context, req common.MoveRequest) (common.MoveResponse, error) {
	s.lastMove = req
	if s.err != nil {
		return common.MoveResponse{}, s.err
	}
	return s.moveResp, nil
}

func (s *stubBoardService) ValidateMove(_ context.Context, req common.MoveRequest) (common.ValidationView, error) {
	s.lastMove = req
	if s.err != nil {
		return common.ValidationView{}, s.err
	}
	return s.verdict, nil
}

func (s *stubBoardService) ReadyItems(context.Context) ([]common.ItemView, error) {
	return s.items, s.err
}

func (s *stubBoardService) BlockingItems(context.Context) ([]common.ItemView, error) {
	return s.items, s.err
}

func (s *stubBoardService) Cycles(context.Context) ([][]string, error) {
	return s.cycles, s.err
}

func (s *stubBoardService) Order(context.Context) ([]string, error) {
	return s.order, s.err
}

func (s *stubBoardService) History(context.Context, string) (common.HistoryView, error) {
	return s.history, s.err
}

// jsonRPCResponse models minimal JSON-RPC response fields used in MCP adapter tests.
type jsonRPCResponse struct {
	ID     float64        `json:"id"`
	Result map[string]any `json:"result"`
}

// callToolRequest constructs one deterministic tools/call JSON-RPC request payload.
func callToolRequest(id int, toolName string, arguments map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": arguments,
		},
	}
}

// toolResultText decodes the first text entry from one tool-call result payload.
func toolResultText(t *testing.T, result map[string]any) string {
	t.Helper()

	contentRaw, ok := result["content"].([]any)
	if !ok || len(contentRaw) == 0 {
		t.Fatalf("content missing in tool result: %#v", result)
	}
	first, ok := contentRaw[0].(map[string]any)
	if !ok {
		t.Fatalf("first content entry has unexpected type: %#v", contentRaw[0])
	}
	text, ok := first["text"].(string)
	if !ok {
		t.Fatalf("content text missing in tool result: %#v", first)
	}
	return text
}

// postJSONRPC sends one JSON-RPC payload and decodes the response body.
func postJSONRPC(t *testing.T, client *http.Client, url string, payload any) (*http.Response, jsonRPCResponse) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	var decoded jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if err := resp.Body.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return resp, decoded
}

// initializeRequest builds a deterministic MCP initialize request payload.
func initializeRequest() map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"clientInfo": map[string]any{
				"name":    "kanflow-test",
				"version": "1.0.0",
			},
		},
	}
}

func newTestServer(t *testing.T, board common.BoardService) *httptest.Server {
	t.Helper()
	handler, err := NewHandler(Config{}, board)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// TestHandlerUsesStatelessTransport verifies MCP transport does not issue session ids.
func TestHandlerUsesStatelessTransport(t *testing.T) {
	server := newTestServer(t, &stubBoardService{})

	resp, decoded := postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if decoded.ID != 1 {
		t.Fatalf("id = %v, want 1", decoded.ID)
	}
	if got := resp.Header.Get("Mcp-Session-Id"); got != "" {
		t.Fatalf("Mcp-Session-Id header = %q, want empty (stateless transport)", got)
	}
}

// TestHandlerRegistersBoardTools verifies tool discovery includes the board tools.
func TestHandlerRegistersBoardTools(t *testing.T) {
	server := newTestServer(t, &stubBoardService{})

	listPayload := map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tools/list",
	}
	_, decoded := postJSONRPC(t, server.Client(), server.URL, listPayload)
	toolsRaw, ok := decoded.Result["tools"].([]any)
	if !ok {
		t.Fatalf("tools missing in result: %#v", decoded.Result)
	}
	names := map[string]bool{}
	for _, raw := range toolsRaw {
		tool, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if name, ok := tool["name"].(string); ok {
			names[name] = true
		}
	}
	for _, want := range []string{
		"kanflow.board_state",
		"kanflow.create_item",
		"kanflow.move_item",
		"kanflow.validate_move",
		"kanflow.link_items",
		"kanflow.unlink_items",
		"kanflow.ready_items",
		"kanflow.blocking_items",
		"kanflow.cycles",
		"kanflow.order",
		"kanflow.history",
	} {
		if !names[want] {
			t.Fatalf("tool %q not registered; got %v", want, names)
		}
	}
}

// TestMoveItemTool verifies call arguments flow through to the board service.
func TestMoveItemTool(t *testing.T) {
	stub := &stubBoardService{
		moveResp: common.MoveResponse{
			Moved: true,
			Item:  common.ItemView{ID: "w1", Status: "in-progress"},
			Validation: common.ValidationView{
				IsValid:  true,
				Errors:   []string{},
				Warnings: []string{},
			},
		},
	}
	server := newTestServer(t, stub)

	_, decoded := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "kanflow.move_item", map[string]any{
		"id":     "w1",
		"status": "in-progress",
	}))
	if stub.lastMove.ID != "w1" || stub.lastMove.Status != "in-progress" {
		t.Fatalf("move request = %+v", stub.lastMove)
	}
	text := toolResultText(t, decoded.Result)
	if !strings.Contains(text, `"moved":true`) {
		t.Fatalf("unexpected result text %q", text)
	}
}

// TestToolErrorMapping verifies service errors surface as coded tool errors.
func TestToolErrorMapping(t *testing.T) {
	stub := &stubBoardService{err: common.ErrNotFound}
	server := newTestServer(t, stub)

	_, decoded := postJSONRPC(t, server.Client(), server.URL, callToolRequest(4, "kanflow.history", map[string]any{
		"id": "missing",
	}))
	text := toolResultText(t, decoded.Result)
	if !strings.HasPrefix(text, "not_found:") {
		t.Fatalf("unexpected error text %q", text)
	}
	if isError, _ := decoded.Result["isError"].(bool); !isError {
		t.Fatalf("expected isError result, got %#v", decoded.Result)
	}
}

// TestRequiredArgumentsRejected verifies missing arguments yield tool errors, not transport errors.
func TestRequiredArgumentsRejected(t *testing.T) {
	server := newTestServer(t, &stubBoardService{})

	resp, decoded := postJSONRPC(t, server.Client(), server.URL, callToolRequest(5, "kanflow.link_items", map[string]any{
		"predecessor_id": "a",
	}))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if isError, _ := decoded.Result["isError"].(bool); !isError {
		t.Fatalf("expected isError result, got %#v", decoded.Result)
	}
}

// TestNewHandlerRequiresBoardService verifies nil services are rejected at construction.
func TestNewHandlerRequiresBoardService(t *testing.T) {
	if _, err := NewHandler(Config{}, nil); err == nil {
		t.Fatal("expected constructor error")
	}
}
