// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hylla/kanflow/internal/adapters/server/common"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	board common.BoardService
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter over the board service.
func NewHandler(board common.BoardService) *Handler {
	return &Handler{board: board}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.board == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "board service is not configured",
		})
		return
	}

	path := normalizePath(r.URL.Path)
	switch {
	case path == "board":
		h.requireGet(w, r, h.handleBoardState)
	case path == "ready":
		h.requireGet(w, r, h.handleReady)
	case path == "blocking":
		h.requireGet(w, r, h.handleBlocking)
	case path == "cycles":
		h.requireGet(w, r, h.handleCycles)
	case path == "order":
		h.requireGet(w, r, h.handleOrder)
	case path == "items":
		switch r.Method {
		case http.MethodGet:
			h.handleListItems(w, r)
		case http.MethodPost:
			h.handleCreateItem(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case path == "links":
		switch r.Method {
		case http.MethodPost:
			h.handleLink(w, r)
		case http.MethodDelete:
			h.handleUnlink(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodPost, http.MethodDelete)
		}
	default:
		itemID, action, ok := resolveItemRoute(path)
		if !ok {
			writeJSONError(w, http.StatusNotFound, APIError{
				Code:    "not_found",
				Message: "endpoint not found",
			})
			return
		}
		h.routeItem(w, r, itemID, action)
	}
}

// routeItem dispatches `/items/{id}` and its sub-resources.
func (h *Handler) routeItem(w http.ResponseWriter, r *http.Request, itemID, action string) {
	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.handleGetItem(w, r, itemID)
		case http.MethodDelete:
			h.handleDeleteItem(w, r, itemID)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodDelete)
		}
	case "move":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleMoveItem(w, r, itemID)
	case "validate":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleValidateMove(w, r, itemID)
	case "history":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleHistory(w, r, itemID)
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	}
}

func (h *Handler) requireGet(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request)) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	next(w, r)
}

// handleBoardState serves GET `/board`.
func (h *Handler) handleBoardState(w http.ResponseWriter, r *http.Request) {
	state, err := h.board.BoardState(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleListItems serves GET `/items`.
func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.board.ListItems(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
	})
}

// handleCreateItem serves POST `/items`.
func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req common.CreateItemRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	item, err := h.board.CreateItem(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// handleGetItem serves GET `/items/{id}`.
func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request, itemID string) {
	item, err := h.board.GetItem(r.Context(), itemID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleDeleteItem serves DELETE `/items/{id}`.
func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request, itemID string) {
	if err := h.board.DeleteItem(r.Context(), itemID); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMoveItem serves POST `/items/{id}/move`.
func (h *Handler) handleMoveItem(w http.ResponseWriter, r *http.Request, itemID string) {
	var payload common.MoveRequest
	if err := decodeJSONBody(r.Context(), w, r, &payload); err != nil {
		writeErrorFrom(w, err)
		return
	}
	payload.ID = itemID
	resp, err := h.board.MoveItem(r.Context(), payload)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	status := http.StatusOK
	if !resp.Moved {
		// The transition was rejected by validation; the verdict is the body.
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// handleValidateMove serves POST `/items/{id}/validate`.
func (h *Handler) handleValidateMove(w http.ResponseWriter, r *http.Request, itemID string) {
	var payload common.MoveRequest
	if err := decodeJSONBody(r.Context(), w, r, &payload); err != nil {
		writeErrorFrom(w, err)
		return
	}
	payload.ID = itemID
	result, err := h.board.ValidateMove(r.Context(), payload)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleHistory serves GET `/items/{id}/history`.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request, itemID string) {
	view, err := h.board.History(r.Context(), itemID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleLink serves POST `/links`.
func (h *Handler) handleLink(w http.ResponseWriter, r *http.Request) {
	var req common.LinkRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if err := h.board.LinkItems(r.Context(), req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"linked": true,
	})
}

// handleUnlink serves DELETE `/links`.
func (h *Handler) handleUnlink(w http.ResponseWriter, r *http.Request) {
	var req common.LinkRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if err := h.board.UnlinkItems(r.Context(), req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"linked": false,
	})
}

// handleReady serves GET `/ready`.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	items, err := h.board.ReadyItems(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
	})
}

// handleBlocking serves GET `/blocking`.
func (h *Handler) handleBlocking(w http.ResponseWriter, r *http.Request) {
	items, err := h.board.BlockingItems(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
	})
}

// handleCycles serves GET `/cycles`.
func (h *Handler) handleCycles(w http.ResponseWriter, r *http.Request) {
	cycles, err := h.board.Cycles(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cycles": cycles,
	})
}

// handleOrder serves GET `/order`.
func (h *Handler) handleOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.board.Order(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order": order,
	})
}

// resolveItemRoute parses `/items/{id}` and `/items/{id}/{action}` paths.
func resolveItemRoute(path string) (string, string, bool) {
	const prefix = "items/"
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.SplitN(rest, "/", 2)
	id := strings.TrimSpace(parts[0])
	if id == "" {
		return "", "", false
	}
	action := ""
	if len(parts) == 2 {
		action = strings.TrimSpace(parts[1])
		if strings.Contains(action, "/") {
			return "", "", false
		}
	}
	return id, action, true
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrCycleDetected):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "cycle_detected",
			Message: err.Error(),
			Hint:    "Break the cycle with DELETE /links before requesting an order.",
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
