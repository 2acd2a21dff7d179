/**
 * @description
 * HTTP handlers for the assistant service. Chat turns go through the turn
 * pipeline; the transfer endpoints back the approval buttons rendered by the
 * pending-transfers UI and run the same backend tools the model uses.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/transfa/assistant-service/internal/assistant"
	"github.com/transfa/assistant-service/internal/tools"
)

const maxChatBodyBytes = 64 << 10

// TurnHandler runs one chat turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req assistant.TurnRequest) assistant.TurnResponse
}

// ToolExecutor runs one backend tool call on behalf of a user.
type ToolExecutor interface {
	Execute(ctx context.Context, userID uuid.UUID, call tools.Call) string
}

// Handler holds the services the handlers interact with.
type Handler struct {
	turns    TurnHandler
	executor ToolExecutor
	logger   *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(turns TurnHandler, executor ToolExecutor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{turns: turns, executor: executor, logger: logger.With("component", "api")}
}

type chatTurnRequest struct {
	Message string        `json:"message"`
	History []chatMessage `json:"history"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleChatTurn(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req chatTurnRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	history := make([]assistant.Message, 0, len(req.History))
	for _, m := range req.History {
		history = append(history, assistant.Message{Role: assistant.Role(m.Role), Content: m.Content})
	}

	resp := h.turns.HandleTurn(r.Context(), assistant.TurnRequest{UserID: userID, Message: req.Message, History: history})
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	h.runTool(w, r, tools.KindGetPendingTransfers, map[string]any{})
}

func (h *Handler) handleListHistory(w http.ResponseWriter, r *http.Request) {
	args := map[string]any{}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		args["limit"] = limit
	}
	h.runTool(w, r, tools.KindGetTransferHistory, args)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	transferID, ok := transferIDParam(w, r)
	if !ok {
		return
	}
	h.runTool(w, r, tools.KindApproveTransfer, map[string]any{"transfer_id": transferID})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	transferID, ok := transferIDParam(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	args := map[string]any{"transfer_id": transferID}
	if req.Reason != "" {
		args["reason"] = req.Reason
	}
	h.runTool(w, r, tools.KindRejectTransfer, args)
}

func transferIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Transfer ID must be a UUID")
		return "", false
	}
	return id.String(), true
}

// runTool executes kind for the caller and relays the tool's JSON result. A
// failed result maps to 422, or 503 when the backend was unavailable.
func (h *Handler) runTool(w http.ResponseWriter, r *http.Request, kind tools.Kind, args map[string]any) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	raw, err := json.Marshal(args)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	result := h.executor.Execute(r.Context(), userID, tools.Call{ID: "http-" + kind.String(), Name: kind.String(), Arguments: raw})

	msg, failed, err := tools.FailureOf(result)
	if err != nil {
		h.logger.Error("tool returned invalid JSON", "tool", kind.String(), "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	status := http.StatusOK
	switch {
	case !failed:
	case msg == tools.ServiceUnavailable:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusUnprocessableEntity
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(result))
}

// respondWithJSON writes JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
