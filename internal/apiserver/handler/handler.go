// Package handler provides HTTP handlers for the onboarding API.
package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/onboard/internal/kb"
	"github.com/kart-io/onboard/internal/onboarding"
)

// Handler handles onboarding HTTP requests.
type Handler struct {
	engine    *onboarding.Engine
	tools     *onboarding.Toolset
	retriever *kb.Retriever
}

// New creates a Handler.
func New(engine *onboarding.Engine, tools *onboarding.Toolset, retriever *kb.Retriever) *Handler {
	return &Handler{
		engine:    engine,
		tools:     tools,
		retriever: retriever,
	}
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ChatRequest is one conversation turn.
type ChatRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

// ChatResponse carries the assistant's reply.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// Chat runs one turn of the onboarding conversation.
func (h *Handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	reply, err := h.engine.HandleTurn(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: "Agent error: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, ChatResponse{Response: reply, SessionID: req.SessionID})
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Health reports service liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Message: "Onboarding API is running",
	})
}

// Info describes the API surface.
func (h *Handler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Onboarding API",
		"endpoints": gin.H{
			"health": "/health",
			"chat":   "/chat (POST)",
			"search": "/v1/kb/search (POST)",
			"tools":  "/v1/tools/:name (POST)",
		},
	})
}

// SearchRequest queries the knowledge base directly.
type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	K     int    `json:"k"`
}

// SearchHit is one scored knowledge base result.
type SearchHit struct {
	Score float32            `json:"score"`
	Chunk onboarding.ToolHit `json:"chunk"`
}

// Search runs a thresholded similarity search.
func (h *Handler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	hits, err := h.retriever.Search(c.Request.Context(), req.Query, req.K)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	out := make([]SearchHit, 0, len(hits))
	for _, hit := range hits {
		out = append(out, SearchHit{
			Score: hit.Score,
			Chunk: onboarding.ToolHit{
				ChunkID: hit.Meta.ChunkID,
				Source:  hit.Meta.Source,
				Text:    hit.Meta.Text,
				Email:   hit.Meta.Email,
				Region:  hit.Meta.Region,
				Branch:  hit.Meta.Branch,
			},
		})
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "hits": out})
}

// Tool dispatches a named tool call with the raw request body as input.
func (h *Handler) Tool(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	result, err := h.tools.Dispatch(c.Request.Context(), c.Param("name"), body)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, onboarding.ErrUnknownTool) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Code: status, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
