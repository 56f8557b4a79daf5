package handler

import (
	"fmt"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/design-copilot/internal/middleware"
	"github.com/arturoeanton/design-copilot/internal/port"
	"github.com/arturoeanton/design-copilot/internal/service"
)

// AskHandler handles retrieval and question answering over the caller's documents.
type AskHandler struct {
	query *service.QueryService
}

// NewAskHandler creates a new ask handler.
func NewAskHandler(query *service.QueryService) *AskHandler {
	return &AskHandler{query: query}
}

// Register sets up ask and search routes.
func (h *AskHandler) Register(router fiber.Router) {
	router.Post("/ask", h.Ask)
	router.Post("/search", h.Search)
}

// Ask answers a question grounded on the caller's most similar chunks.
func (h *AskHandler) Ask(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return unauthorized(c)
	}

	var body struct {
		Question string `json:"question"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return sendError(c, fmt.Errorf("%w: invalid request body", port.ErrInvalidInput))
	}

	answer, err := h.query.Answer(c.Context(), uc.UserID, body.Question)
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(answer)
}

// Search returns the caller's most similar chunks without generating an answer.
func (h *AskHandler) Search(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return unauthorized(c)
	}

	var body struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return sendError(c, fmt.Errorf("%w: invalid request body", port.ErrInvalidInput))
	}

	results, err := h.query.Search(c.Context(), uc.UserID, body.Query, body.TopK)
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(fiber.Map{
		"results": results,
		"count":   len(results),
	})
}
