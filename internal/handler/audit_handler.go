package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/design-copilot/internal/middleware"
	"github.com/arturoeanton/design-copilot/internal/port"
)

// AuditHandler handles audit log endpoints.
type AuditHandler struct {
	store port.AuditStore
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(store port.AuditStore) *AuditHandler {
	return &AuditHandler{store: store}
}

// Register sets up audit routes.
func (h *AuditHandler) Register(router fiber.Router) {
	audit := router.Group("/audit")
	audit.Get("/logs", h.ListLogs)
}

// ListLogs returns the caller's own audit logs with optional action filtering.
func (h *AuditHandler) ListLogs(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return unauthorized(c)
	}

	limit, err := strconv.Atoi(c.Query("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		limit = 100
	}
	action := c.Query("action", "")

	logs, err := h.store.ListAuditLogs(c.Context(), uc.UserID, limit, action)
	if err != nil {
		return sendError(c, err)
	}

	return c.JSON(fiber.Map{
		"logs":  logs,
		"count": len(logs),
	})
}
