package middleware

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/design-copilot/internal/domain"
)

// AuditWriter defines how audit records are persisted.
type AuditWriter interface {
	WriteAudit(userID, action, resource, resourceID, details, ip, userAgent string) error
}

// AuditMiddleware records every request with the caller, status and latency.
// Request bodies are never recorded: they carry document content and questions.
func AuditMiddleware(writer AuditWriter) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		// Capture request data BEFORE handler execution (Fiber reuses context objects)
		method := c.Method()
		path := c.Path()
		ip := c.IP()
		userAgent := c.Get("User-Agent")

		err := c.Next()

		userID := "anonymous"
		if uc := GetUserContext(c); uc != nil {
			userID = uc.UserID
		}

		action, resource, resourceID := classifyRequest(method, path)
		details := map[string]interface{}{
			"method":      method,
			"path":        path,
			"status":      c.Response().StatusCode(),
			"duration_ms": time.Since(start).Milliseconds(),
		}
		detailsJSON, _ := json.Marshal(details)

		// All values are captured, safe to use in goroutine
		go func() {
			if writeErr := writer.WriteAudit(
				userID, action, resource, resourceID, string(detailsJSON), ip, userAgent,
			); writeErr != nil {
				slog.Error("failed to write audit log", "error", writeErr)
			}
		}()

		return err
	}
}

// classifyRequest maps a route to an audit action, resource and resource id.
func classifyRequest(method, path string) (action, resource, resourceID string) {
	rest, ok := strings.CutPrefix(path, "/api/v1/")
	if !ok {
		return domain.AuditActionHTTPRequest, "api", path
	}
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case parts[0] == "documents" && method == fiber.MethodPost && len(parts) == 1:
		return domain.AuditActionDocumentIngest, "document", ""
	case parts[0] == "documents" && method == fiber.MethodDelete && len(parts) == 2:
		return domain.AuditActionDocumentDelete, "document", parts[1]
	case parts[0] == "ask" && method == fiber.MethodPost:
		return domain.AuditActionAsk, "question", ""
	case len(parts) >= 2:
		return domain.AuditActionHTTPRequest, parts[0], parts[1]
	default:
		return domain.AuditActionHTTPRequest, parts[0], ""
	}
}
