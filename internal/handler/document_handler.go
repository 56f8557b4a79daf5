package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/design-copilot/internal/adapter/extract"
	"github.com/arturoeanton/design-copilot/internal/middleware"
	"github.com/arturoeanton/design-copilot/internal/port"
	"github.com/arturoeanton/design-copilot/internal/service"
)

// DocumentHandler handles document ingestion and management endpoints.
type DocumentHandler struct {
	ingest     *service.IngestService
	documents  *service.DocumentService
	extractors *extract.Registry
	tracker    *JobTracker
	jobTimeout time.Duration
}

// NewDocumentHandler creates a new document handler. jobTimeout bounds async ingestions.
func NewDocumentHandler(
	ingest *service.IngestService,
	documents *service.DocumentService,
	extractors *extract.Registry,
	tracker *JobTracker,
	jobTimeout time.Duration,
) *DocumentHandler {
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Minute
	}
	return &DocumentHandler{
		ingest:     ingest,
		documents:  documents,
		extractors: extractors,
		tracker:    tracker,
		jobTimeout: jobTimeout,
	}
}

// Register sets up document routes.
func (h *DocumentHandler) Register(router fiber.Router) {
	docs := router.Group("/documents")
	docs.Get("/", h.List)
	docs.Post("/", h.Create)
	docs.Get("/:id", h.Get)
	docs.Get("/:id/chunks", h.Chunks)
	docs.Delete("/:id", h.Delete)
}

// Create ingests a JSON text payload or a multipart file upload.
// With ?async=true it answers 202 and the ingestion runs as a tracked job.
func (h *DocumentHandler) Create(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return unauthorized(c)
	}

	req, err := h.readRequest(c)
	if err != nil {
		return sendError(c, err)
	}
	req.OwnerID = uc.UserID

	async, _ := strconv.ParseBool(c.Query("async", "false"))
	if async {
		jobID := h.tracker.CreateJob(uc.UserID, req.Filename)
		req.Progress = func(done, total int) {
			h.tracker.UpdateProgress(jobID, done, total)
		}
		go h.runJob(jobID, req)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": jobID})
	}

	result, err := h.ingest.Ingest(c.Context(), req)
	if err != nil {
		status, body := errorBody(c, err)
		if result != nil && status != fiber.StatusInternalServerError {
			body["result"] = result
		}
		return c.Status(status).JSON(body)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// runJob ingests detached from the request so the client can disconnect.
func (h *DocumentHandler) runJob(jobID string, req service.IngestRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), h.jobTimeout)
	defer cancel()

	slog.Info("ingestion job started", "job_id", jobID, "owner_id", req.OwnerID, "filename", req.Filename)
	result, err := h.ingest.Ingest(ctx, req)
	if err != nil {
		slog.Error("ingestion job failed", "job_id", jobID, "owner_id", req.OwnerID, "error", err)
	}
	h.tracker.CompleteJob(jobID, result, err)
}

// readRequest builds an ingestion request from a multipart upload or a JSON body.
func (h *DocumentHandler) readRequest(c fiber.Ctx) (service.IngestRequest, error) {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return h.readUpload(c)
	}

	var body struct {
		Filename string            `json:"filename"`
		Content  string            `json:"content"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return service.IngestRequest{}, fmt.Errorf("%w: invalid request body", port.ErrInvalidInput)
	}
	if strings.TrimSpace(body.Content) == "" {
		return service.IngestRequest{}, fmt.Errorf("%w: content is required", port.ErrInvalidInput)
	}
	return service.IngestRequest{
		Filename: body.Filename,
		Text:     body.Content,
		Metadata: body.Metadata,
	}, nil
}

func (h *DocumentHandler) readUpload(c fiber.Ctx) (service.IngestRequest, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return service.IngestRequest{}, fmt.Errorf("%w: multipart field \"file\" is required", port.ErrInvalidInput)
	}

	extractor, err := h.extractors.Lookup(fh.Filename, fh.Header.Get(fiber.HeaderContentType))
	if err != nil {
		return service.IngestRequest{}, err
	}

	f, err := fh.Open()
	if err != nil {
		return service.IngestRequest{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return service.IngestRequest{}, fmt.Errorf("read upload: %w", err)
	}

	text, err := extractor.Extract(c.Context(), data)
	if err != nil {
		return service.IngestRequest{}, err
	}
	if strings.TrimSpace(text) == "" {
		return service.IngestRequest{}, fmt.Errorf("%w: %s contains no text", port.ErrInvalidInput, fh.Filename)
	}

	slog.Debug("upload extracted", "filename", fh.Filename, "extractor", extractor.Name(), "bytes", len(data))
	return service.IngestRequest{
		Filename:  fh.Filename,
		Text:      text,
		SizeBytes: int64(len(data)),
		Metadata:  map[string]string{"extractor": extractor.Name()},
	}, nil
}

// List returns the caller's documents, newest first.
func (h *DocumentHandler) List(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return unauthorized(c)
	}

	docs, err := h.documents.List(c.Context(), uc.UserID)
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(fiber.Map{
		"documents": docs,
		"count":     len(docs),
	})
}

// Get returns one of the caller's documents.
func (h *DocumentHandler) Get(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return unauthorized(c)
	}

	doc, err := h.documents.Get(c.Context(), uc.UserID, c.Params("id"))
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(doc)
}

// Chunks returns a document's chunks in ordinal order.
func (h *DocumentHandler) Chunks(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return unauthorized(c)
	}

	chunks, err := h.documents.Chunks(c.Context(), uc.UserID, c.Params("id"))
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(fiber.Map{
		"chunks": chunks,
		"count":  len(chunks),
	})
}

// Delete removes a document and its chunks.
func (h *DocumentHandler) Delete(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return unauthorized(c)
	}

	if err := h.documents.Delete(c.Context(), uc.UserID, c.Params("id")); err != nil {
		return sendError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
