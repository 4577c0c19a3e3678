package http_handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"

	sdklogger "github.com/anthanhphan/gosdk/logger"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/flipfile/flipfile/internal/pipeline/config"
	"github.com/flipfile/flipfile/internal/pipeline/port"
)

type Server struct {
	app     *fiber.App
	cfg     *config.Config
	service port.FileService
}

func NewServer(cfg *config.Config, service port.FileService) *Server {
	app := fiber.New(fiber.Config{
		// Leave headroom for multipart framing around the file part.
		BodyLimit:         int(cfg.App.MaxFileSize) + 1024*1024,
		StreamRequestBody: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	s := &Server{
		app:     app,
		cfg:     cfg,
		service: service,
	}

	// Routes
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.app.Post("/files", s.handleSubmit)
	s.app.Get("/files/:id", s.handleRetrieve)
	s.app.Get("/files/:id/meta", s.handleStat)
	s.app.Delete("/files/:id", s.handleRemove)
	s.app.Get("/healthz", s.handleHealth)
}

func (s *Server) Start() error {
	return s.app.Listen(s.cfg.Server.Addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.Shutdown()
}

func (s *Server) sendJSONError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

// statusForError maps pipeline errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, port.ErrSizeExceeded):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, port.ErrUnsupportedType):
		return fiber.StatusUnsupportedMediaType
	case errors.Is(err, port.ErrExtensionMismatch),
		errors.Is(err, port.ErrMalformedContent):
		return fiber.StatusBadRequest
	case errors.Is(err, port.ErrSuspiciousContent):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, port.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, port.ErrExpired):
		return fiber.StatusGone
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleSubmit(c *fiber.Ctx) error {
	contentType := c.Get("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Content-Type must be multipart/form-data")
	}

	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Invalid Content-Type")
	}
	boundary, ok := params["boundary"]
	if !ok {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Missing boundary in Content-Type")
	}

	// Use raw request body stream
	bodyStream := c.Context().RequestBodyStream()
	if bodyStream == nil {
		bodyStream = bytes.NewReader(c.Body())
	}
	mr := multipart.NewReader(bodyStream, boundary)

	var fileName, partMime string
	var src io.Reader

	// Find the file part
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return s.sendJSONError(c, fiber.StatusBadRequest, fmt.Sprintf("Failed to read multipart: %v", err))
		}

		if part.FileName() != "" {
			fileName = part.FileName()
			partMime = part.Header.Get("Content-Type")
			src = part
			break
		}
		// If not file, we can potentially read other fields here
		_ = part.Close()
	}

	if src == nil {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Missing 'file' part")
	}

	ownerID := c.Get("X-Owner-ID")
	rec, err := s.service.Submit(c.Context(), fileName, partMime, ownerID, src)
	if err != nil {
		// Client-caused rejections are expected traffic, not faults.
		if port.IsValidationError(err) || errors.Is(err, port.ErrSuspiciousContent) {
			sdklogger.Warnw("Submission rejected", "file_name", fileName, "error", err.Error())
		} else {
			sdklogger.Errorw("Submission failed", "file_name", fileName, "error", err.Error())
		}
		return s.sendJSONError(c, statusForError(err), fmt.Sprintf("Submission failed: %v", err))
	}

	return c.Status(fiber.StatusCreated).JSON(rec)
}

func (s *Server) handleRetrieve(c *fiber.Ctx) error {
	fileID := c.Params("id")

	// Resolve metadata first so headers are right before streaming.
	rec, err := s.service.Stat(c.Context(), fileID)
	if err != nil {
		return s.sendJSONError(c, statusForError(err), fmt.Sprintf("Retrieval failed: %v", err))
	}

	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.SecureName))
	c.Set("Content-Type", rec.MimeType)

	if _, err := s.service.Retrieve(c.Context(), fileID, c.Response().BodyWriter()); err != nil {
		// Body bytes may already be on the wire, so the status cannot be
		// amended here.
		sdklogger.Errorw("Retrieval failed", "file_id", fileID, "error", err.Error())
		return fmt.Errorf("retrieval failed: %w", err)
	}

	return nil
}

func (s *Server) handleStat(c *fiber.Ctx) error {
	fileID := c.Params("id")

	rec, err := s.service.Stat(c.Context(), fileID)
	if err != nil {
		sdklogger.Warnw("Metadata lookup failed", "file_id", fileID, "error", err.Error())
		return s.sendJSONError(c, statusForError(err), fmt.Sprintf("Metadata lookup failed: %v", err))
	}

	return c.JSON(rec)
}

func (s *Server) handleRemove(c *fiber.Ctx) error {
	fileID := c.Params("id")

	removed, err := s.service.Remove(c.Context(), fileID)
	if err != nil {
		sdklogger.Errorw("Removal failed", "file_id", fileID, "error", err.Error())
		return s.sendJSONError(c, statusForError(err), fmt.Sprintf("Removal failed: %v", err))
	}
	if !removed {
		return s.sendJSONError(c, fiber.StatusNotFound, "File not found")
	}

	return c.JSON(fiber.Map{"message": "File destroyed"})
}
