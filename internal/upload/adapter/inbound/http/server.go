package http_handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/anthanhphan/go-upload-gateway/internal/upload/config"
	"github.com/anthanhphan/go-upload-gateway/internal/upload/port"
	sdklogger "github.com/anthanhphan/gosdk/logger"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/utils"
)

// ownerIDKey is the fiber locals key the identity middleware fills from
// the trusted X-Owner-Id header.
const ownerIDKey = "owner_id"

type Server struct {
	app      *fiber.App
	cfg      *config.Config
	service  port.UploadService
	recorder port.FileRecorder
}

func NewServer(cfg *config.Config, service port.UploadService, recorder port.FileRecorder) *Server {
	app := fiber.New(fiber.Config{
		// Chunk bodies arrive raw; leave headroom over the chunk size.
		BodyLimit: int(cfg.Upload.ChunkSize) + 1024*1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	s := &Server{
		app:      app,
		cfg:      cfg,
		service:  service,
		recorder: recorder,
	}

	// Routes
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	uploads := s.app.Group("/uploads", s.requireOwner)
	uploads.Post("/", s.handleInit)
	uploads.Get("/", s.handleList)
	uploads.Get("/:id", s.handleProgress)
	uploads.Put("/:id/chunks/:index", s.handleChunk)
	uploads.Post("/:id/complete", s.handleComplete)
	uploads.Post("/:id/resume", s.handleResume)
	uploads.Delete("/:id", s.handleCancel)
}

func (s *Server) Start() error {
	return s.app.Listen(s.cfg.Server.Addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.Shutdown()
}

// App exposes the fiber app for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

// requireOwner resolves the authenticated owner from the gateway's
// identity header. The engine trusts the value opaquely.
func (s *Server) requireOwner(c *fiber.Ctx) error {
	// Copy out of fiber's reused request buffer: the value outlives the
	// request inside long-lived upload sessions.
	ownerID := utils.CopyString(c.Get("X-Owner-Id"))
	if ownerID == "" {
		return s.sendJSONError(c, fiber.StatusUnauthorized, "Missing X-Owner-Id header")
	}
	c.Locals(ownerIDKey, ownerID)
	return c.Next()
}

func (s *Server) sendJSONError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

// sendServiceError maps engine errors onto HTTP statuses.
func (s *Server) sendServiceError(c *fiber.Ctx, err error) error {
	var incomplete *port.IncompleteError
	if errors.As(err, &incomplete) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":           "upload incomplete",
			"missing_indices": incomplete.Missing,
		})
	}

	var storage *port.StorageError
	if errors.As(err, &storage) {
		return s.sendJSONError(c, fiber.StatusBadGateway, err.Error())
	}

	var assembly *port.AssemblyError
	if errors.As(err, &assembly) {
		sdklogger.Errorw("Assembly bookkeeping mismatch", "error", err.Error())
		return s.sendJSONError(c, fiber.StatusInternalServerError, err.Error())
	}

	switch {
	case errors.Is(err, port.ErrSessionNotFound), errors.Is(err, port.ErrSessionExpired):
		return s.sendJSONError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, port.ErrAlreadyCompleted),
		errors.Is(err, port.ErrRestartRequired),
		errors.Is(err, port.ErrFinalizeInProgress):
		return s.sendJSONError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, port.ErrCapacityExceeded):
		return s.sendJSONError(c, fiber.StatusInsufficientStorage, err.Error())
	case errors.Is(err, port.ErrFileSizeInvalid),
		errors.Is(err, port.ErrInvalidChunkIndex),
		errors.Is(err, port.ErrChunkTooLarge),
		errors.Is(err, port.ErrChunkCountMismatch):
		return s.sendJSONError(c, fiber.StatusBadRequest, err.Error())
	default:
		sdklogger.Errorw("Unhandled upload error", "error", err.Error())
		return s.sendJSONError(c, fiber.StatusInternalServerError, err.Error())
	}
}

type initRequest struct {
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	FileType    string `json:"file_type"`
	FolderID    string `json:"folder_id"`
	TotalChunks int    `json:"total_chunks"`
}

func (s *Server) handleInit(c *fiber.Ctx) error {
	var req initRequest
	if err := c.BodyParser(&req); err != nil {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.FileName == "" {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Missing 'file_name'")
	}

	result, err := s.service.Init(c.Context(), port.InitRequest{
		FileName:        req.FileName,
		FileSize:        req.FileSize,
		FileType:        req.FileType,
		OwnerID:         c.Locals(ownerIDKey).(string),
		FolderID:        req.FolderID,
		TotalChunksHint: req.TotalChunks,
	})
	if err != nil {
		return s.sendServiceError(c, err)
	}

	status := fiber.StatusCreated
	if result.Resumed {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(result)
}

func (s *Server) handleList(c *fiber.Ctx) error {
	snaps, err := s.service.ListOwnerUploads(c.Context(), c.Locals(ownerIDKey).(string))
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return c.JSON(fiber.Map{"uploads": snaps})
}

func (s *Server) handleProgress(c *fiber.Ctx) error {
	snap, err := s.service.GetProgress(c.Context(), c.Params("id"))
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return c.JSON(snap)
}

func (s *Server) handleChunk(c *fiber.Ctx) error {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Invalid chunk index")
	}

	snap, err := s.service.UploadChunk(c.Context(), c.Params("id"), index, c.Body())
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return c.JSON(snap)
}

func (s *Server) handleComplete(c *fiber.Ctx) error {
	uploadID := c.Params("id")
	stored, err := s.service.Complete(c.Context(), uploadID)
	if err != nil {
		return s.sendServiceError(c, err)
	}

	fileID, err := s.recorder.CreateFileRecord(c.Context(),
		stored.ObjectRef, stored.FileName, stored.FileSize, stored.FileType, stored.OwnerID, stored.FolderID)
	if err != nil {
		// The blob is durably stored; only the record is missing. Surface
		// the failure so the product layer can reconcile.
		sdklogger.Errorw("File record persistence failed",
			"upload_id", uploadID, "object_ref", stored.ObjectRef, "error", err.Error())
		return s.sendJSONError(c, fiber.StatusInternalServerError, "File stored but record persistence failed")
	}

	return c.JSON(fiber.Map{
		"file_id":    fileID,
		"object_ref": stored.ObjectRef,
		"file_name":  stored.FileName,
		"file_size":  stored.FileSize,
		"file_type":  stored.FileType,
		"hash":       stored.Hash,
	})
}

func (s *Server) handleResume(c *fiber.Ctx) error {
	snap, err := s.service.Resume(c.Context(), c.Params("id"))
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return c.JSON(snap)
}

func (s *Server) handleCancel(c *fiber.Ctx) error {
	if err := s.service.Cancel(c.Context(), c.Params("id")); err != nil {
		return s.sendServiceError(c, err)
	}
	return c.JSON(fiber.Map{"cancelled": true})
}
