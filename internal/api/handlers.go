package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/akd-tools/sdd-bridge/internal/bridge"
	"github.com/akd-tools/sdd-bridge/internal/provision"
	"github.com/akd-tools/sdd-bridge/internal/registry"
	"github.com/akd-tools/sdd-bridge/internal/workflow"
)

// Handlers implements the API endpoints on top of the engine and the
// session controller.
type Handlers struct {
	engine   bridge.Engine
	sessions bridge.SessionManager
	logger   zerolog.Logger
}

// NewHandlers creates the handlers.
func NewHandlers(engine bridge.Engine, sessions bridge.SessionManager, logger zerolog.Logger) *Handlers {
	return &Handlers{
		engine:   engine,
		sessions: sessions,
		logger:   logger.With().Str("component", "api.handlers").Logger(),
	}
}

// httpError maps domain errors onto status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, workflow.ErrNotBound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, workflow.ErrWrongStage),
		errors.Is(err, workflow.ErrProjectExists),
		errors.Is(err, provision.ErrWorkspaceExists):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, workflow.ErrChannelMissing):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		return err
	}
}

// ListSessions returns all registered sessions with their liveness.
func (h *Handlers) ListSessions(c *fiber.Ctx) error {
	list, err := h.sessions.List()
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"sessions": list})
}

type killRequest struct {
	ContextID string `json:"context_id"`
}

// KillSession tears down one session.
func (h *Handlers) KillSession(c *fiber.Ctx) error {
	var req killRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.ContextID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "context_id is required")
	}
	if err := h.sessions.Kill(req.ContextID); err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"killed": req.ContextID})
}

// ListProjects returns each project with its current stage.
func (h *Handlers) ListProjects(c *fiber.Ctx) error {
	status, err := h.engine.Status()
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"projects": status})
}

type startProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// StartProject creates a project and its idea thread.
func (h *Handlers) StartProject(c *fiber.Ctx) error {
	var req startProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	res, err := h.engine.StartProject(c.Context(), req.Name, req.Description)
	if err != nil {
		if errors.Is(err, workflow.ErrProjectExists) {
			return httpError(err)
		}
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

type messageRequest struct {
	ContextID string `json:"context_id"`
	Text      string `json:"text"`
}

// SendMessage delivers text into the session mapped to a context.
func (h *Handlers) SendMessage(c *fiber.Ctx) error {
	var req messageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.ContextID == "" || req.Text == "" {
		return fiber.NewError(fiber.StatusBadRequest, "context_id and text are required")
	}
	if err := h.sessions.Deliver(req.ContextID, req.Text); err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"delivered": req.ContextID})
}

type advanceRequest struct {
	ContextID string `json:"context_id"`
}

// Advance moves the project bound to a thread to its next stage.
func (h *Handlers) Advance(c *fiber.Ctx) error {
	var req advanceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.ContextID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "context_id is required")
	}
	res, err := h.engine.Advance(c.Context(), req.ContextID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(res)
}
