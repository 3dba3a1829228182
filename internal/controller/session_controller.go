package controller

import (
	"errors"

	"ai-voicechat-be/internal/repository/contract"
	"ai-voicechat-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ISessionController serves read-only REST views of live sessions and the
// durable turn archive. The websocket gateway owns all mutation.
type ISessionController interface {
	GetSnapshot(ctx *fiber.Ctx) error
	GetArchive(ctx *fiber.Ctx) error
	RegisterRoutes(router fiber.Router, jwtMiddleware fiber.Handler)
}

type sessionController struct {
	sessionService service.ISessionService
	archive        contract.ITurnArchiveRepository // nil when archiving is disabled
}

func NewSessionController(sessionService service.ISessionService, archive contract.ITurnArchiveRepository) ISessionController {
	return &sessionController{
		sessionService: sessionService,
		archive:        archive,
	}
}

// GetSnapshot returns the live session state. Inspection must not keep a
// session alive, so this path never extends the TTL.
func (sc *sessionController) GetSnapshot(ctx *fiber.Ctx) error {
	principalId, ok := ctx.Locals("principal_id").(uuid.UUID)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Unauthorized"})
	}

	sessionId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid session id"})
	}

	snapshot, err := sc.sessionService.Snapshot(ctx.UserContext(), sessionId, principalId)
	if err != nil {
		if errors.Is(err, contract.ErrSessionNotFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "Session not found or expired"})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}

	return ctx.JSON(fiber.Map{"data": snapshot})
}

// GetArchive returns the durable turn history, which survives session expiry.
func (sc *sessionController) GetArchive(ctx *fiber.Ctx) error {
	if sc.archive == nil {
		return ctx.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"message": "Turn archive is not configured"})
	}

	if _, ok := ctx.Locals("principal_id").(uuid.UUID); !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Unauthorized"})
	}

	sessionId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid session id"})
	}

	turns, err := sc.archive.FindBySessionId(ctx.UserContext(), sessionId)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
	total, err := sc.archive.CountBySessionId(ctx.UserContext(), sessionId)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}

	return ctx.JSON(fiber.Map{
		"data":  turns,
		"total": total,
	})
}

func (sc *sessionController) RegisterRoutes(router fiber.Router, jwtMiddleware fiber.Handler) {
	sessions := router.Group("/sessions")
	sessions.Use(jwtMiddleware)
	sessions.Get("/:id", sc.GetSnapshot)
	sessions.Get("/:id/archive", sc.GetArchive)
}
