package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/teachlyze/tamanduai-api/internal/dto"
	"github.com/teachlyze/tamanduai-api/internal/service"
	"github.com/teachlyze/tamanduai-api/internal/utils"
	"github.com/teachlyze/tamanduai-api/pkg/plagiarism"
)

// PlagiarismHandler exposes the plagiarism check endpoint and its read models.
type PlagiarismHandler struct {
	service service.PlagiarismService
	logger  zerolog.Logger
}

// NewPlagiarismHandler constructs a plagiarism handler.
func NewPlagiarismHandler(service service.PlagiarismService, logger zerolog.Logger) *PlagiarismHandler {
	return &PlagiarismHandler{
		service: service,
		logger:  logger.With().Str("component", "plagiarism_handler").Logger(),
	}
}

// Register wires the teacher-facing read routes.
func (h *PlagiarismHandler) Register(router fiber.Router) {
	router.Get("/submissions/:id/checks", h.History)
	router.Get("/checks", h.ListChecks)
	router.Get("/stats", h.Stats)
}

// Check handles POST /plagiarism-check.
func (h *PlagiarismHandler) Check(c *fiber.Ctx) error {
	if !validJSONText(c.Body()) {
		return h.handleError(c, fmt.Errorf("%w: %w", service.ErrInvalidCheckRequest, plagiarism.ErrInvalidEncoding))
	}

	var payload dto.PlagiarismCheckRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.Check(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	if response.Skipped {
		return utils.SendSuccess(c, "submission already checked", response)
	}
	return utils.SendSuccess(c, "plagiarism check completed", response)
}

// History lists every check recorded for a submission, newest first.
func (h *PlagiarismHandler) History(c *fiber.Ctx) error {
	submissionID := strings.TrimSpace(c.Params("id"))
	if submissionID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "submission id required")
	}

	checks, err := h.service.History(requestContext(c), submissionID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, checks, "plagiarism checks", fiber.Map{"count": len(checks)})
}

// ListChecks pages through checks of a class or an activity, optionally by severity.
func (h *PlagiarismHandler) ListChecks(c *fiber.Ctx) error {
	var query dto.PlagiarismCheckListQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query")
	}
	if query.ClassID == "" && query.ActivityID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "class_id or activity_id required")
	}

	page, err := h.service.ListChecks(requestContext(c), query)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, page.Items, "plagiarism checks", fiber.Map{
		"total":     page.Total,
		"page":      page.Page,
		"page_size": page.PageSize,
	})
}

// Stats aggregates checks for a class or an activity.
func (h *PlagiarismHandler) Stats(c *fiber.Ctx) error {
	var query dto.PlagiarismStatsQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query")
	}
	if query.ClassID == "" && query.ActivityID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "class_id or activity_id required")
	}

	stats, err := h.service.Stats(requestContext(c), query)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "plagiarism stats", stats)
}

func (h *PlagiarismHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case isValidationError(err):
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
	case errors.Is(err, service.ErrInvalidCheckRequest):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrProviderFailed):
		requestLogger(h.logger, c).Error().Err(err).Msg("plagiarism provider failed")
		return utils.SendError(c, fiber.StatusInternalServerError, service.ErrProviderFailed.Error())
	case errors.Is(err, service.ErrCheckPersistence):
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to persist plagiarism check")
		return utils.SendError(c, fiber.StatusInternalServerError, service.ErrCheckPersistence.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
