package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"vendoriq_server/core/port/in"
	"vendoriq_server/core/service/analytics"
	"vendoriq_server/pkg/apperr"
	"vendoriq_server/pkg/response"
)

// =============================================================================
// Analytics Handler
// =============================================================================

// AnalyticsHandler fronts the snapshot cache.
type AnalyticsHandler struct {
	svc in.AnalyticsService
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(svc in.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc}
}

func (h *AnalyticsHandler) Register(protected fiber.Router) {
	protected.Get("/analytics/snapshot", h.GetSnapshot)
	protected.Put("/analytics/snapshot", h.UpsertSnapshot)
	protected.Delete("/analytics/snapshot", h.Invalidate)
	protected.Post("/analytics/spend-summary/refresh", h.RefreshSpendSummary)
}

// =============================================================================
// Handlers
// =============================================================================

func (h *AnalyticsHandler) GetSnapshot(c *fiber.Ctx) error {
	userID, err := MustGetUserID(c)
	if err != nil {
		return err
	}

	period := c.Query("period", "month")
	view, err := h.svc.GetSnapshot(c.Context(), userID, period)
	if err != nil {
		if errors.Is(err, analytics.ErrSnapshotNotFound) {
			return apperr.NotFound("analytics snapshot")
		}
		return apperr.BadRequest(err.Error())
	}
	return response.OK(c, view)
}

type upsertSnapshotRequest struct {
	Period string         `json:"period"`
	Data   map[string]any `json:"data"`
}

func (h *AnalyticsHandler) UpsertSnapshot(c *fiber.Ctx) error {
	userID, err := MustGetUserID(c)
	if err != nil {
		return err
	}

	var req upsertSnapshotRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	if req.Period == "" {
		return apperr.MissingField("period")
	}
	if req.Data == nil {
		return apperr.MissingField("data")
	}

	snap, err := h.svc.UpsertSnapshot(c.Context(), userID, req.Period, req.Data)
	if err != nil {
		return apperr.BadRequest(err.Error())
	}
	return response.OK(c, fiber.Map{
		"period":      snap.Period,
		"computed_at": snap.ComputedAt,
	})
}

func (h *AnalyticsHandler) Invalidate(c *fiber.Ctx) error {
	userID, err := MustGetUserID(c)
	if err != nil {
		return err
	}

	period := c.Query("period") // empty clears all periods
	removed, err := h.svc.Invalidate(c.Context(), userID, period)
	if err != nil {
		return apperr.BadRequest(err.Error())
	}
	return response.OK(c, fiber.Map{"removed": removed})
}

func (h *AnalyticsHandler) RefreshSpendSummary(c *fiber.Ctx) error {
	userID, err := MustGetUserID(c)
	if err != nil {
		return err
	}

	period := c.Query("period", "month")
	view, err := h.svc.RefreshSpendSummary(c.Context(), userID, period)
	if err != nil {
		switch {
		case errors.Is(err, analytics.ErrUserNotFound):
			return apperr.NotFound("user")
		case errors.Is(err, analytics.ErrNotConnected):
			return apperr.NotConnected()
		case errors.Is(err, analytics.ErrNoSpendSheet):
			return apperr.BadRequest("no spend spreadsheet configured")
		default:
			return apperr.ExternalError("sheets", err)
		}
	}
	return response.OK(c, view)
}
