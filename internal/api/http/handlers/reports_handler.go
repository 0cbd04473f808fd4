package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/service"
)

// ReportsHandler serves supervisor reports.
type ReportsHandler struct {
	reports *service.ReportService
	metrics *observability.Metrics
}

// NewReportsHandler constructs handler.
func NewReportsHandler(reports *service.ReportService, metrics *observability.Metrics) *ReportsHandler {
	return &ReportsHandler{reports: reports, metrics: metrics}
}

// SLA GET /reports/sla.
func (h *ReportsHandler) SLA(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	snapshot, err := h.reports.SLASnapshot(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": snapshot})
}

// Metrics GET /reports/metrics.
func (h *ReportsHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}
