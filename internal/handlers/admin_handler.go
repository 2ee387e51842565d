package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"cvintel/internal/models"
	"cvintel/internal/ruleset"
)

type AdminHandler struct {
	rulesets *ruleset.Store
	logger   *zap.Logger
}

func NewAdminHandler(rulesets *ruleset.Store, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		rulesets: rulesets,
		logger:   logger,
	}
}

// HandleReloadRuleset handles POST /admin/ruleset/reload. In-flight
// batches keep the ruleset they captured; only new passes see the new
// version.
func (h *AdminHandler) HandleReloadRuleset(c *fiber.Ctx) error {
	rs, err := h.rulesets.Reload()
	if err != nil {
		h.logger.Error("ruleset reload failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:   "RULESET_RELOAD_FAILED",
			Message: err.Error(),
		})
	}

	h.logger.Info("ruleset reloaded", zap.String("version", rs.Version()))
	return c.JSON(fiber.Map{
		"version": rs.Version(),
	})
}
