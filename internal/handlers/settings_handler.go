package handlers

import (
	"encoding/json"

	"moto-isla-raffle/internal/middleware"
	"moto-isla-raffle/internal/utils"

	"github.com/gofiber/fiber/v2"
)

type UpdateSettingRequest struct {
	Key   string          `json:"key" validate:"required"`
	Value json.RawMessage `json:"value" validate:"required"`
}

// GetPublicSettings returns what the storefront needs to render
// @Summary Public settings
// @Tags Settings
// @Produce json
// @Success 200 {object} utils.Response
// @Router /settings/public [get]
func (h *Handler) GetPublicSettings(c *fiber.Ctx) error {
	settings, err := h.settingsSvc.GetPublicSettings(c.UserContext())
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return utils.Success(c, settings, "Settings retrieved successfully")
}

func (h *Handler) ListSettings(c *fiber.Ctx) error {
	settings, err := h.settingsSvc.ListSettings(c.UserContext())
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return utils.Success(c, settings, "Settings retrieved successfully")
}

// UpdateSetting writes one setting
// @Summary Update setting
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdateSettingRequest true "Key and JSON value"
// @Success 200 {object} utils.Response
// @Failure 400 {object} utils.Response
// @Router /admin/settings [patch]
func (h *Handler) UpdateSetting(c *fiber.Ctx) error {
	var req UpdateSettingRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}

	setting, err := h.settingsSvc.UpdateSetting(c.UserContext(), req.Key, req.Value)
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return utils.Success(c, setting, "Setting updated successfully")
}
