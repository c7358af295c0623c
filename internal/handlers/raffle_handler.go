package handlers

import (
	"path"

	"moto-isla-raffle/internal/middleware"
	"moto-isla-raffle/internal/services"
	"moto-isla-raffle/internal/utils"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

type ResizeRaffleRequest struct {
	TotalTickets int `json:"total_tickets" validate:"required,min=1,max=100000"`
}

type UpdateRaffleStatusRequest struct {
	Status       string `json:"status" validate:"required,oneof=completed cancelled"`
	WinnerNumber *int   `json:"winner_number" validate:"omitempty,min=0"`
}

type UpdateTicketsStatusRequest struct {
	TicketNumbers []int  `json:"ticket_numbers" validate:"required,min=1,dive,min=0"`
	Status        string `json:"status" validate:"required,oneof=free reserved paid"`
}

// ListRaffles returns raffles, newest first
// @Summary List raffles
// @Tags Raffles
// @Produce json
// @Param status query string false "active, completed or cancelled"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} utils.Response
// @Router /raffles [get]
func (h *Handler) ListRaffles(c *fiber.Ctx) error {
	page, pageSize := pagination(c, 20)

	list, err := h.raffleSvc.ListRaffles(c.UserContext(), c.Query("status"), page, pageSize)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	meta := utils.NewMeta(list.Page, list.PageSize, list.TotalCount)
	return utils.SuccessWithMeta(c, list.Raffles, meta, "Raffles retrieved successfully")
}

// GetRaffle returns a single raffle
// @Summary Get raffle
// @Tags Raffles
// @Produce json
// @Param id path string true "Raffle ID"
// @Success 200 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /raffles/{id} [get]
func (h *Handler) GetRaffle(c *fiber.Ctx) error {
	raffle, err := h.raffleSvc.GetRaffle(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return utils.Success(c, raffle, "Raffle retrieved successfully")
}

// ListTickets returns the ticket grid with statuses as of now
// @Summary List raffle tickets
// @Tags Raffles
// @Produce json
// @Param id path string true "Raffle ID"
// @Param status query string false "free, reserved or paid"
// @Success 200 {object} utils.Response
// @Router /raffles/{id}/tickets [get]
func (h *Handler) ListTickets(c *fiber.Ctx) error {
	tickets, err := h.raffleSvc.ListTickets(c.UserContext(), c.Params("id"), c.Query("status"))
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return utils.Success(c, tickets, "Tickets retrieved successfully")
}

// CreateRaffle creates a raffle and its ticket grid
// @Summary Create raffle
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateRaffleRequest true "Raffle data"
// @Success 201 {object} utils.Response
// @Failure 400 {object} utils.Response
// @Router /admin/raffles [post]
func (h *Handler) CreateRaffle(c *fiber.Ctx) error {
	var req services.CreateRaffleRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}

	raffle, err := h.raffleSvc.CreateRaffle(c.UserContext(), req)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return utils.Success(c, raffle, "Raffle created successfully", fiber.StatusCreated)
}

// UploadRaffleImage stores the cover image and points the raffle at it
// @Summary Upload raffle image
// @Tags Admin
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Raffle ID"
// @Param image formData file true "Image"
// @Success 200 {object} utils.Response
// @Router /admin/raffles/{id}/image [post]
func (h *Handler) UploadRaffleImage(c *fiber.Ctx) error {
	raffleID := c.Params("id")
	if _, err := h.raffleSvc.GetRaffle(c.UserContext(), raffleID); err != nil {
		return h.handleServiceError(c, err)
	}

	file, err := c.FormFile("image")
	if err != nil || file == nil {
		return utils.Error(c, "image is required", fiber.StatusBadRequest)
	}
	if err := utils.ValidateImageFile(file, h.cfg.MaxUploadSize); err != nil {
		return utils.Error(c, err.Error(), fiber.StatusBadRequest)
	}

	filename := utils.GenerateUniqueFilename(file.Filename, file.Header.Get("Content-Type"))
	if err := utils.SaveUploadedFile(file, h.cfg.UploadDir, filename); err != nil {
		log.WithError(err).WithField("raffle_id", raffleID).Error("Failed to save raffle image")
		return utils.Error(c, "Failed to save image", fiber.StatusInternalServerError)
	}

	raffle, err := h.raffleSvc.SetRaffleImage(c.UserContext(), raffleID, path.Join("/uploads", filename))
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return utils.Success(c, raffle, "Image uploaded successfully")
}

// ResizeRaffle grows or shrinks the ticket grid
// @Summary Resize raffle
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Raffle ID"
// @Param request body ResizeRaffleRequest true "New size"
// @Success 200 {object} utils.Response
// @Failure 409 {object} utils.Response
// @Router /admin/raffles/{id}/size [patch]
func (h *Handler) ResizeRaffle(c *fiber.Ctx) error {
	var req ResizeRaffleRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}

	raffle, err := h.raffleSvc.ResizeRaffle(c.UserContext(), c.Params("id"), req.TotalTickets)
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return utils.Success(c, raffle, "Raffle resized successfully")
}

// UpdateRaffleStatus completes or cancels a raffle
// @Summary Update raffle status
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Raffle ID"
// @Param request body UpdateRaffleStatusRequest true "Status"
// @Success 200 {object} utils.Response
// @Failure 409 {object} utils.Response
// @Router /admin/raffles/{id}/status [patch]
func (h *Handler) UpdateRaffleStatus(c *fiber.Ctx) error {
	var req UpdateRaffleStatusRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}

	raffle, err := h.raffleSvc.UpdateRaffleStatus(c.UserContext(), c.Params("id"), req.Status, req.WinnerNumber)
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return utils.Success(c, raffle, "Raffle status updated successfully")
}

// UpdateTicketsStatus is the admin bulk override of ticket statuses.
func (h *Handler) UpdateTicketsStatus(c *fiber.Ctx) error {
	var req UpdateTicketsStatusRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}

	updated, err := h.raffleSvc.SetTicketsStatus(c.UserContext(), c.Params("id"), req.TicketNumbers, req.Status)
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return utils.Success(c, fiber.Map{"updated": updated}, "Tickets updated successfully")
}

func (h *Handler) GetRaffleStats(c *fiber.Ctx) error {
	stats, err := h.raffleSvc.Stats(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return utils.Success(c, stats, "Stats retrieved successfully")
}
