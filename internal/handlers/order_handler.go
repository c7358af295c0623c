package handlers

import (
	"fmt"
	"strings"

	"moto-isla-raffle/internal/countdown"
	"moto-isla-raffle/internal/middleware"
	"moto-isla-raffle/internal/services"
	"moto-isla-raffle/internal/utils"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=paid cancelled"`
}

type OrderStatusResponse struct {
	*services.OrderStatusResult
	Countdown *countdown.View `json:"countdown,omitempty"`
}

// CreateOrder reserves tickets for a customer
// @Summary Create order
// @Tags Orders
// @Accept json
// @Produce json
// @Param request body services.CreateOrderRequest true "Order data"
// @Success 201 {object} utils.Response
// @Failure 400 {object} utils.Response
// @Failure 409 {object} utils.Response
// @Router /orders [post]
func (h *Handler) CreateOrder(c *fiber.Ctx) error {
	req, ok := c.Locals("validatedBody").(*services.CreateOrderRequest)
	if !ok {
		return utils.Error(c, "Invalid request body", fiber.StatusBadRequest)
	}

	result, err := h.reservationSvc.CreateOrder(c.UserContext(), *req)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return utils.Success(c, result, "Order created successfully", fiber.StatusCreated)
}

// GetOrderStatus is polled by the payment page. An order past its deadline
// answers 410 and is released as a side effect.
// @Summary Get order status
// @Tags Orders
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Failure 410 {object} utils.Response
// @Router /orders/{id}/status [get]
func (h *Handler) GetOrderStatus(c *fiber.Ctx) error {
	result, err := h.reservationSvc.GetOrderStatus(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	resp := OrderStatusResponse{OrderStatusResult: result}
	if !result.Paid {
		view := countdown.NewView(result.RemainingSeconds)
		resp.Countdown = &view
	}
	return utils.Success(c, resp, "Order status retrieved successfully")
}

// CancelOrder lets the customer give up a pending order
// @Summary Cancel order
// @Tags Orders
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} utils.Response
// @Failure 409 {object} utils.Response
// @Router /orders/{id} [delete]
func (h *Handler) CancelOrder(c *fiber.Ctx) error {
	result, err := h.reservationSvc.CancelOrder(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return utils.Success(c, result, "Order cancelled successfully")
}

// GetOrderQRCode renders a PNG QR code linking to the order status page.
func (h *Handler) GetOrderQRCode(c *fiber.Ctx) error {
	order, err := h.reservationSvc.GetOrder(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	link := fmt.Sprintf("%s/orders/%s", strings.TrimRight(h.cfg.PublicBaseURL, "/"), order.ID)
	png, err := utils.GenerateQRCodePNG(link, c.QueryInt("size", utils.QRCodeDefaultSize))
	if err != nil {
		log.WithError(err).WithField("order_id", order.ID).Error("Failed to render QR code")
		return utils.Error(c, "Failed to generate QR code", fiber.StatusInternalServerError)
	}

	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "public, max-age=86400")
	return c.Send(png)
}

// LookupOrders finds a customer's orders by phone number
// @Summary Lookup orders by phone
// @Tags Orders
// @Produce json
// @Param phone query string true "Phone number"
// @Success 200 {object} utils.Response
// @Router /orders/lookup [get]
func (h *Handler) LookupOrders(c *fiber.Ctx) error {
	orders, err := h.reservationSvc.LookupOrdersByPhone(c.UserContext(), c.Query("phone"))
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return utils.Success(c, orders, "Orders retrieved successfully")
}

// ListOrders is the admin order table
// @Summary List orders
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param raffle_id query string false "Raffle ID"
// @Param status query string false "pending, paid, cancelled or expired"
// @Param phone query string false "Customer phone"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} utils.Response
// @Router /admin/orders [get]
func (h *Handler) ListOrders(c *fiber.Ctx) error {
	page, pageSize := pagination(c, 20)

	list, err := h.reservationSvc.ListOrders(c.UserContext(), services.OrderListFilters{
		RaffleID: c.Query("raffle_id"),
		Status:   c.Query("status"),
		Phone:    c.Query("phone"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return h.handleServiceError(c, err)
	}

	meta := utils.NewMeta(list.Page, list.PageSize, list.TotalCount)
	return utils.SuccessWithMeta(c, list.Orders, meta, "Orders retrieved successfully")
}

func (h *Handler) GetOrder(c *fiber.Ctx) error {
	order, err := h.reservationSvc.GetOrder(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return utils.Success(c, order, "Order retrieved successfully")
}

// UpdateOrderStatus confirms payment or cancels an order
// @Summary Update order status
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Param request body UpdateOrderStatusRequest true "Status"
// @Success 200 {object} utils.Response
// @Failure 409 {object} utils.Response
// @Router /admin/orders/{id} [patch]
func (h *Handler) UpdateOrderStatus(c *fiber.Ctx) error {
	var req UpdateOrderStatusRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}

	order, err := h.reservationSvc.AdminUpdateOrderStatus(c.UserContext(), c.Params("id"), req.Status)
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return utils.Success(c, order, "Order updated successfully")
}

// DeleteOrder removes an order and frees whatever it held
// @Summary Delete order
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 200 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /admin/orders/{id} [delete]
func (h *Handler) DeleteOrder(c *fiber.Ctx) error {
	result, err := h.reservationSvc.DeleteOrder(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return utils.Success(c, result, "Order deleted successfully")
}

// CleanupExpired runs the expired-reservation sweep on demand.
func (h *Handler) CleanupExpired(c *fiber.Ctx) error {
	result, err := h.sweeper.SweepExpired(c.UserContext())
	if err != nil {
		return h.handleServiceError(c, err)
	}
	if result.Skipped {
		return utils.Success(c, result, "Auto cleanup is disabled")
	}
	return utils.Success(c, result, "Expired reservations released")
}
