package handlers

import (
	"errors"

	"moto-isla-raffle/internal/config"
	"moto-isla-raffle/internal/middleware"
	"moto-isla-raffle/internal/services"
	"moto-isla-raffle/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	authSvc        *services.AuthService
	raffleSvc      *services.RaffleService
	reservationSvc *services.ReservationService
	settingsSvc    *services.SettingsService
	sweeper        *services.Sweeper
	cfg            *config.Config
}

func NewHandler(
	authSvc *services.AuthService,
	raffleSvc *services.RaffleService,
	reservationSvc *services.ReservationService,
	settingsSvc *services.SettingsService,
	sweeper *services.Sweeper,
	cfg *config.Config,
) *Handler {
	return &Handler{
		authSvc:        authSvc,
		raffleSvc:      raffleSvc,
		reservationSvc: reservationSvc,
		settingsSvc:    settingsSvc,
		sweeper:        sweeper,
		cfg:            cfg,
	}
}

func (h *Handler) RegisterRoutes(router fiber.Router) {
	// Public routes
	auth := router.Group("/auth")
	{
		auth.Post("/login", h.Login)
	}

	raffles := router.Group("/raffles")
	{
		raffles.Get("/", h.ListRaffles)
		raffles.Get("/:id", h.GetRaffle)
		raffles.Get("/:id/tickets", h.ListTickets)
	}

	orders := router.Group("/orders")
	{
		orders.Post("/", h.orderRateLimiter(), middleware.ValidateBody(func() interface{} {
			return new(services.CreateOrderRequest)
		}), h.CreateOrder)
		orders.Get("/lookup", h.LookupOrders)
		orders.Get("/:id/status", h.GetOrderStatus)
		orders.Get("/:id/qr", h.GetOrderQRCode)
		orders.Delete("/:id", h.CancelOrder)
	}

	router.Get("/settings/public", h.GetPublicSettings)

	// Protected routes (JWT required)
	protected := router.Group("", middleware.JWTMiddleware(h.cfg))
	{
		protected.Get("/profile", h.GetProfile)

		admin := protected.Group("/admin")
		admin.Use(middleware.AdminOnly)
		{
			admin.Post("/raffles", h.CreateRaffle)
			admin.Post("/raffles/:id/image", h.UploadRaffleImage)
			admin.Patch("/raffles/:id/size", h.ResizeRaffle)
			admin.Patch("/raffles/:id/status", h.UpdateRaffleStatus)
			admin.Patch("/raffles/:id/tickets", h.UpdateTicketsStatus)
			admin.Get("/raffles/:id/stats", h.GetRaffleStats)

			admin.Get("/orders", h.ListOrders)
			admin.Get("/orders/:id", h.GetOrder)
			admin.Patch("/orders/:id", h.UpdateOrderStatus)
			admin.Delete("/orders/:id", h.DeleteOrder)
			admin.Post("/cleanup", h.CleanupExpired)

			admin.Get("/settings", h.ListSettings)
			admin.Patch("/settings", h.UpdateSetting)
		}
	}
}

// orderRateLimiter throttles order creation per client IP. A limit of 0
// disables it.
func (h *Handler) orderRateLimiter() fiber.Handler {
	if h.cfg.OrderRateLimit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:        h.cfg.OrderRateLimit,
		Expiration: h.cfg.OrderRateWindow,
		LimitReached: func(c *fiber.Ctx) error {
			return utils.Error(c, "Too many orders, try again later", fiber.StatusTooManyRequests)
		},
	})
}

// ErrorHandler handles global errors
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	if code >= 500 {
		log.WithFields(log.Fields{
			"method": c.Method(),
			"path":   c.Path(),
		}).WithError(err).Error("Unhandled error")
	}

	return utils.Error(c, message, code)
}

type conflictData struct {
	ConflictingTickets []int    `json:"conflicting_tickets"`
	ConflictingOrders  []string `json:"conflicting_orders"`
}

// handleServiceError maps service errors to HTTP responses.
func (h *Handler) handleServiceError(c *fiber.Ctx, err error) error {
	var rerr *services.ReservationError
	if !errors.As(err, &rerr) {
		log.WithFields(log.Fields{
			"method": c.Method(),
			"path":   c.Path(),
		}).WithError(err).Error("Unexpected service error")
		return utils.Error(c, "Internal server error", fiber.StatusInternalServerError)
	}

	switch rerr.Code {
	case services.ErrInvalidArgument:
		return utils.Error(c, rerr.Message, fiber.StatusBadRequest)
	case services.ErrNotFound:
		return utils.Error(c, rerr.Message, fiber.StatusNotFound)
	case services.ErrGone:
		return utils.ErrorWithData(c, rerr.Message, fiber.Map{"expired": true}, fiber.StatusGone)
	case services.ErrConflict:
		data := conflictData{
			ConflictingTickets: rerr.ConflictingTickets,
			ConflictingOrders:  make([]string, 0, len(rerr.ConflictingOrders)),
		}
		if data.ConflictingTickets == nil {
			data.ConflictingTickets = []int{}
		}
		for _, id := range rerr.ConflictingOrders {
			data.ConflictingOrders = append(data.ConflictingOrders, id.String())
		}
		return utils.ErrorWithData(c, rerr.Message, data, fiber.StatusConflict)
	case services.ErrForbidden:
		return utils.Error(c, rerr.Message, fiber.StatusForbidden)
	default:
		log.WithFields(log.Fields{
			"method": c.Method(),
			"path":   c.Path(),
			"code":   rerr.Code,
		}).WithError(rerr.Details).Error(rerr.Message)
		return utils.Error(c, "Internal server error", fiber.StatusInternalServerError)
	}
}

// pagination reads page and page_size, falling back to the defaults on
// anything unparsable.
func pagination(c *fiber.Ctx, defaultSize int) (int, int) {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := c.QueryInt("page_size", defaultSize)
	if pageSize < 1 {
		pageSize = defaultSize
	}
	return page, pageSize
}
