package utils

import "github.com/gofiber/fiber/v2"

type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

type Meta struct {
	Page      int   `json:"page,omitempty"`
	PageSize  int   `json:"page_size,omitempty"`
	Total     int64 `json:"total,omitempty"`
	TotalPage int   `json:"total_page,omitempty"`
}

func Success(c *fiber.Ctx, data interface{}, message string, statusCode ...int) error {
	code := fiber.StatusOK
	if len(statusCode) > 0 {
		code = statusCode[0]
	}

	resp := Response{
		Success: true,
		Message: message,
		Data:    data,
	}

	return c.Status(code).JSON(resp)
}

func SuccessWithMeta(c *fiber.Ctx, data interface{}, meta *Meta, message string) error {
	resp := Response{
		Success: true,
		Message: message,
		Data:    data,
		Meta:    meta,
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func Error(c *fiber.Ctx, message string, statusCode ...int) error {
	code := fiber.StatusBadRequest
	if len(statusCode) > 0 {
		code = statusCode[0]
	}

	resp := Response{
		Success: false,
		Error:   message,
	}

	return c.Status(code).JSON(resp)
}

// ErrorWithData is Error plus a data payload, used where the client needs
// more than a message to recover, e.g. the tickets that caused a conflict.
func ErrorWithData(c *fiber.Ctx, message string, data interface{}, statusCode int) error {
	resp := Response{
		Success: false,
		Error:   message,
		Data:    data,
	}

	return c.Status(statusCode).JSON(resp)
}

// NewMeta fills in TotalPage from total and pageSize.
func NewMeta(page, pageSize int, total int64) *Meta {
	meta := &Meta{Page: page, PageSize: pageSize, Total: total}
	if pageSize > 0 {
		meta.TotalPage = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return meta
}
