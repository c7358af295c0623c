package middleware

import (
	"errors"
	"strings"

	"moto-isla-raffle/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// ValidateBody parses the body into a fresh value from newDest, validates it
// and stores it under "validatedBody" for the next handler.
func ValidateBody(newDest func() interface{}) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dest := newDest()
		if err := BindAndValidate(c, dest); err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return utils.Error(c, fe.Message, fe.Code)
			}
			return err
		}

		c.Locals("validatedBody", dest)
		return c.Next()
	}
}

// BindAndValidate parses the request body into dest and runs the struct
// validator on it. Failures come back as 400 *fiber.Error values.
func BindAndValidate(c *fiber.Ctx, dest interface{}) error {
	if err := c.BodyParser(dest); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := ValidateStruct(dest); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

// ValidateStruct returns the first validation failure as a readable error.
func ValidateStruct(dest interface{}) error {
	err := validate.Struct(dest)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return errors.New("Validation failed")
	}
	firstError := validationErrors[0]
	field := fieldName(firstError)

	var errorMessage string
	switch firstError.Tag() {
	case "required":
		errorMessage = field + " is required"
	case "email":
		errorMessage = "Invalid email format"
	case "min":
		errorMessage = field + " must be at least " + firstError.Param()
	case "max":
		errorMessage = field + " must be at most " + firstError.Param()
	case "gt":
		errorMessage = field + " must be greater than " + firstError.Param()
	case "uuid":
		errorMessage = "Invalid UUID format"
	case "oneof":
		errorMessage = field + " must be one of: " + strings.ReplaceAll(firstError.Param(), " ", ", ")
	default:
		errorMessage = "Validation failed for " + field
	}

	return errors.New(errorMessage)
}

// fieldName keeps element indices, e.g. TicketNumbers[2].
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
