package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"moto-isla-raffle/internal/config"
	"moto-isla-raffle/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderBody struct {
	Name    string `json:"name" validate:"required"`
	Tickets []int  `json:"tickets" validate:"required,min=1,dive,min=0"`
	Status  string `json:"status" validate:"omitempty,oneof=paid cancelled"`
}

func TestValidateStructMessages(t *testing.T) {
	tests := []struct {
		name string
		body orderBody
		want string
	}{
		{"missing name", orderBody{Tickets: []int{1}}, "Name is required"},
		{"empty tickets", orderBody{Name: "x", Tickets: []int{}}, "Tickets must be at least 1"},
		{"negative ticket", orderBody{Name: "x", Tickets: []int{1, -2}}, "Tickets[1] must be at least 0"},
		{"bad status", orderBody{Name: "x", Tickets: []int{1}, Status: "pending"}, "Status must be one of: paid, cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.body)
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}

	assert.NoError(t, ValidateStruct(&orderBody{Name: "x", Tickets: []int{0}}))
}

func TestValidateBodyStoresParsedValue(t *testing.T) {
	app := fiber.New()
	app.Post("/", ValidateBody(func() interface{} { return new(orderBody) }), func(c *fiber.Ctx) error {
		body := c.Locals("validatedBody").(*orderBody)
		return c.JSON(body)
	})

	send := func(payload string) (int, string) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		var out map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		if msg, ok := out["error"].(string); ok {
			return resp.StatusCode, msg
		}
		return resp.StatusCode, out["name"].(string)
	}

	code, got := send(`{"name":"Ana","tickets":[3]}`)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "Ana", got)

	code, got = send(`{"tickets":[3]}`)
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, "Name is required", got)

	code, got = send(`{not json`)
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, "Invalid request body", got)
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestJWTMiddlewareAndAdminOnly(t *testing.T) {
	cfg := &config.Config{JWTSecret: "middleware-secret"}
	app := fiber.New()
	app.Get("/admin", JWTMiddleware(cfg), AdminOnly, func(c *fiber.Ctx) error {
		id, err := GetUserIDFromContext(c)
		if err != nil {
			return err
		}
		return utils.Success(c, id, "ok")
	})

	call := func(token string) int {
		req := httptest.NewRequest("GET", "/admin", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	exp := time.Now().Add(time.Hour).Unix()
	admin := signToken(t, cfg.JWTSecret, jwt.MapClaims{"user_id": "u-1", "role": "admin", "exp": exp})
	viewer := signToken(t, cfg.JWTSecret, jwt.MapClaims{"user_id": "u-2", "role": "viewer", "exp": exp})
	forged := signToken(t, "other-secret", jwt.MapClaims{"user_id": "u-1", "role": "admin", "exp": exp})
	expired := signToken(t, cfg.JWTSecret, jwt.MapClaims{"user_id": "u-1", "role": "admin", "exp": time.Now().Add(-time.Hour).Unix()})

	assert.Equal(t, fiber.StatusOK, call(admin))
	assert.Equal(t, fiber.StatusForbidden, call(viewer))
	assert.Equal(t, fiber.StatusUnauthorized, call(forged))
	assert.Equal(t, fiber.StatusUnauthorized, call(expired))
	assert.Equal(t, fiber.StatusUnauthorized, call(""))
}
