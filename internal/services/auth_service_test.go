package services

import (
	"context"
	"testing"
	"time"

	"moto-isla-raffle/internal/config"
	"moto-isla-raffle/internal/repositories/memrepo"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate(t *testing.T) {
	store := memrepo.New()
	cfg := &config.Config{JWTSecret: "test-secret", JWTTTL: time.Hour}
	clock := &fakeClock{now: time.Now().UTC()}
	svc := NewAuthService(store.Repository(), cfg, clock)

	user, err := svc.CreateAdmin(context.Background(), " Admin@MotoIsla.com ", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "admin@motoisla.com", user.Email)
	assert.Empty(t, user.Password)

	_, err = svc.CreateAdmin(context.Background(), "admin@motoisla.com", "another-pass")
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = svc.Authenticate(context.Background(), "admin@motoisla.com", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "nobody@motoisla.com", "s3cret-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	res, err := svc.Authenticate(context.Background(), "ADMIN@motoisla.com", "s3cret-pass")
	require.NoError(t, err)

	token, err := jwt.Parse(res.Token, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "admin", claims["role"])
	assert.Equal(t, user.ID.String(), claims["user_id"])
	assert.InDelta(t, float64(clock.Now().Add(time.Hour).Unix()), claims["exp"], 1)
}

func TestCreateAdminWeakPassword(t *testing.T) {
	svc := NewAuthService(memrepo.New().Repository(), &config.Config{JWTSecret: "x", JWTTTL: time.Hour}, nil)

	_, err := svc.CreateAdmin(context.Background(), "a@b.c", "short")
	assert.Error(t, err)
}
