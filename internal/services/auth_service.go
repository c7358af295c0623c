package services

import (
	"context"
	"errors"
	"strings"

	"moto-isla-raffle/internal/config"
	"moto-isla-raffle/internal/models"
	"moto-isla-raffle/internal/repositories"
	"moto-isla-raffle/internal/utils"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
)

type AuthService struct {
	repo  *repositories.Repository
	cfg   *config.Config
	clock Clock
}

func NewAuthService(repo *repositories.Repository, cfg *config.Config, clock Clock) *AuthService {
	if clock == nil {
		clock = SystemClock
	}
	return &AuthService{repo: repo, cfg: cfg, clock: clock}
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*LoginResponse, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.repo.UserRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			log.WithError(err).Error("failed to load user")
		}
		return nil, ErrInvalidCredentials
	}

	if err := utils.CheckPassword(password, user.Password); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.generateJWT(user)
	if err != nil {
		return nil, errors.New("failed to generate token")
	}

	return &LoginResponse{Token: token, User: user}, nil
}

// CreateAdmin is used by the seed script; there is no public sign-up.
func (s *AuthService) CreateAdmin(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, errors.New("email is required")
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:       uuid.New(),
		Email:    email,
		Password: hashed,
		Role:     "admin",
	}
	if err := s.repo.UserRepo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	user.Password = ""
	return user, nil
}

func (s *AuthService) GetUserProfile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repo.UserRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, errors.New("user not found")
	}
	user.Password = ""
	return user, nil
}

func (s *AuthService) generateJWT(user *models.User) (string, error) {
	now := s.clock.Now()
	claims := jwt.MapClaims{
		"user_id": user.ID.String(),
		"email":   user.Email,
		"role":    user.Role,
		"exp":     now.Add(s.cfg.JWTTTL).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}
