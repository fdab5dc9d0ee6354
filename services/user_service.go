package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"teamdrive/models"
	"teamdrive/repositories"
	"teamdrive/utils"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const emailRule = "required,email,max=255"

// normalizeEmail is the stored form of an address. Lookups by email must
// normalize the same way.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type TokenOutput struct {
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expires_at"`
	User      models.UserSummary `json:"user"`
}

type UserService interface {
	Register(ctx context.Context, email string) (models.UserSummary, error)
	IssueToken(ctx context.Context, userID uint) (TokenOutput, error)
	Profile(ctx context.Context, userID uint) (models.UserSummary, error)
}

type userService struct {
	users    repositories.UserRepository
	validate *validator.Validate
	secret   string
	ttl      time.Duration
}

func NewUserService(users repositories.UserRepository, secret string, ttl time.Duration) UserService {
	return &userService{users: users, validate: validator.New(), secret: secret, ttl: ttl}
}

// Register creates a user. Emails are stored lowercased so member lookups
// can match them case-insensitively.
func (s *userService) Register(ctx context.Context, email string) (models.UserSummary, error) {
	email = normalizeEmail(email)
	if err := s.validate.Var(email, emailRule); err != nil {
		return models.UserSummary{}, newAppError(http.StatusBadRequest, "Invalid email", nil)
	}

	user := models.User{Email: email}
	if err := s.users.Create(ctx, nil, &user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.UserSummary{}, newAppError(http.StatusConflict, "Email already registered", nil)
		}
		return models.UserSummary{}, newAppError(http.StatusInternalServerError, "Failed to create user", err)
	}
	return user.Summary(), nil
}

func (s *userService) IssueToken(ctx context.Context, userID uint) (TokenOutput, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return TokenOutput{}, err
	}
	token, err := utils.GenerateToken(user.ID, s.secret, s.ttl)
	if err != nil {
		return TokenOutput{}, newAppError(http.StatusInternalServerError, "Failed to issue token", err)
	}
	return TokenOutput{Token: token, ExpiresAt: time.Now().Add(s.ttl), User: user}, nil
}

func (s *userService) Profile(ctx context.Context, userID uint) (models.UserSummary, error) {
	user, err := s.users.GetByID(ctx, nil, userID)
	if err != nil {
		return models.UserSummary{}, notFoundOr(err, "User not found")
	}
	return user.Summary(), nil
}
