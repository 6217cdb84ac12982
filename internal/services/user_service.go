package services

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/ledger-backend/internal/api/validate"
	"github.com/baharkarakas/ledger-backend/internal/auth"
	"github.com/baharkarakas/ledger-backend/internal/models"
	repo "github.com/baharkarakas/ledger-backend/internal/repository"
)

// BalanceSeeder picks the opening balance of a new account.
type BalanceSeeder func() decimal.Decimal

// RandomOpeningBalance returns whole amounts in [0, max).
func RandomOpeningBalance(max int64) BalanceSeeder {
	return func() decimal.Decimal {
		if max <= 0 {
			return decimal.Zero
		}
		return decimal.NewFromInt(rand.Int64N(max))
	}
}

func FixedOpeningBalance(d decimal.Decimal) BalanceSeeder {
	return func() decimal.Decimal { return d }
}

type SignupInput struct {
	Username  string `json:"username" validate:"required,email"`
	Password  string `json:"password" validate:"min=5"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
}

// ClientInfo describes where a signin came from.
type ClientInfo struct {
	IP        string
	UserAgent string
}

type UserService struct {
	users repo.Users
	seed  BalanceSeeder
	audit *Auditor
}

func NewUserService(users repo.Users, seed BalanceSeeder, audit *Auditor) *UserService {
	return &UserService{users: users, seed: seed, audit: audit}
}

// Register creates the user together with its seeded account.
func (s *UserService) Register(ctx context.Context, in SignupInput) (models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if err := validate.Struct(in); err != nil {
		return models.User{}, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return models.User{}, err
	}
	u, err := s.users.Create(ctx, models.User{
		Username:     in.Username,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
	}, s.seed())
	if err != nil {
		if !errors.Is(err, models.ErrUserExists) {
			slog.Error("create user failed", "username", in.Username, "err", err)
		}
		return models.User{}, err
	}
	s.audit.Record("user", u.ID, "signup", nil)
	return u, nil
}

// Authenticate returns ErrIncorrectCredentials for an unknown user and for a
// wrong password alike. Successful signins are audited with the client info.
func (s *UserService) Authenticate(ctx context.Context, username, password string, client ClientInfo) (models.User, error) {
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, models.ErrUserNotFound) {
		return models.User{}, models.ErrIncorrectCredentials
	}
	if err != nil {
		return models.User{}, err
	}
	if err := auth.VerifyPassword(password, u.PasswordHash); err != nil {
		return models.User{}, models.ErrIncorrectCredentials
	}
	s.audit.Record("user", u.ID, "signin", map[string]any{
		"ip":         client.IP,
		"user_agent": client.UserAgent,
	})
	return u, nil
}

func (s *UserService) Get(ctx context.Context, id string) (models.User, error) {
	return s.users.GetByID(ctx, id)
}
