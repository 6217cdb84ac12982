package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/ledger-backend/internal/models"
	repo "github.com/baharkarakas/ledger-backend/internal/repository"
)

type BalanceService struct{ ledger repo.Ledger }

func NewBalanceService(ledger repo.Ledger) *BalanceService { return &BalanceService{ledger: ledger} }

// Current returns the committed balance of userID.
func (s *BalanceService) Current(ctx context.Context, userID string) (decimal.Decimal, error) {
	b, err := s.ledger.Balance(ctx, userID)
	switch {
	case err == nil:
		return b, nil
	case errors.Is(err, models.ErrAccountNotFound):
		return decimal.Zero, err
	default:
		slog.Error("read balance failed", "user_id", userID, "err", err)
		return decimal.Zero, models.Errorf(models.ErrStorage, "read balance failed")
	}
}
