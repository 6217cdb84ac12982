package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/ledger-backend/internal/metrics"
	"github.com/baharkarakas/ledger-backend/internal/models"
	"github.com/baharkarakas/ledger-backend/internal/notify"
	"github.com/baharkarakas/ledger-backend/internal/policy"
	repo "github.com/baharkarakas/ledger-backend/internal/repository"
)

// Notifier is told about credits after they are committed.
type Notifier interface {
	Notify(receiverID string, ev notify.Event)
}

type TransferRequest struct {
	SenderID   string
	ReceiverID string
	Amount     decimal.Decimal
	// IdempotencyKey is optional. A repeated key from the same sender returns
	// the first record instead of moving funds again.
	IdempotencyKey string
}

type TransferService struct {
	ledger   repo.Ledger
	limits   policy.Limits
	notifier Notifier
	audit    *Auditor
	now      func() time.Time
}

type TransferOption func(*TransferService)

func WithClock(now func() time.Time) TransferOption {
	return func(s *TransferService) { s.now = now }
}

func WithNotifier(n Notifier) TransferOption {
	return func(s *TransferService) { s.notifier = n }
}

func WithAuditor(a *Auditor) TransferOption {
	return func(s *TransferService) { s.audit = a }
}

func NewTransferService(ledger repo.Ledger, limits policy.Limits, opts ...TransferOption) *TransferService {
	s := &TransferService{ledger: ledger, limits: limits, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Transfer moves Amount from sender to receiver in one unit of work. Every
// returned error wraps exactly one models kind.
func (s *TransferService) Transfer(ctx context.Context, req TransferRequest) (txn models.Transaction, err error) {
	start := time.Now()
	replayed := false
	defer func() {
		outcome := "success"
		switch {
		case err != nil:
			outcome = models.Code(err)
		case replayed:
			outcome = "replayed"
		}
		metrics.ObserveTransfer(outcome, time.Since(start))
	}()

	if req.SenderID == req.ReceiverID {
		return models.Transaction{}, models.Errorf(models.ErrValidation, "cannot transfer to yourself")
	}
	if err := s.limits.CheckBounds(req.Amount); err != nil {
		return models.Transaction{}, err
	}

	now := s.now()
	dayStart, dayEnd := s.limits.DayWindow(now)

	err = s.ledger.WithTx(ctx, func(tx repo.LedgerTx) error {
		accounts := make(map[string]models.Account, 2)
		for _, id := range lockOrder(req.SenderID, req.ReceiverID) {
			acc, err := tx.LockAccount(ctx, id)
			if errors.Is(err, models.ErrAccountNotFound) {
				return models.Errorf(models.ErrAccountNotFound, "%s account not found", role(id, req.SenderID))
			}
			if err != nil {
				return err
			}
			accounts[id] = acc
		}

		if req.IdempotencyKey != "" {
			prev, found, err := tx.FindByIdempotencyKey(ctx, req.SenderID, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if found {
				if prev.ReceiverID != req.ReceiverID || !prev.Amount.Equal(req.Amount) {
					return models.Errorf(models.ErrValidation, "idempotency key already used for a different transfer")
				}
				txn, replayed = prev, true
				return nil
			}
		}

		if accounts[req.SenderID].Balance.LessThan(req.Amount) {
			return models.Errorf(models.ErrInsufficientBalance, "insufficient balance")
		}

		spent, err := tx.SumOutgoing(ctx, req.SenderID, dayStart, dayEnd)
		if err != nil {
			return err
		}
		if err := s.limits.CheckDailyCap(spent, req.Amount); err != nil {
			return err
		}

		if _, err := tx.AdjustBalance(ctx, req.SenderID, req.Amount.Neg()); err != nil {
			return err
		}
		if _, err := tx.AdjustBalance(ctx, req.ReceiverID, req.Amount); err != nil {
			return err
		}

		rec := models.Transaction{
			ID:         uuid.NewString(),
			SenderID:   req.SenderID,
			ReceiverID: req.ReceiverID,
			Amount:     req.Amount,
			Type:       models.TxnTransfer,
			Status:     models.TxnSuccess,
			CreatedAt:  now,
		}
		if req.IdempotencyKey != "" {
			key := req.IdempotencyKey
			rec.IdempotencyKey = &key
		}
		txn, err = tx.InsertTransaction(ctx, rec)
		return err
	})
	if err != nil {
		return models.Transaction{}, s.surface(err, req)
	}
	if replayed {
		return txn, nil
	}

	s.audit.Record("transaction", txn.ID, "transfer", map[string]any{
		"sender_id":   txn.SenderID,
		"receiver_id": txn.ReceiverID,
		"amount":      txn.Amount.StringFixed(policy.MaxScale),
	})
	if s.notifier != nil {
		amount := txn.Amount.StringFixed(policy.MaxScale)
		s.notifier.Notify(txn.ReceiverID, notify.Event{
			Type:      "credit",
			Amount:    json.Number(amount),
			From:      txn.SenderID,
			Message:   fmt.Sprintf("You received %s", amount),
			Timestamp: txn.CreatedAt,
		})
	}
	return txn, nil
}

// surface passes rejection kinds through and turns anything else into a
// generic storage fault, keeping the detail in the log only.
func (s *TransferService) surface(err error, req TransferRequest) error {
	for _, kind := range []error{
		models.ErrValidation,
		models.ErrInsufficientBalance,
		models.ErrLimitExceeded,
		models.ErrAccountNotFound,
		models.ErrContention,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	slog.Error("transfer failed",
		"sender_id", req.SenderID,
		"receiver_id", req.ReceiverID,
		"amount", req.Amount.String(),
		"err", err,
	)
	return models.Errorf(models.ErrStorage, "transfer could not be completed")
}

// lockOrder returns both ids in ascending order so that any two transfers
// touching the same pair acquire locks in the same sequence.
func lockOrder(a, b string) [2]string {
	if b < a {
		return [2]string{b, a}
	}
	return [2]string{a, b}
}

func role(id, senderID string) string {
	if id == senderID {
		return "sender"
	}
	return "recipient"
}
