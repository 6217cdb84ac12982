package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/ledger-backend/internal/models"
)

type Users interface {
	// Create inserts the user and opens its account in one unit of work.
	Create(ctx context.Context, u models.User, openingBalance decimal.Decimal) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
}

type Ledger interface {
	// WithTx runs fn inside one unit of work: it commits when fn returns nil
	// and rolls back otherwise.
	WithTx(ctx context.Context, fn func(LedgerTx) error) error

	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, userID string, f models.HistoryFilter) ([]models.TransactionView, error)
}

// LedgerTx is the set of operations available inside a unit of work.
type LedgerTx interface {
	// LockAccount reads the account and holds it exclusively until the unit
	// of work ends. Returns models.ErrAccountNotFound or models.ErrContention.
	LockAccount(ctx context.Context, userID string) (models.Account, error)
	AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal) (models.Account, error)
	SumOutgoing(ctx context.Context, userID string, from, to time.Time) (decimal.Decimal, error)
	InsertTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error)
	FindByIdempotencyKey(ctx context.Context, senderID, key string) (models.Transaction, bool, error)
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}

// Repositories bundles one backend's implementations.
type Repositories struct {
	Users     Users
	Ledger    Ledger
	AuditLogs AuditLogs
}
