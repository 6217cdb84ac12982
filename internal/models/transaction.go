package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxnCredit   TransactionType = "credit"
	TxnDebit    TransactionType = "debit"
	TxnTransfer TransactionType = "transfer"
)

type TransactionStatus string

const (
	TxnSuccess TransactionStatus = "success"
)

// Transaction is one committed movement of funds. Records are append-only.
type Transaction struct {
	ID             string            `json:"id"`
	SenderID       string            `json:"sender_id"`
	ReceiverID     string            `json:"receiver_id"`
	Amount         decimal.Decimal   `json:"amount"`
	Type           TransactionType   `json:"type"`
	Status         TransactionStatus `json:"status"`
	IdempotencyKey *string           `json:"-"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Party is the display side of a user referenced by a transaction.
type Party struct {
	ID        string
	Username  string
	FirstName string
	LastName  string
}

func (p Party) DisplayName() string { return p.FirstName + " " + p.LastName }

// TransactionView is a transaction joined with both participants.
type TransactionView struct {
	Transaction
	Sender   Party
	Receiver Party
}

type Direction string

const (
	DirCredit Direction = "credit"
	DirDebit  Direction = "debit"
)

type SortOrder int

const (
	NewestFirst SortOrder = iota
	OldestFirst
)

// HistoryFilter selects transactions for one participant. Nil fields are
// not applied; a nil Limit means no limit.
type HistoryFilter struct {
	Direction *Direction
	From      *time.Time
	To        *time.Time
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Limit     *int
	Order     SortOrder
}

// Match reports whether a view satisfies the filter from userID's side.
func (f HistoryFilter) Match(userID string, v TransactionView) bool {
	switch {
	case f.Direction != nil && *f.Direction == DirCredit:
		if v.ReceiverID != userID {
			return false
		}
	case f.Direction != nil && *f.Direction == DirDebit:
		if v.SenderID != userID {
			return false
		}
	default:
		if v.SenderID != userID && v.ReceiverID != userID {
			return false
		}
	}
	if f.From != nil && v.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && v.CreatedAt.After(*f.To) {
		return false
	}
	if f.MinAmount != nil && v.Amount.LessThan(*f.MinAmount) {
		return false
	}
	if f.MaxAmount != nil && v.Amount.GreaterThan(*f.MaxAmount) {
		return false
	}
	return true
}
