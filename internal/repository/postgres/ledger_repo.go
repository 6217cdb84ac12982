package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/ledger-backend/internal/models"
	repo "github.com/baharkarakas/ledger-backend/internal/repository"
)

type ledgerRepo struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// WithTx runs fn in a READ COMMITTED transaction. Row locks taken with
// LockAccount serialize writers; lock_timeout bounds the wait.
func (r *ledgerRepo) WithTx(ctx context.Context, fn func(repo.LedgerTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("begin: %w", classify(err))
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if r.lockTimeout > 0 {
		ms := strconv.FormatInt(r.lockTimeout.Milliseconds(), 10) + "ms"
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, ms); err != nil {
			return fmt.Errorf("set lock_timeout: %w", classify(err))
		}
	}

	if err := fn(&ledgerTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", classify(err))
	}
	return nil
}

func (r *ledgerRepo) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT balance FROM accounts WHERE user_id=$1`, userID).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, models.ErrAccountNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("select balance: %w", err)
	}
	return bal, nil
}

// Every optional predicate is written as "$n IS NULL OR ..." so the filter
// maps onto fixed statements with positional parameters.
const historySelect = `
SELECT t.id, t.sender_id, t.receiver_id, t.amount, t.type, t.status, t.created_at,
       s.username, s.first_name, s.last_name,
       r.username, r.first_name, r.last_name
  FROM transactions t
  JOIN users s ON s.id = t.sender_id
  JOIN users r ON r.id = t.receiver_id
 WHERE CASE $2::text
         WHEN 'credit' THEN t.receiver_id = $1
         WHEN 'debit'  THEN t.sender_id = $1
         ELSE t.sender_id = $1 OR t.receiver_id = $1
       END
   AND ($3::timestamptz IS NULL OR t.created_at >= $3)
   AND ($4::timestamptz IS NULL OR t.created_at <= $4)
   AND ($5::numeric IS NULL OR t.amount >= $5)
   AND ($6::numeric IS NULL OR t.amount <= $6)
`

const (
	historyNewestFirst = historySelect + ` ORDER BY t.created_at DESC, t.id DESC LIMIT $7`
	historyOldestFirst = historySelect + ` ORDER BY t.created_at ASC, t.id ASC LIMIT $7`
)

func (r *ledgerRepo) ListTransactions(ctx context.Context, userID string, f models.HistoryFilter) ([]models.TransactionView, error) {
	q := historyNewestFirst
	if f.Order == models.OldestFirst {
		q = historyOldestFirst
	}

	var dir *string
	if f.Direction != nil {
		s := string(*f.Direction)
		dir = &s
	}

	rows, err := r.pool.Query(ctx, q, userID, dir, f.From, f.To, f.MinAmount, f.MaxAmount, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []models.TransactionView
	for rows.Next() {
		var v models.TransactionView
		if err := rows.Scan(
			&v.ID, &v.SenderID, &v.ReceiverID, &v.Amount, &v.Type, &v.Status, &v.CreatedAt,
			&v.Sender.Username, &v.Sender.FirstName, &v.Sender.LastName,
			&v.Receiver.Username, &v.Receiver.FirstName, &v.Receiver.LastName,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		v.Sender.ID = v.SenderID
		v.Receiver.ID = v.ReceiverID
		out = append(out, v)
	}
	return out, rows.Err()
}

type ledgerTx struct{ tx pgx.Tx }

func (t *ledgerTx) LockAccount(ctx context.Context, userID string) (models.Account, error) {
	var a models.Account
	err := t.tx.QueryRow(ctx,
		`SELECT user_id, balance, updated_at
		   FROM accounts
		  WHERE user_id=$1
		  FOR UPDATE`,
		userID,
	).Scan(&a.UserID, &a.Balance, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Account{}, models.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("lock account: %w", classify(err))
	}
	return a, nil
}

func (t *ledgerTx) AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal) (models.Account, error) {
	var a models.Account
	err := t.tx.QueryRow(ctx,
		`UPDATE accounts
		    SET balance = balance + $2,
		        updated_at = now()
		  WHERE user_id = $1
		  RETURNING user_id, balance, updated_at`,
		userID, delta,
	).Scan(&a.UserID, &a.Balance, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Account{}, models.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("adjust balance: %w", classify(err))
	}
	return a, nil
}

func (t *ledgerTx) SumOutgoing(ctx context.Context, userID string, from, to time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)
		   FROM transactions
		  WHERE sender_id = $1 AND created_at >= $2 AND created_at < $3`,
		userID, from, to,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum outgoing: %w", classify(err))
	}
	return sum, nil
}

func (t *ledgerTx) InsertTransaction(ctx context.Context, rec models.Transaction) (models.Transaction, error) {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO transactions (id, sender_id, receiver_id, amount, type, status, idempotency_key, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 RETURNING created_at`,
		rec.ID, rec.SenderID, rec.ReceiverID, rec.Amount, rec.Type, rec.Status, rec.IdempotencyKey, rec.CreatedAt,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("insert transaction: %w", classify(err))
	}
	return rec, nil
}

func (t *ledgerTx) FindByIdempotencyKey(ctx context.Context, senderID, key string) (models.Transaction, bool, error) {
	var rec models.Transaction
	err := t.tx.QueryRow(ctx,
		`SELECT id, sender_id, receiver_id, amount, type, status, idempotency_key, created_at
		   FROM transactions
		  WHERE sender_id = $1 AND idempotency_key = $2`,
		senderID, key,
	).Scan(&rec.ID, &rec.SenderID, &rec.ReceiverID, &rec.Amount, &rec.Type, &rec.Status, &rec.IdempotencyKey, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Transaction{}, false, nil
	}
	if err != nil {
		return models.Transaction{}, false, fmt.Errorf("find by idempotency key: %w", classify(err))
	}
	return rec, true, nil
}
