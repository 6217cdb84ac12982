// Package memory is an in-process ledger backend with the same locking and
// atomicity contract as the Postgres one. It is used for local runs
// (LEDGER_DRIVER=memory) and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/ledger-backend/internal/models"
	repo "github.com/baharkarakas/ledger-backend/internal/repository"
)

type account struct {
	// lock has capacity 1 and is held for the life of a unit of work.
	lock      chan struct{}
	balance   decimal.Decimal
	updatedAt time.Time
}

type Store struct {
	lockTimeout time.Duration

	// mu guards the committed state below. It is only held for short
	// copies and for applying a commit, never while waiting for a row lock.
	mu       sync.RWMutex
	users    map[string]models.User
	byName   map[string]string
	accounts map[string]*account
	txns     []models.Transaction
	audit    []models.AuditLog
}

func New(lockTimeout time.Duration) *Store {
	return &Store{
		lockTimeout: lockTimeout,
		users:       make(map[string]models.User),
		byName:      make(map[string]string),
		accounts:    make(map[string]*account),
	}
}

// NewRepositories returns the store behind the repository interfaces.
func NewRepositories(lockTimeout time.Duration) (repo.Repositories, *Store) {
	s := New(lockTimeout)
	return repo.Repositories{
		Users:     usersView{s},
		Ledger:    s,
		AuditLogs: auditView{s},
	}, s
}

// Transactions returns a copy of every committed record, oldest first.
func (s *Store) Transactions() []models.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Transaction(nil), s.txns...)
}

// AuditLogs returns a copy of every audit entry written so far.
func (s *Store) AuditLogs() []models.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AuditLog(nil), s.audit...)
}

func (s *Store) Balance(_ context.Context, userID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[userID]
	if !ok {
		return decimal.Zero, models.ErrAccountNotFound
	}
	return a.balance, nil
}

func (s *Store) ListTransactions(_ context.Context, userID string, f models.HistoryFilter) ([]models.TransactionView, error) {
	s.mu.RLock()
	var out []models.TransactionView
	for _, t := range s.txns {
		v := models.TransactionView{
			Transaction: t,
			Sender:      s.users[t.SenderID].Party(),
			Receiver:    s.users[t.ReceiverID].Party(),
		}
		if f.Match(userID, v) {
			out = append(out, v)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if f.Order == models.OldestFirst {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit != nil && *f.Limit < len(out) {
		out = out[:*f.Limit]
	}
	return out, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(repo.LedgerTx) error) error {
	u := &unit{
		s:      s,
		held:   make(map[string]*account),
		deltas: make(map[string]decimal.Decimal),
	}
	defer u.release()

	if err := fn(u); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	u.commit()
	return nil
}

type unit struct {
	s       *Store
	held    map[string]*account
	deltas  map[string]decimal.Decimal
	inserts []models.Transaction
}

func (u *unit) LockAccount(ctx context.Context, userID string) (models.Account, error) {
	if _, ok := u.held[userID]; !ok {
		u.s.mu.RLock()
		a, ok := u.s.accounts[userID]
		u.s.mu.RUnlock()
		if !ok {
			return models.Account{}, models.ErrAccountNotFound
		}
		if err := u.acquire(ctx, a); err != nil {
			return models.Account{}, err
		}
		u.held[userID] = a
	}
	return u.view(userID), nil
}

func (u *unit) acquire(ctx context.Context, a *account) error {
	var timeout <-chan time.Time
	if u.s.lockTimeout > 0 {
		t := time.NewTimer(u.s.lockTimeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case a.lock <- struct{}{}:
		return nil
	case <-timeout:
		return fmt.Errorf("%w: lock wait exceeded %s", models.ErrContention, u.s.lockTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", models.ErrContention, ctx.Err())
	}
}

func (u *unit) view(userID string) models.Account {
	a := u.held[userID]
	u.s.mu.RLock()
	bal, at := a.balance, a.updatedAt
	u.s.mu.RUnlock()
	return models.Account{UserID: userID, Balance: bal.Add(u.deltas[userID]), UpdatedAt: at}
}

func (u *unit) AdjustBalance(_ context.Context, userID string, delta decimal.Decimal) (models.Account, error) {
	if _, ok := u.held[userID]; !ok {
		return models.Account{}, fmt.Errorf("adjust balance: account %s is not locked", userID)
	}
	next := u.view(userID).Balance.Add(delta)
	if next.IsNegative() {
		return models.Account{}, errors.New("adjust balance: balance would become negative")
	}
	u.deltas[userID] = u.deltas[userID].Add(delta)
	return u.view(userID), nil
}

func (u *unit) SumOutgoing(_ context.Context, userID string, from, to time.Time) (decimal.Decimal, error) {
	in := func(t models.Transaction) bool {
		return t.SenderID == userID && !t.CreatedAt.Before(from) && t.CreatedAt.Before(to)
	}
	sum := decimal.Zero
	u.s.mu.RLock()
	for _, t := range u.s.txns {
		if in(t) {
			sum = sum.Add(t.Amount)
		}
	}
	u.s.mu.RUnlock()
	for _, t := range u.inserts {
		if in(t) {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

func (u *unit) InsertTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.IdempotencyKey != nil {
		if _, found, _ := u.FindByIdempotencyKey(ctx, t.SenderID, *t.IdempotencyKey); found {
			return models.Transaction{}, errors.New("insert transaction: duplicate idempotency key")
		}
	}
	u.inserts = append(u.inserts, t)
	return t, nil
}

func (u *unit) FindByIdempotencyKey(_ context.Context, senderID, key string) (models.Transaction, bool, error) {
	match := func(t models.Transaction) bool {
		return t.SenderID == senderID && t.IdempotencyKey != nil && *t.IdempotencyKey == key
	}
	for _, t := range u.inserts {
		if match(t) {
			return t, true, nil
		}
	}
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	for _, t := range u.s.txns {
		if match(t) {
			return t, true, nil
		}
	}
	return models.Transaction{}, false, nil
}

func (u *unit) commit() {
	now := time.Now()
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for id, d := range u.deltas {
		a := u.s.accounts[id]
		a.balance = a.balance.Add(d)
		a.updatedAt = now
	}
	u.s.txns = append(u.s.txns, u.inserts...)
}

func (u *unit) release() {
	for _, a := range u.held {
		<-a.lock
	}
}

type usersView struct{ s *Store }

func (v usersView) Create(_ context.Context, u models.User, openingBalance decimal.Decimal) (models.User, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byName[u.Username]; taken {
		return models.User{}, models.ErrUserExists
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = time.Now()
	s.users[u.ID] = u
	s.byName[u.Username] = u.ID
	s.accounts[u.ID] = &account{
		lock:      make(chan struct{}, 1),
		balance:   openingBalance,
		updatedAt: u.CreatedAt,
	}
	return u, nil
}

func (v usersView) GetByID(_ context.Context, id string) (models.User, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	u, ok := v.s.users[id]
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}
	return u, nil
}

func (v usersView) GetByUsername(ctx context.Context, username string) (models.User, error) {
	v.s.mu.RLock()
	id, ok := v.s.byName[username]
	v.s.mu.RUnlock()
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}
	return v.GetByID(ctx, id)
}

type auditView struct{ s *Store }

func (v auditView) Create(_ context.Context, l models.AuditLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.CreatedAt = time.Now()
	v.s.mu.Lock()
	v.s.audit = append(v.s.audit, l)
	v.s.mu.Unlock()
	return nil
}
