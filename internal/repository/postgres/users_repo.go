package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/ledger-backend/internal/models"
)

type usersRepo struct{ pool *pgxpool.Pool }

func (r *usersRepo) Create(ctx context.Context, u models.User, openingBalance decimal.Decimal) (models.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO users(id, username, first_name, last_name, password_hash)
			 VALUES($1,$2,$3,$4,$5)
			 RETURNING created_at`,
			u.ID, u.Username, u.FirstName, u.LastName, u.PasswordHash,
		).Scan(&u.CreatedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO accounts(user_id, balance) VALUES($1,$2)`, u.ID, openingBalance)
		return err
	})
	if isUniqueViolation(err) {
		return models.User{}, models.ErrUserExists
	}
	if err != nil {
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

const userColumns = `id, username, first_name, last_name, password_hash, created_at`

func (r *usersRepo) GetByID(ctx context.Context, id string) (models.User, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (r *usersRepo) GetByUsername(ctx context.Context, username string) (models.User, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username))
}

func (r *usersRepo) scanOne(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, models.ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}
