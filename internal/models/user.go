package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u User) Party() Party {
	return Party{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
}

// Account holds the balance of exactly one user.
type Account struct {
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}
