package postgres

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	repo "github.com/baharkarakas/ledger-backend/internal/repository"
)

// NewRepositories builds the Postgres-backed repositories. lockTimeout bounds
// how long a unit of work waits for an account row lock.
func NewRepositories(pool *pgxpool.Pool, lockTimeout time.Duration) repo.Repositories {
	return repo.Repositories{
		Users:     &usersRepo{pool: pool},
		Ledger:    &ledgerRepo{pool: pool, lockTimeout: lockTimeout},
		AuditLogs: &auditLogsRepo{pool: pool},
	}
}
