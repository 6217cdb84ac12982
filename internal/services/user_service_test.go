package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/ledger-backend/internal/api/validate"
	"github.com/baharkarakas/ledger-backend/internal/models"
	"github.com/baharkarakas/ledger-backend/internal/repository/memory"
)

func TestUserService_RegisterSeedsAccount(t *testing.T) {
	t.Parallel()
	repos, store := memory.NewRepositories(time.Second)
	svc := NewUserService(repos.Users, FixedOpeningBalance(dec("1234")), NewAuditor(repos.AuditLogs, nil))
	ctx := context.Background()

	u, err := svc.Register(ctx, SignupInput{Username: " ada@example.com ", Password: "secret", FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Username)
	assert.NotEqual(t, "secret", u.PasswordHash)

	bal, err := repos.Ledger.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, dec("1234").Equal(bal))
	assert.Len(t, store.AuditLogs(), 1)

	_, err = svc.Register(ctx, SignupInput{Username: "ada@example.com", Password: "secret", FirstName: "A", LastName: "L"})
	assert.ErrorIs(t, err, models.ErrUserExists)
}

func TestUserService_RegisterValidates(t *testing.T) {
	t.Parallel()
	repos, _ := memory.NewRepositories(time.Second)
	svc := NewUserService(repos.Users, FixedOpeningBalance(dec("0")), nil)

	_, err := svc.Register(context.Background(), SignupInput{Username: "nope", Password: "123"})
	require.ErrorIs(t, err, models.ErrValidation)
	var errs validate.Errs
	require.True(t, errors.As(err, &errs))
	assert.Len(t, errs, 4)
}

func TestUserService_Authenticate(t *testing.T) {
	t.Parallel()
	repos, store := memory.NewRepositories(time.Second)
	svc := NewUserService(repos.Users, FixedOpeningBalance(dec("0")), NewAuditor(repos.AuditLogs, nil))
	ctx := context.Background()
	client := ClientInfo{IP: "203.0.113.7", UserAgent: "curl/8.5"}

	u, err := svc.Register(ctx, SignupInput{Username: "ada@example.com", Password: "secret", FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)

	got, err := svc.Authenticate(ctx, "ada@example.com", "secret", client)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = svc.Authenticate(ctx, "ada@example.com", "wrong", client)
	assert.ErrorIs(t, err, models.ErrIncorrectCredentials)
	_, err = svc.Authenticate(ctx, "ghost@example.com", "secret", client)
	assert.ErrorIs(t, err, models.ErrIncorrectCredentials)

	// signup plus the one successful signin
	logs := store.AuditLogs()
	require.Len(t, logs, 2)
	signin := logs[1]
	assert.Equal(t, "user", signin.EntityType)
	require.NotNil(t, signin.EntityID)
	assert.Equal(t, u.ID, *signin.EntityID)
	assert.Equal(t, "signin", signin.Action)
	assert.Equal(t, map[string]any{"ip": "203.0.113.7", "user_agent": "curl/8.5"}, signin.Details)
}

func TestRandomOpeningBalance(t *testing.T) {
	t.Parallel()
	seed := RandomOpeningBalance(10000)
	for i := 0; i < 100; i++ {
		b := seed()
		assert.False(t, b.IsNegative())
		assert.True(t, b.LessThan(dec("10000")))
	}
	assert.True(t, RandomOpeningBalance(0)().IsZero())
}
