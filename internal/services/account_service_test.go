package services

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightcart/api/internal/platform/auth"
	"github.com/brightcart/api/internal/repositories/memory"
)

func newTestAccounts(t *testing.T, admins ...string) (AccountService, *auth.Sessions) {
	t.Helper()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	sessions, err := auth.NewSessions("test-secret", "brightcart", time.Hour, auth.WithSessionClock(func() time.Time { return now }))
	require.NoError(t, err)
	svc, err := NewAccountService(AccountServiceDeps{
		Accounts:    memory.NewAccountRepository(),
		Sessions:    sessions,
		AdminEmails: admins,
		Clock:       func() time.Time { return now },
	})
	require.NoError(t, err)
	return svc, sessions
}

func TestAccountServiceRegisterAndLogin(t *testing.T) {
	svc, sessions := newTestAccounts(t)
	faker := gofakeit.New(21)
	ctx := context.Background()
	email := faker.Email()
	password := faker.Password(true, true, true, false, false, 12)

	registered, err := svc.Register(ctx, RegisterCommand{Email: "  " + email + " ", Password: password, Name: faker.Name()})
	require.NoError(t, err)
	assert.NotEmpty(t, registered.Token)
	assert.NotEqual(t, password, registered.Account.PasswordHash)
	assert.False(t, registered.Account.IsAdmin)

	identity, err := sessions.Verify(ctx, registered.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.Account.ID, identity.UID)
	assert.False(t, identity.IsAdmin())

	loggedIn, err := svc.Login(ctx, LoginCommand{Email: email, Password: password})
	require.NoError(t, err)
	assert.Equal(t, registered.Account.ID, loggedIn.Account.ID)

	profile, err := svc.Profile(ctx, registered.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, registered.Account.Email, profile.Email)
}

func TestAccountServicePromotesAdminEmails(t *testing.T) {
	svc, sessions := newTestAccounts(t, "Ops@BrightCart.test")

	result, err := svc.Register(context.Background(), RegisterCommand{Email: "ops@brightcart.test", Password: "hunter22", Name: "Ops"})
	require.NoError(t, err)
	assert.True(t, result.Account.IsAdmin)

	identity, err := sessions.Verify(context.Background(), result.Token)
	require.NoError(t, err)
	assert.True(t, identity.IsAdmin())
}

func TestAccountServiceRegisterValidation(t *testing.T) {
	svc, _ := newTestAccounts(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterCommand{Email: "not-an-email", Password: "hunter22", Name: "A"})
	assert.ErrorIs(t, err, ErrAccountInvalid)
	_, err = svc.Register(ctx, RegisterCommand{Email: "a@b.test", Password: "short", Name: "A"})
	assert.ErrorIs(t, err, ErrAccountInvalid)
	_, err = svc.Register(ctx, RegisterCommand{Email: "a@b.test", Password: "hunter22", Name: " "})
	assert.ErrorIs(t, err, ErrAccountInvalid)

	_, err = svc.Register(ctx, RegisterCommand{Email: "a@b.test", Password: "hunter22", Name: "A"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterCommand{Email: "A@B.test", Password: "hunter22", Name: "A"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestAccountServiceLoginRejectsBadCredentialsUniformly(t *testing.T) {
	svc, _ := newTestAccounts(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterCommand{Email: "a@b.test", Password: "hunter22", Name: "A"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginCommand{Email: "a@b.test", Password: "wrong-pass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, LoginCommand{Email: "nobody@b.test", Password: "hunter22"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAccountServiceWithoutSessionsDisablesLocalAuth(t *testing.T) {
	svc, err := NewAccountService(AccountServiceDeps{Accounts: memory.NewAccountRepository()})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), RegisterCommand{Email: "a@b.test", Password: "hunter22", Name: "A"})
	assert.ErrorIs(t, err, ErrLocalAuthDisabled)
	_, err = svc.Profile(context.Background(), "usr_missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
