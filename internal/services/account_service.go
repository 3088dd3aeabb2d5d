package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/platform/auth"
	"github.com/brightcart/api/internal/repositories"
)

var (
	// ErrAccountInvalid indicates malformed registration or login input.
	ErrAccountInvalid = errors.New("account: invalid input")
	// ErrEmailTaken is returned when registering an email that already has an account.
	ErrEmailTaken = errors.New("account: email already registered")
	// ErrInvalidCredentials is returned for an unknown email or a wrong password alike.
	ErrInvalidCredentials = errors.New("account: invalid email or password")
	// ErrAccountNotFound is returned when the account does not exist.
	ErrAccountNotFound = errors.New("account: not found")
	// ErrLocalAuthDisabled is returned when sessions are issued by an external identity provider.
	ErrLocalAuthDisabled = errors.New("account: local sign-in is disabled")
)

type sessionIssuer interface {
	Issue(subject auth.SessionSubject) (auth.IssuedToken, error)
}

// AccountServiceDeps wires the account service.
type AccountServiceDeps struct {
	Accounts    repositories.AccountRepository
	Sessions    sessionIssuer
	AdminEmails []string
	Clock       func() time.Time
	Logger      Logger
	IDGenerator func() string
}

type accountService struct {
	accounts repositories.AccountRepository
	sessions sessionIssuer
	admins   map[string]struct{}
	now      func() time.Time
	logger   Logger
	newID    func() string
}

// NewAccountService constructs an AccountService. Without Sessions only Profile is available.
func NewAccountService(deps AccountServiceDeps) (AccountService, error) {
	if deps.Accounts == nil {
		return nil, errors.New("account service: account repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return "usr_" + strings.ToLower(ulid.Make().String()) }
	}
	admins := make(map[string]struct{}, len(deps.AdminEmails))
	for _, email := range deps.AdminEmails {
		if email = normaliseEmail(email); email != "" {
			admins[email] = struct{}{}
		}
	}
	return &accountService{
		accounts: deps.Accounts,
		sessions: deps.Sessions,
		admins:   admins,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
		newID:    idGen,
	}, nil
}

func (s *accountService) Register(ctx context.Context, cmd RegisterCommand) (AuthResult, error) {
	if s.sessions == nil {
		return AuthResult{}, ErrLocalAuthDisabled
	}
	email := normaliseEmail(cmd.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return AuthResult{}, fmt.Errorf("%w: a valid email is required", ErrAccountInvalid)
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return AuthResult{}, fmt.Errorf("%w: name is required", ErrAccountInvalid)
	}
	hash, err := auth.HashPassword(cmd.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			return AuthResult{}, fmt.Errorf("%w: %v", ErrAccountInvalid, err)
		}
		return AuthResult{}, err
	}

	now := s.now()
	_, admin := s.admins[email]
	account := Account{
		ID:           s.newID(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		IsAdmin:      admin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.Insert(ctx, account); err != nil {
		if errors.Is(err, repositories.ErrDuplicateEmail) {
			return AuthResult{}, ErrEmailTaken
		}
		return AuthResult{}, err
	}
	s.logger(ctx, "account.registered", map[string]any{"accountId": account.ID, "admin": admin})
	return s.issue(account)
}

func (s *accountService) Login(ctx context.Context, cmd LoginCommand) (AuthResult, error) {
	if s.sessions == nil {
		return AuthResult{}, ErrLocalAuthDisabled
	}
	email := normaliseEmail(cmd.Email)
	if email == "" || cmd.Password == "" {
		return AuthResult{}, fmt.Errorf("%w: email and password are required", ErrAccountInvalid)
	}
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if repositories.IsNotFound(err) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}
	if err := auth.CheckPassword(account.PasswordHash, cmd.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger(ctx, "account.login.rejected", map[string]any{"accountId": account.ID})
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}
	return s.issue(account)
}

func (s *accountService) Profile(ctx context.Context, accountID string) (Account, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return Account{}, ErrAccountNotFound
	}
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return account, nil
}

func (s *accountService) issue(account domain.Account) (AuthResult, error) {
	token, err := s.sessions.Issue(auth.SessionSubject{
		AccountID: account.ID,
		Email:     account.Email,
		Name:      account.Name,
		IsAdmin:   account.IsAdmin,
	})
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Account: account, Token: token.Token, ExpiresAt: token.ExpiresAt}, nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
