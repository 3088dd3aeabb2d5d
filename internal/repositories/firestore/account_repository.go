package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/brightcart/api/internal/domain"
	pfirestore "github.com/brightcart/api/internal/platform/firestore"
	"github.com/brightcart/api/internal/repositories"
)

const (
	accountsCollection      = "accounts"
	accountEmailsCollection = "accountEmails"
)

type accountDocument struct {
	Email        string    `firestore:"email"`
	Name         string    `firestore:"name"`
	PasswordHash string    `firestore:"passwordHash"`
	IsAdmin      bool      `firestore:"isAdmin"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// accountEmailDocument maps a hashed email to the owning account. Email addresses may contain
// characters Firestore rejects in document IDs.
type accountEmailDocument struct {
	AccountID string `firestore:"accountId"`
}

// AccountRepository stores accounts with a unique email index.
type AccountRepository struct {
	provider *pfirestore.Provider
	accounts *pfirestore.Collection[accountDocument]
	emails   *pfirestore.Collection[accountEmailDocument]
}

var _ repositories.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository constructs a Firestore backed account repository.
func NewAccountRepository(provider *pfirestore.Provider) (*AccountRepository, error) {
	if provider == nil {
		return nil, errors.New("account repository requires firestore provider")
	}
	return &AccountRepository{
		provider: provider,
		accounts: pfirestore.NewCollection[accountDocument](provider, accountsCollection),
		emails:   pfirestore.NewCollection[accountEmailDocument](provider, accountEmailsCollection),
	}, nil
}

func emailKey(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// Insert stores the account and claims its email in one transaction.
func (r *AccountRepository) Insert(ctx context.Context, account domain.Account) error {
	accountRef, err := r.accounts.Doc(ctx, account.ID)
	if err != nil {
		return err
	}
	emailRef, err := r.emails.Doc(ctx, emailKey(account.Email))
	if err != nil {
		return err
	}
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if exists, err := docExists(tx, emailRef); err != nil {
			return err
		} else if exists {
			return repositories.ErrDuplicateEmail
		}
		if err := tx.Create(emailRef, accountEmailDocument{AccountID: account.ID}); err != nil {
			return err
		}
		return tx.Create(accountRef, accountDocument{
			Email:        account.Email,
			Name:         account.Name,
			PasswordHash: account.PasswordHash,
			IsAdmin:      account.IsAdmin,
			CreatedAt:    account.CreatedAt,
			UpdatedAt:    account.UpdatedAt,
		})
	})
	if pfirestore.IsAlreadyExists(err) {
		return repositories.ErrDuplicateEmail
	}
	return err
}

func (r *AccountRepository) FindByID(ctx context.Context, accountID string) (domain.Account, error) {
	doc, err := r.accounts.Get(ctx, accountID)
	if err != nil {
		return domain.Account{}, err
	}
	return decodeAccount(accountID, doc), nil
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (domain.Account, error) {
	index, err := r.emails.Get(ctx, emailKey(email))
	if err != nil {
		return domain.Account{}, err
	}
	return r.FindByID(ctx, index.AccountID)
}

func (r *AccountRepository) Count(ctx context.Context) (int, error) {
	return r.accounts.Count(ctx, nil)
}

func decodeAccount(id string, doc accountDocument) domain.Account {
	return domain.Account{
		ID:           id,
		Email:        doc.Email,
		Name:         doc.Name,
		PasswordHash: doc.PasswordHash,
		IsAdmin:      doc.IsAdmin,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}
