package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

// DefaultConfirmationTTL is how long a confirmation link stays valid
const DefaultConfirmationTTL = 24 * time.Hour

// AccountStore is the bun backed IdentityStore
type AccountStore struct {
	repos            RepositoryManager
	policy           PasswordPolicy
	passwordCost     int
	confirmationTTL  time.Duration
	deterministicIDs bool
	now              func() time.Time
	logger           Logger

	dummyOnce sync.Once
	dummyHash string
}

var _ IdentityStore = (*AccountStore)(nil)

// AccountStoreOption configures an AccountStore
type AccountStoreOption func(*AccountStore)

func WithPasswordPolicy(policy PasswordPolicy) AccountStoreOption {
	return func(s *AccountStore) {
		s.policy = policy
	}
}

func WithPasswordCost(cost int) AccountStoreOption {
	return func(s *AccountStore) {
		s.passwordCost = cost
	}
}

func WithConfirmationTTL(ttl time.Duration) AccountStoreOption {
	return func(s *AccountStore) {
		if ttl > 0 {
			s.confirmationTTL = ttl
		}
	}
}

// WithDeterministicIDs derives account ids from the email address
func WithDeterministicIDs(enabled bool) AccountStoreOption {
	return func(s *AccountStore) {
		s.deterministicIDs = enabled
	}
}

func WithStoreClock(now func() time.Time) AccountStoreOption {
	return func(s *AccountStore) {
		if now != nil {
			s.now = now
		}
	}
}

func WithStoreLogger(logger Logger) AccountStoreOption {
	return func(s *AccountStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewAccountStore builds the store on top of repos. It panics when repos
// is missing a repository.
func NewAccountStore(repos RepositoryManager, opts ...AccountStoreOption) *AccountStore {
	if repos == nil {
		panic("Missing repository manager in account store...")
	}
	if err := repos.Validate(); err != nil {
		panic(err)
	}

	s := &AccountStore{
		repos:           repos,
		policy:          DefaultPasswordPolicy(),
		passwordCost:    DefaultPasswordCost,
		confirmationTTL: DefaultConfirmationTTL,
		now:             time.Now,
		logger:          defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// NewAccountStoreFromDB is a shortcut for NewAccountStore(NewRepositoryManager(db))
func NewAccountStoreFromDB(db *bun.DB, opts ...AccountStoreOption) *AccountStore {
	return NewAccountStore(NewRepositoryManager(db), opts...)
}

func (s *AccountStore) CreateAccount(ctx context.Context, profile AccountProfile, password string) (*Account, error) {
	account := &Account{
		Email:          strings.TrimSpace(profile.Email),
		PersonName:     profile.PersonName,
		PhoneNumber:    profile.PhoneNumber,
		EmailConfirmed: profile.EmailConfirmed,
	}

	if password != "" {
		if reasons := s.policy.Check(password); len(reasons) > 0 {
			return nil, NewCreationError(reasons...)
		}

		hash, err := HashPasswordWithCost(password, s.passwordCost)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}
		account.PasswordHash = hash
	}

	if s.deterministicIDs {
		if id, err := hashid.NewUUID(NormalizeEmail(account.Email)); err == nil {
			account.ID = id
		}
	}

	now := s.now().UTC()
	account.CreatedAt = &now
	account.UpdatedAt = &now
	if account.EmailConfirmed {
		account.ConfirmedAt = &now
	}

	err := s.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := s.repos.Accounts().GetByEmailTx(ctx, tx, account.Email); err == nil {
			return duplicateEmailError(account.Email)
		} else if !repository.IsRecordNotFound(err) {
			return err
		}

		created, err := s.repos.Accounts().CreateTx(ctx, tx, account)
		if err != nil {
			if isUniqueViolation(err) {
				return duplicateEmailError(account.Email)
			}
			return err
		}
		account = created
		return nil
	})

	if err != nil {
		if IsCreationError(err) {
			return nil, err
		}
		if isUniqueViolation(err) {
			return nil, duplicateEmailError(account.Email)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "account creation transaction failed")
	}

	return account, nil
}

func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	account, err := s.repos.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account")
	}
	return account, nil
}

// CheckPassword compares password with the account hash. A nil account or
// one without a local credential still pays a full bcrypt comparison so
// callers take the same time whether or not the account exists.
func (s *AccountStore) CheckPassword(_ context.Context, account *Account, password string) error {
	if account == nil || !account.HasPassword() {
		_ = ComparePasswordAndHash(password, s.timingHash())
		return ErrMismatchedHashAndPassword
	}
	return ComparePasswordAndHash(password, account.PasswordHash)
}

// timingHash is a throwaway hash at the store cost
func (s *AccountStore) timingHash() string {
	s.dummyOnce.Do(func() {
		h, err := HashPasswordWithCost(uuid.NewString(), s.passwordCost)
		if err != nil {
			s.logger.Error("failed to build timing hash: %v", err)
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// GenerateConfirmationToken issues a token bound to the account and its
// current email. Only the hash is stored.
func (s *AccountStore) GenerateConfirmationToken(ctx context.Context, account *Account) (string, error) {
	if account == nil {
		return "", ErrAccountNotFound
	}

	raw, hash, err := newConfirmationSecret()
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	record := &ConfirmationToken{
		ID:        uuid.New(),
		AccountID: account.ID,
		Email:     NormalizeEmail(account.Email),
		TokenHash: hash,
		ExpiresAt: now.Add(s.confirmationTTL),
		CreatedAt: &now,
	}

	if _, err := s.repos.Confirmations().Create(ctx, record); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store confirmation token")
	}

	return raw, nil
}

// ConfirmEmail consumes token for account. Unknown, expired, reused tokens and
// tokens issued for a different address all fail the same way.
func (s *AccountStore) ConfirmEmail(ctx context.Context, account *Account, token string) error {
	if account == nil || token == "" {
		return NewTokenError()
	}

	hash := hashConfirmationSecret(token)

	err := s.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := s.repos.Confirmations().GetByIdentifierTx(ctx, tx, hash)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return NewTokenError()
			}
			return err
		}

		current, err := s.repos.Accounts().GetByEmailTx(ctx, tx, account.Email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return NewTokenError()
			}
			return err
		}

		now := s.now().UTC()
		if record.AccountID != current.ID ||
			record.Email != current.NormalizedEmail ||
			!record.IsUsable(now) {
			return NewTokenError()
		}

		if err := checkTransition(current, AccountStateConfirmed); err != nil {
			return err
		}

		consumed, err := s.repos.Confirmations().ConsumeTx(ctx, tx, record.ID, now)
		if err != nil {
			return err
		}
		if !consumed {
			return NewTokenError()
		}

		if err := s.repos.Accounts().MarkConfirmedTx(ctx, tx, current.ID, now); err != nil {
			return err
		}

		account.EmailConfirmed = true
		account.ConfirmedAt = &now
		return nil
	})

	if err != nil {
		if IsTokenError(err) {
			return err
		}
		s.logger.Error("confirm email transaction failed: %v", err)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "confirm email transaction failed")
	}

	return nil
}

func (s *AccountStore) RecordSignIn(ctx context.Context, account *Account) error {
	if account == nil {
		return ErrAccountNotFound
	}
	now := s.now().UTC()
	if err := s.repos.Accounts().TrackSignIn(ctx, account.ID, now); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record sign in")
	}
	account.LoggedInAt = &now
	return nil
}

func duplicateEmailError(email string) error {
	return NewCreationError(fmt.Sprintf("Email '%s' is already taken.", email))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr pgdriver.Error
	if goerrors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}

	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
