package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const confirmationTokenBytes = 32

// ConfirmationTokens stores email confirmation tokens by hash
type ConfirmationTokens interface {
	repository.Repository[*ConfirmationToken]

	// ConsumeTx marks the token used, only if nobody else did first.
	ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error)
}

type confirmationTokens struct {
	repository.Repository[*ConfirmationToken]
	db *bun.DB
}

func NewConfirmationTokensRepository(db *bun.DB) ConfirmationTokens {
	handlers := repository.ModelHandlers[*ConfirmationToken]{
		NewRecord: func() *ConfirmationToken {
			return &ConfirmationToken{}
		},
		GetID: func(record *ConfirmationToken) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *ConfirmationToken, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "token_hash"
		},
	}

	return &confirmationTokens{
		Repository: repository.NewRepository(db, handlers),
		db:         db,
	}
}

func (c *confirmationTokens) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*ConfirmationToken)(nil)).
		Set("used_at = ?", at).
		Where("id = ?", id).
		Where("used_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

// newConfirmationSecret returns the raw token handed to the user and the
// hash that is persisted.
func newConfirmationSecret() (string, string, error) {
	buf := make([]byte, confirmationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate confirmation token")
	}

	raw := base64.RawURLEncoding.EncodeToString(buf)
	return raw, hashConfirmationSecret(raw), nil
}

func hashConfirmationSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
