package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the account model
type Account struct {
	bun.BaseModel   `bun:"table:accounts,alias:acc"`
	ID              uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email           string     `bun:"email,notnull" json:"email,omitempty"`
	NormalizedEmail string     `bun:"normalized_email,notnull,unique" json:"-"`
	PersonName      string     `bun:"person_name" json:"person_name,omitempty"`
	PhoneNumber     string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash    string     `bun:"password_hash" json:"-"`
	EmailConfirmed  bool       `bun:"email_confirmed,notnull" json:"email_confirmed"`
	ConfirmedAt     *time.Time `bun:"confirmed_at,nullzero" json:"confirmed_at,omitempty"`
	LoggedInAt      *time.Time `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`
	CreatedAt       *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt       *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasPassword reports whether the account carries a local credential.
// Accounts created through a federated provider do not.
func (a *Account) HasPassword() bool {
	return a != nil && a.PasswordHash != ""
}

// AccountProfile holds the non credential attributes used to create an account
type AccountProfile struct {
	Email          string
	PersonName     string
	PhoneNumber    string
	EmailConfirmed bool
}

// ConfirmationToken is a single use proof of email ownership. Only the
// SHA-256 of the raw token is stored.
type ConfirmationToken struct {
	bun.BaseModel `bun:"table:email_confirmations,alias:ecf"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     uuid.UUID  `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	Account       *Account   `bun:"rel:belongs-to,join:account_id=id" json:"account,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	TokenHash     string     `bun:"token_hash,notnull,unique" json:"-"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	UsedAt        *time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// IsUsable reports whether the token can still confirm an email at t
func (c *ConfirmationToken) IsUsable(t time.Time) bool {
	if c == nil || c.UsedAt != nil {
		return false
	}
	return t.Before(c.ExpiresAt)
}

// NormalizeEmail is the comparison form of an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
