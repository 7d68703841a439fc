package models

import (
	"time"

	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
)

const DefaultRole = "user"

// Account is a usable user account. Accounts are only created by approving
// a registration request.
//
// Invariants:
//   - PasswordHash is copied verbatim from the approved request
//   - a fresh account has zero storage, onboarding pending and role "user"
type Account struct {
	ID           id.UserID
	Username     string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	PrivateKey   string
	StorageQuota int64
	StorageUsed  int64
	Onboarding   bool
}

// NewAccount builds a freshly approved account.
func NewAccount(accountID id.UserID, username, email, passwordHash, privateKey string, now time.Time) (*Account, error) {
	if accountID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "account id cannot be nil")
	}
	if username == "" || passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "username and password hash are required")
	}
	if privateKey == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "private key is required")
	}
	return &Account{
		ID:           accountID,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         DefaultRole,
		CreatedAt:    now,
		PrivateKey:   privateKey,
		StorageQuota: 0,
		StorageUsed:  0,
		Onboarding:   true,
	}, nil
}
