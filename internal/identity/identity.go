// Package identity maps validated external identities onto local user
// accounts. An external account belongs to exactly one user and a user
// holds at most one external account; both bounds are enforced by the
// store, not by callers.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a user or external account does not exist.
	ErrNotFound = errors.New("identity: not found")
	// ErrAlreadyLinked is returned when a link would violate the
	// one-account-per-user or one-user-per-account bound.
	ErrAlreadyLinked = errors.New("identity: already linked")
	// ErrProvisioningDisabled is returned when an unknown identity arrives
	// and automatic account creation is turned off.
	ErrProvisioningDisabled = errors.New("identity: provisioning disabled")
)

// LocalUser is an application account.
type LocalUser struct {
	ID        string
	Email     string
	Name      string
	Active    bool
	Admin     bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExternalAccount links a provider subject to a local user. ExternalID is
// the provider's stable subject identifier, never the email.
type ExternalAccount struct {
	ID         string
	UserID     string
	ExternalID string
	Email      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Claims is the minimal identity payload the linker needs from a
// validated token.
type Claims struct {
	ExternalID string
	Email      string
	Name       string
}

// Store persists users and external account links.
//
// LinkAccount and CreateUserWithAccount are atomic: when two requests
// race to claim the same ExternalID, exactly one row is created and both
// calls return it, so the loser resolves to the winner's user. A
// conflicting link for a user that already holds an account fails with
// ErrAlreadyLinked.
type Store interface {
	GetUser(ctx context.Context, userID string) (*LocalUser, error)
	FindByExternalID(ctx context.Context, externalID string) (*ExternalAccount, error)
	FindByUserID(ctx context.Context, userID string) (*ExternalAccount, error)

	LinkAccount(ctx context.Context, acct *ExternalAccount) (*ExternalAccount, error)
	CreateUserWithAccount(ctx context.Context, user *LocalUser, acct *ExternalAccount) (*ExternalAccount, error)
}
