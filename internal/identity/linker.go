package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/fedgate/internal/metrics"
	"github.com/dropDatabas3/fedgate/internal/observability/logger"
)

// Linker resolves a validated external identity to a local user.
type Linker struct {
	store       Store
	provisioner Provisioner // nil disables automatic account creation
	log         *zap.Logger
}

// NewLinker wires a linker. Pass a nil provisioner to reject unknown
// identities instead of creating accounts for them.
func NewLinker(store Store, p Provisioner) *Linker {
	return &Linker{
		store:       store,
		provisioner: p,
		log:         logger.Named("identity.linker"),
	}
}

// Resolve returns the local user for a validated identity.
//
// Known identity: the linked user is returned, except when a different
// user is signed in, which is a link conflict. Unknown identity with a
// signed-in user: the identity is linked to that user, provided the user
// holds no other external account. Unknown identity with no signed-in
// user: a new account is provisioned, or the login is rejected when
// provisioning is off.
//
// Resolve is idempotent and race-safe: concurrent first logins for the
// same identity converge on a single user.
func (l *Linker) Resolve(ctx context.Context, claims Claims, sessionUserID string) (*LocalUser, error) {
	acct, err := l.store.FindByExternalID(ctx, claims.ExternalID)
	switch {
	case err == nil:
		if sessionUserID != "" && sessionUserID != acct.UserID {
			l.log.Warn("identity already linked to another user",
				logger.ExternalID(claims.ExternalID),
				logger.UserID(sessionUserID))
			return nil, ErrAlreadyLinked
		}
		return l.store.GetUser(ctx, acct.UserID)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	if sessionUserID != "" {
		return l.linkToSessionUser(ctx, claims, sessionUserID)
	}

	if l.provisioner == nil {
		l.log.Info("rejecting unknown identity, provisioning disabled",
			logger.ExternalID(claims.ExternalID))
		return nil, ErrProvisioningDisabled
	}
	return l.provisionUser(ctx, claims)
}

func (l *Linker) linkToSessionUser(ctx context.Context, claims Claims, userID string) (*LocalUser, error) {
	if _, err := l.store.FindByUserID(ctx, userID); err == nil {
		return nil, ErrAlreadyLinked
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	winner, err := l.store.LinkAccount(ctx, &ExternalAccount{
		ID:         uuid.NewString(),
		UserID:     userID,
		ExternalID: claims.ExternalID,
		Email:      claims.Email,
	})
	if err != nil {
		return nil, err
	}
	if winner.UserID != userID {
		// A concurrent first login claimed the identity between our
		// lookup and the insert. Converging on the winner is only right
		// for anonymous provisioning; here it would switch the signed-in
		// session to the winner's account.
		l.log.Warn("identity claimed concurrently by another user",
			logger.ExternalID(claims.ExternalID),
			logger.UserID(userID))
		return nil, ErrAlreadyLinked
	}
	l.log.Info("linked external identity",
		logger.ExternalID(claims.ExternalID),
		logger.UserID(winner.UserID))
	return l.store.GetUser(ctx, winner.UserID)
}

func (l *Linker) provisionUser(ctx context.Context, claims Claims) (*LocalUser, error) {
	user := l.provisioner.NewUser(claims)
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	winner, err := l.store.CreateUserWithAccount(ctx, user, &ExternalAccount{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		ExternalID: claims.ExternalID,
		Email:      claims.Email,
	})
	if err != nil {
		return nil, err
	}
	if winner.UserID == user.ID {
		metrics.UsersProvisioned.Inc()
		l.log.Info("provisioned user for external identity",
			logger.ExternalID(claims.ExternalID),
			logger.UserID(user.ID),
			logger.Bool("admin", user.Admin))
	}
	// A racing first login may have won; either way the account row
	// names the canonical user.
	return l.store.GetUser(ctx, winner.UserID)
}
