// Package auth implements the federated login flow: building the
// authorization request, and turning the provider callback into an
// authenticated session.
package auth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/dropDatabas3/fedgate/internal/identity"
	"github.com/dropDatabas3/fedgate/internal/metrics"
	"github.com/dropDatabas3/fedgate/internal/oauth/microsoft"
	"github.com/dropDatabas3/fedgate/internal/observability/logger"
	"github.com/dropDatabas3/fedgate/internal/session"
)

// Errors the flow surfaces to controllers. Anything beyond these two is
// an internal detail: the user sees a generic failure, the logs carry
// the cause.
var (
	ErrStateMismatch        = errors.New("auth: state mismatch")
	ErrAuthenticationFailed = errors.New("auth: authentication failed")
)

// Provider is the slice of the OAuth client the flow needs. The concrete
// implementation is *microsoft.Client.
type Provider interface {
	BuildAuthorizationURL(ctx context.Context, scopes []string, redirectHost string) (authURL, state string, err error)
	RedirectURI(redirectHost string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) (*microsoft.RawToken, error)
	ValidateIdentityToken(ctx context.Context, raw *microsoft.RawToken) (*microsoft.ValidatedIdentity, error)
	PasswordlessEligible(granted []string) bool
}

// Resolver maps a validated identity to a local user.
type Resolver interface {
	Resolve(ctx context.Context, claims identity.Claims, sessionUserID string) (*identity.LocalUser, error)
}

// Backend drives a login from first redirect to resolved user.
type Backend struct {
	provider Provider
	resolver Resolver
	sessions *session.Store
	log      *zap.Logger
}

func NewBackend(p Provider, r Resolver, sessions *session.Store) *Backend {
	return &Backend{
		provider: p,
		resolver: r,
		sessions: sessions,
		log:      logger.Named("auth.backend"),
	}
}

// Start builds the provider authorization URL and records the pending
// request on the session. The recorded state is what the callback will
// be checked against.
func (b *Backend) Start(ctx context.Context, sess *session.Session, scopes []string, redirectHost, next string) (string, error) {
	authURL, state, err := b.provider.BuildAuthorizationURL(ctx, scopes, redirectHost)
	if err != nil {
		return "", err
	}

	err = b.sessions.BeginLogin(sess, &session.LoginRequest{
		State:       state,
		RedirectURI: b.provider.RedirectURI(redirectHost),
		Scopes:      scopes,
		Next:        next,
	})
	if err != nil {
		return "", err
	}

	metrics.LoginsStarted.Inc()
	b.log.Debug("login started", logger.SessionID(sess.ID))
	return authURL, nil
}

// CallbackInput is what the provider posted back.
type CallbackInput struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Result of a successful callback.
type Result struct {
	User                 *identity.LocalUser
	PasswordlessEligible bool
	Next                 string
}

// Callback consumes the pending login request and walks the rest of the
// flow: state check, code exchange, token validation, user resolution.
// The stored request is consumed before anything else so that neither a
// replay nor a failure can reuse it.
func (b *Backend) Callback(ctx context.Context, sess *session.Session, in CallbackInput) (*Result, error) {
	req, err := b.sessions.ConsumeLogin(sess)
	if err != nil {
		metrics.LoginsCompleted.WithLabelValues(metrics.OutcomeStateMismatch).Inc()
		b.log.Warn("callback without pending login", logger.SessionID(sess.ID))
		return nil, ErrStateMismatch
	}

	if in.Error != "" {
		metrics.LoginsCompleted.WithLabelValues(metrics.OutcomeProviderError).Inc()
		b.log.Warn("provider returned error",
			logger.String("provider_error", in.Error),
			logger.String("provider_error_description", in.ErrorDescription))
		return nil, ErrAuthenticationFailed
	}

	// The state check happens before the code is touched: a valid code
	// with a wrong state is still a rejected callback.
	if in.State == "" || in.State != req.State {
		metrics.LoginsCompleted.WithLabelValues(metrics.OutcomeStateMismatch).Inc()
		b.log.Warn("state mismatch", logger.SessionID(sess.ID))
		return nil, ErrStateMismatch
	}
	if in.Code == "" {
		metrics.LoginsCompleted.WithLabelValues(metrics.OutcomeProviderError).Inc()
		return nil, ErrAuthenticationFailed
	}

	raw, err := b.provider.ExchangeCode(ctx, in.Code, req.RedirectURI)
	if err != nil {
		metrics.LoginsCompleted.WithLabelValues(metrics.OutcomeExchangeFailed).Inc()
		b.log.Warn("code exchange failed", logger.Err(err))
		return nil, ErrAuthenticationFailed
	}

	ident, err := b.provider.ValidateIdentityToken(ctx, raw)
	if err != nil {
		metrics.LoginsCompleted.WithLabelValues(metrics.OutcomeInvalidToken).Inc()
		b.log.Warn("identity token rejected", logger.Err(err))
		return nil, ErrAuthenticationFailed
	}

	user, err := b.resolver.Resolve(ctx, identity.Claims{
		ExternalID: ident.ExternalID,
		Email:      ident.Email,
	}, sess.UserID)
	if err != nil {
		metrics.LoginsCompleted.WithLabelValues(metrics.OutcomeLinkRejected).Inc()
		b.log.Warn("identity resolution failed",
			logger.ExternalID(ident.ExternalID),
			logger.Err(err))
		return nil, ErrAuthenticationFailed
	}
	if !user.Active {
		metrics.LoginsCompleted.WithLabelValues(metrics.OutcomeInactiveUser).Inc()
		b.log.Info("login rejected for inactive user", logger.UserID(user.ID))
		return nil, ErrAuthenticationFailed
	}

	passwordless := b.provider.PasswordlessEligible(ident.GrantedScopes)
	if err := b.sessions.SetAuthenticatedUser(sess, user.ID, passwordless); err != nil {
		return nil, err
	}

	metrics.LoginsCompleted.WithLabelValues(metrics.OutcomeSuccess).Inc()
	b.log.Info("login completed",
		logger.UserID(user.ID),
		logger.SessionID(sess.ID),
		logger.Bool("passwordless", passwordless))
	return &Result{User: user, PasswordlessEligible: passwordless, Next: req.Next}, nil
}
