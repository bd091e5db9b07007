package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/fedgate/internal/cache/memory"
	"github.com/dropDatabas3/fedgate/internal/identity"
	"github.com/dropDatabas3/fedgate/internal/oauth/microsoft"
	"github.com/dropDatabas3/fedgate/internal/session"
)

type fakeProvider struct {
	state string

	exchangeErr   error
	validateErr   error
	gotCode       string
	gotRedirect   string
	identity      *microsoft.ValidatedIdentity
	passwordless  bool
	exchangeCalls int
}

func (f *fakeProvider) BuildAuthorizationURL(_ context.Context, scopes []string, host string) (string, string, error) {
	return "https://idp.example/authorize?state=" + f.state, f.state, nil
}

func (f *fakeProvider) RedirectURI(host string) string {
	return "https://" + host + microsoft.CallbackPath
}

func (f *fakeProvider) ExchangeCode(_ context.Context, code, redirectURI string) (*microsoft.RawToken, error) {
	f.exchangeCalls++
	f.gotCode = code
	f.gotRedirect = redirectURI
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &microsoft.RawToken{IDToken: "tok"}, nil
}

func (f *fakeProvider) ValidateIdentityToken(_ context.Context, _ *microsoft.RawToken) (*microsoft.ValidatedIdentity, error) {
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	return f.identity, nil
}

func (f *fakeProvider) PasswordlessEligible(_ []string) bool { return f.passwordless }

func newBackendEnv(t *testing.T, p *fakeProvider, prov identity.Provisioner) (*Backend, *session.Store, *identity.MemoryStore) {
	t.Helper()
	users := identity.NewMemoryStore()
	sessions := session.NewStore(memory.New(time.Minute), time.Hour, time.Minute)
	b := NewBackend(p, identity.NewLinker(users, prov), sessions)
	return b, sessions, users
}

func defaultProvisioner(t *testing.T) identity.Provisioner {
	t.Helper()
	p, err := identity.NewProvisioner(identity.ProvisionerDefault)
	require.NoError(t, err)
	return p
}

func startLogin(t *testing.T, b *Backend, st *session.Store) *session.Session {
	t.Helper()
	sess, err := st.New()
	require.NoError(t, err)
	_, err = b.Start(context.Background(), sess, microsoft.ScopesMinimal, "app.example", "/home")
	require.NoError(t, err)
	return sess
}

func TestCallback_HappyPath(t *testing.T) {
	p := &fakeProvider{
		state:        "abc123",
		passwordless: true,
		identity: &microsoft.ValidatedIdentity{
			ExternalID:    "ext-1",
			Email:         "u@example.com",
			GrantedScopes: []string{"federated-login"},
		},
	}
	b, sessions, _ := newBackendEnv(t, p, defaultProvisioner(t))
	sess := startLogin(t, b, sessions)

	res, err := b.Callback(context.Background(), sess, CallbackInput{Code: "the-code", State: "abc123"})
	require.NoError(t, err)
	require.NotNil(t, res.User)
	require.True(t, res.PasswordlessEligible)
	require.Equal(t, "/home", res.Next)

	require.Equal(t, "the-code", p.gotCode)
	require.Equal(t, "https://app.example/auth/callback/", p.gotRedirect)

	got, err := sessions.Get(sess.ID)
	require.NoError(t, err)
	require.True(t, got.Authenticated())
	require.Equal(t, res.User.ID, got.UserID)
}

func TestCallback_StateMismatchDespiteValidCode(t *testing.T) {
	p := &fakeProvider{state: "abc123", identity: &microsoft.ValidatedIdentity{ExternalID: "x"}}
	b, sessions, _ := newBackendEnv(t, p, defaultProvisioner(t))
	sess := startLogin(t, b, sessions)

	_, err := b.Callback(context.Background(), sess, CallbackInput{Code: "valid-code", State: "forged"})
	require.ErrorIs(t, err, ErrStateMismatch)
	// The code is never exchanged.
	require.Zero(t, p.exchangeCalls)
}

func TestCallback_NoPendingLogin(t *testing.T) {
	p := &fakeProvider{state: "abc123"}
	b, sessions, _ := newBackendEnv(t, p, defaultProvisioner(t))
	sess, err := sessions.New()
	require.NoError(t, err)

	_, err = b.Callback(context.Background(), sess, CallbackInput{Code: "c", State: "abc123"})
	require.ErrorIs(t, err, ErrStateMismatch)
}

func TestCallback_StateIsSingleUse(t *testing.T) {
	p := &fakeProvider{
		state:    "abc123",
		identity: &microsoft.ValidatedIdentity{ExternalID: "ext-1", Email: "u@example.com"},
	}
	b, sessions, _ := newBackendEnv(t, p, defaultProvisioner(t))
	sess := startLogin(t, b, sessions)

	in := CallbackInput{Code: "c", State: "abc123"}
	_, err := b.Callback(context.Background(), sess, in)
	require.NoError(t, err)

	// Replaying the same callback finds no pending request.
	_, err = b.Callback(context.Background(), sess, in)
	require.ErrorIs(t, err, ErrStateMismatch)
}

func TestCallback_ProviderErrorShortCircuits(t *testing.T) {
	p := &fakeProvider{state: "abc123"}
	b, sessions, _ := newBackendEnv(t, p, defaultProvisioner(t))
	sess := startLogin(t, b, sessions)

	_, err := b.Callback(context.Background(), sess, CallbackInput{
		Error:            "access_denied",
		ErrorDescription: "user cancelled",
		State:            "abc123",
	})
	require.ErrorIs(t, err, ErrAuthenticationFailed)
	require.Zero(t, p.exchangeCalls)
}

func TestCallback_ExchangeFailureIsGeneric(t *testing.T) {
	p := &fakeProvider{state: "abc123", exchangeErr: microsoft.ErrTokenExchange}
	b, sessions, _ := newBackendEnv(t, p, defaultProvisioner(t))
	sess := startLogin(t, b, sessions)

	_, err := b.Callback(context.Background(), sess, CallbackInput{Code: "c", State: "abc123"})
	require.ErrorIs(t, err, ErrAuthenticationFailed)
	require.False(t, errors.Is(err, microsoft.ErrTokenExchange))
}

func TestCallback_InvalidTokenIsGeneric(t *testing.T) {
	p := &fakeProvider{state: "abc123", validateErr: microsoft.ErrTokenValidation}
	b, sessions, _ := newBackendEnv(t, p, defaultProvisioner(t))
	sess := startLogin(t, b, sessions)

	_, err := b.Callback(context.Background(), sess, CallbackInput{Code: "c", State: "abc123"})
	require.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestCallback_ProvisioningDisabledIsGeneric(t *testing.T) {
	p := &fakeProvider{
		state:    "abc123",
		identity: &microsoft.ValidatedIdentity{ExternalID: "unknown", Email: "u@example.com"},
	}
	b, sessions, _ := newBackendEnv(t, p, nil)
	sess := startLogin(t, b, sessions)

	_, err := b.Callback(context.Background(), sess, CallbackInput{Code: "c", State: "abc123"})
	require.ErrorIs(t, err, ErrAuthenticationFailed)
	require.False(t, errors.Is(err, identity.ErrProvisioningDisabled))
}

func TestCallback_InactiveUserRejected(t *testing.T) {
	p, err := identity.NewProvisioner(identity.ProvisionerInactiveAdmin)
	require.NoError(t, err)

	fp := &fakeProvider{
		state:    "abc123",
		identity: &microsoft.ValidatedIdentity{ExternalID: "ext-admin", Email: "ops@example.com"},
	}
	b, sessions, users := newBackendEnv(t, fp, p)
	sess := startLogin(t, b, sessions)

	_, err = b.Callback(context.Background(), sess, CallbackInput{Code: "c", State: "abc123"})
	require.ErrorIs(t, err, ErrAuthenticationFailed)

	// The account exists but stays deactivated until an operator flips it.
	acct, err := users.FindByExternalID(context.Background(), "ext-admin")
	require.NoError(t, err)
	u, err := users.GetUser(context.Background(), acct.UserID)
	require.NoError(t, err)
	require.False(t, u.Active)
	require.True(t, u.Admin)
}

func TestCallback_LinkWhileSignedIn(t *testing.T) {
	fp := &fakeProvider{
		state:    "abc123",
		identity: &microsoft.ValidatedIdentity{ExternalID: "ext-1", Email: "u1@example.com"},
	}
	b, sessions, users := newBackendEnv(t, fp, nil)
	require.NoError(t, users.PutUser(context.Background(), &identity.LocalUser{ID: "u1", Active: true}))

	sess, err := sessions.New()
	require.NoError(t, err)
	require.NoError(t, sessions.SetAuthenticatedUser(sess, "u1", false))
	_, err = b.Start(context.Background(), sess, microsoft.ScopesMinimal, "app.example", "")
	require.NoError(t, err)

	res, err := b.Callback(context.Background(), sess, CallbackInput{Code: "c", State: "abc123"})
	require.NoError(t, err)
	require.Equal(t, "u1", res.User.ID)

	acct, err := users.FindByExternalID(context.Background(), "ext-1")
	require.NoError(t, err)
	require.Equal(t, "u1", acct.UserID)
}
