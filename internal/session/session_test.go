package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/fedgate/internal/cache/memory"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(memory.New(time.Minute), time.Hour, time.Minute)
}

func TestStore_NewGetDelete(t *testing.T) {
	st := newTestStore(t)

	s, err := st.New()
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	require.False(t, s.Authenticated())

	got, err := st.Get(s.ID)
	require.NoError(t, err)
	require.Equal(t, s.ID, got.ID)

	st.Delete(s.ID)
	_, err = st.Get(s.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetUnknown(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Get("nope")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = st.Get("")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_LoginRequestIsSingleUse(t *testing.T) {
	st := newTestStore(t)
	s, err := st.New()
	require.NoError(t, err)

	require.NoError(t, st.BeginLogin(s, &LoginRequest{
		State:       "abc123",
		RedirectURI: "https://app.example/auth/callback/",
		Scopes:      []string{"federated-login"},
	}))

	got, err := st.Get(s.ID)
	require.NoError(t, err)
	req, err := st.ConsumeLogin(got)
	require.NoError(t, err)
	require.Equal(t, "abc123", req.State)
	require.Equal(t, "https://app.example/auth/callback/", req.RedirectURI)

	// The consumed request is gone, both in memory and in the store.
	_, err = st.ConsumeLogin(got)
	require.ErrorIs(t, err, ErrNotFound)
	reloaded, err := st.Get(s.ID)
	require.NoError(t, err)
	_, err = st.ConsumeLogin(reloaded)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SetAuthenticatedUserRotatesID(t *testing.T) {
	st := newTestStore(t)
	s, err := st.New()
	require.NoError(t, err)
	preLoginID := s.ID

	require.NoError(t, st.SetAuthenticatedUser(s, "u1", true))
	require.NotEqual(t, preLoginID, s.ID)

	// The pre-login id no longer resolves.
	_, err = st.Get(preLoginID)
	require.ErrorIs(t, err, ErrNotFound)

	got, err := st.Get(s.ID)
	require.NoError(t, err)
	require.True(t, got.Authenticated())
	require.Equal(t, "u1", got.UserID)
	require.True(t, got.PasswordlessEligible)
}
