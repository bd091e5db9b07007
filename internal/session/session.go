// Package session keeps browser sessions in the shared cache. A session
// starts anonymous, briefly carries an in-flight login request, and holds
// the authenticated user id after a successful callback.
package session

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dropDatabas3/fedgate/internal/cache"
	"github.com/dropDatabas3/fedgate/internal/security/token"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session: not found")

const keyPrefix = "sess:"

// LoginRequest is the state persisted between building the authorization
// URL and receiving the provider callback. State is single-use: the
// callback consumes the whole request before any validation happens.
type LoginRequest struct {
	State       string    `json:"state"`
	RedirectURI string    `json:"redirect_uri"`
	Scopes      []string  `json:"scopes"`
	Next        string    `json:"next,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Session is the unit stored per browser.
type Session struct {
	ID                   string        `json:"-"`
	UserID               string        `json:"user_id,omitempty"`
	PasswordlessEligible bool          `json:"passwordless_eligible,omitempty"`
	Login                *LoginRequest `json:"login,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
}

// Authenticated reports whether the session carries a resolved user.
func (s *Session) Authenticated() bool { return s.UserID != "" }

// Store persists sessions with two lifetimes: a short one while the
// session only holds a pending login, the full one once authenticated.
type Store struct {
	cache    cache.Cache
	ttl      time.Duration
	loginTTL time.Duration
}

func NewStore(c cache.Cache, ttl, loginTTL time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if loginTTL <= 0 {
		loginTTL = 5 * time.Minute
	}
	return &Store{cache: c, ttl: ttl, loginTTL: loginTTL}
}

// New creates an empty session with a fresh random id.
func (st *Store) New() (*Session, error) {
	id, err := token.GenerateOpaque(32)
	if err != nil {
		return nil, err
	}
	s := &Session{ID: id, CreatedAt: time.Now()}
	if err := st.Save(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (st *Store) Get(id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	raw, ok := st.cache.Get(keyPrefix + id)
	if !ok {
		return nil, ErrNotFound
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		// Corrupt entry, treat as absent.
		st.cache.Delete(keyPrefix + id)
		return nil, ErrNotFound
	}
	s.ID = id
	return &s, nil
}

func (st *Store) Save(s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ttl := st.ttl
	if !s.Authenticated() {
		ttl = st.loginTTL
	}
	st.cache.Set(keyPrefix+s.ID, raw, ttl)
	return nil
}

func (st *Store) Delete(id string) {
	st.cache.Delete(keyPrefix + id)
}

// BeginLogin attaches a pending login request to the session.
func (st *Store) BeginLogin(s *Session, req *LoginRequest) error {
	req.CreatedAt = time.Now()
	s.Login = req
	return st.Save(s)
}

// ConsumeLogin removes and returns the pending login request. The removal
// is persisted before the request is handed back so a replayed callback
// finds nothing.
func (st *Store) ConsumeLogin(s *Session) (*LoginRequest, error) {
	req := s.Login
	if req == nil {
		return nil, ErrNotFound
	}
	s.Login = nil
	if err := st.Save(s); err != nil {
		return nil, err
	}
	return req, nil
}

// SetAuthenticatedUser marks the session as belonging to userID and
// extends it to the full session lifetime. The session id is rotated:
// the pre-login id stops resolving, so an id planted before
// authentication cannot ride into the authenticated session.
func (st *Store) SetAuthenticatedUser(s *Session, userID string, passwordless bool) error {
	id, err := token.GenerateOpaque(32)
	if err != nil {
		return err
	}
	st.cache.Delete(keyPrefix + s.ID)
	s.ID = id
	s.UserID = userID
	s.PasswordlessEligible = passwordless
	return st.Save(s)
}
