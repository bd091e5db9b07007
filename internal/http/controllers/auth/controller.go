// Package auth exposes the login flow over HTTP: start, provider
// callback, session introspection, and logout.
package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	httperrors "github.com/dropDatabas3/fedgate/internal/http/errors"
	svc "github.com/dropDatabas3/fedgate/internal/http/services/auth"
	"github.com/dropDatabas3/fedgate/internal/observability/logger"
	"github.com/dropDatabas3/fedgate/internal/session"
)

// CookieConfig controls the session cookie the controller issues.
type CookieConfig struct {
	Name     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// ScopeSource is the slice of the OAuth client the controller needs to
// negotiate scopes.
type ScopeSource interface {
	SupportedScopes() []string
	ValidScopes(scopes []string) bool
}

// Controller wires the HTTP surface to the login backend.
type Controller struct {
	backend  *svc.Backend
	sessions *session.Store
	scopes   ScopeSource
	cookie   CookieConfig
}

func NewController(backend *svc.Backend, sessions *session.Store, scopes ScopeSource, cookie CookieConfig) *Controller {
	if cookie.Name == "" {
		cookie.Name = "sid"
	}
	if cookie.SameSite == 0 {
		// Lax is the floor: the provider posts the callback cross-site.
		cookie.SameSite = http.SameSiteLaxMode
	}
	return &Controller{backend: backend, sessions: sessions, scopes: scopes, cookie: cookie}
}

// Login handles GET /auth/login. It negotiates scopes, records the
// pending request, and redirects the browser to the provider.
func (c *Controller) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.Login"))

	scopes := c.scopes.SupportedScopes()
	if raw := strings.TrimSpace(r.URL.Query().Get("scope")); raw != "" {
		requested := strings.Fields(raw)
		if !c.scopes.ValidScopes(requested) {
			log.Warn("unsupported scope requested", logger.String("scope", raw))
			httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("unsupported scope"))
			return
		}
		scopes = requested
	}

	sess := c.sessionFromRequest(r)
	if sess == nil {
		var err error
		sess, err = c.sessions.New()
		if err != nil {
			log.Error("session create failed", logger.Err(err))
			httperrors.WriteError(w, httperrors.ErrInternalServerError)
			return
		}
	}

	next := sanitizeNext(r.URL.Query().Get("next"))
	authURL, err := c.backend.Start(ctx, sess, scopes, r.Host, next)
	if err != nil {
		log.Error("login start failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}

	c.setSessionCookie(w, sess.ID)
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback handles the provider response on /auth/callback/. The
// provider posts a form (response_mode=form_post); query parameters are
// accepted for GET as well.
func (c *Controller) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.Callback"))

	if err := r.ParseForm(); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("malformed form"))
		return
	}
	in := svc.CallbackInput{
		Code:             strings.TrimSpace(r.Form.Get("code")),
		State:            strings.TrimSpace(r.Form.Get("state")),
		Error:            strings.TrimSpace(r.Form.Get("error")),
		ErrorDescription: strings.TrimSpace(r.Form.Get("error_description")),
	}

	sess := c.sessionFromRequest(r)
	if sess == nil {
		log.Warn("callback without session")
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("login session expired"))
		return
	}

	res, err := c.backend.Callback(ctx, sess, in)
	if err != nil {
		// One generic message for every failure mode; the cause is
		// already in the logs.
		switch {
		case errors.Is(err, svc.ErrStateMismatch):
			httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid or expired login session"))
		default:
			httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("authentication failed"))
		}
		return
	}

	c.setSessionCookie(w, sess.ID)
	w.Header().Set("Cache-Control", "no-store")
	next := res.Next
	if next == "" {
		next = "/"
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// Me handles GET /auth/me and reports the authenticated session.
func (c *Controller) Me(w http.ResponseWriter, r *http.Request) {
	sess := c.sessionFromRequest(r)
	if sess == nil || !sess.Authenticated() {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":               sess.UserID,
		"passwordless_eligible": sess.PasswordlessEligible,
	})
}

// Logout handles POST /auth/logout: the session is dropped server-side
// and the cookie cleared.
func (c *Controller) Logout(w http.ResponseWriter, r *http.Request) {
	if sess := c.sessionFromRequest(r); sess != nil {
		c.sessions.Delete(sess.ID)
	}
	c.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) sessionFromRequest(r *http.Request) *session.Session {
	ck, err := r.Cookie(c.cookie.Name)
	if err != nil || ck.Value == "" {
		return nil
	}
	sess, err := c.sessions.Get(ck.Value)
	if err != nil {
		return nil
	}
	return sess
}

func (c *Controller) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookie.Name,
		Value:    id,
		Path:     "/",
		Domain:   c.cookie.Domain,
		Secure:   c.cookie.Secure,
		HttpOnly: true,
		SameSite: c.cookie.SameSite,
	})
}

func (c *Controller) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookie.Name,
		Value:    "",
		Path:     "/",
		Domain:   c.cookie.Domain,
		Secure:   c.cookie.Secure,
		HttpOnly: true,
		SameSite: c.cookie.SameSite,
		MaxAge:   -1,
	})
}

// sanitizeNext keeps post-login redirects inside the application.
// Anything absolute or protocol-relative is dropped.
func sanitizeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return ""
	}
	return next
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
