package microsoft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/fedgate/internal/security/secretbox"
	"github.com/dropDatabas3/fedgate/internal/security/token"
)

// Errors surfaced by the client. Callers match with errors.Is; the raw
// network or parse detail rides along wrapped.
var (
	ErrInvalidScope    = errors.New("requested scope not supported")
	ErrRedirectHost    = errors.New("redirect host not allowed")
	ErrTokenExchange   = errors.New("code exchange failed")
	ErrTokenValidation = errors.New("identity token validation failed")
)

// CallbackPath is the fixed path the provider redirects back to. The host
// part is always derived from the currently served site, never from
// caller-supplied input.
const CallbackPath = "/auth/callback/"

// Scope sets supported by the application. Minimal is just the federated
// login grant; extended adds the identity claims that make a login
// eligible for passwordless treatment.
var (
	ScopesMinimal  = []string{"federated-login"}
	ScopesExtended = []string{"federated-login", "openid", "email", "profile"}
)

// RawToken is the provider's token endpoint response.
type RawToken struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// ValidatedIdentity is produced only after the identity token passed
// signature, issuer, audience, and expiry checks.
type ValidatedIdentity struct {
	ExternalID    string
	Email         string
	GrantedScopes []string
	ExpiresAt     time.Time
}

// Config for the federation client.
type Config struct {
	ClientID string
	// ClientSecret may be plain or secretbox-sealed (nonce|ciphertext).
	ClientSecret string
	// ScopeSet is the full set of scopes the application supports
	// (ScopesMinimal or ScopesExtended).
	ScopeSet []string
	// AllowedRedirectHosts restricts which hosts an authorization request
	// may be built for. Empty means any host the service is reached on.
	AllowedRedirectHosts []string
}

// Client builds authorization requests, exchanges codes, and validates
// identity tokens against the provider described by the metadata cache.
type Client struct {
	clientID     string
	clientSecret string
	scopeSet     map[string]struct{}
	scopeList    []string
	allowedHosts map[string]struct{}

	metadata *MetadataCache
	http     *http.Client

	jwksMu sync.RWMutex
	jwks   keyfunc.Keyfunc
}

// NewClient unseals the client secret if needed and wires the metadata
// cache. A sealed secret that cannot be opened is a hard startup error.
func NewClient(cfg Config, metadata *MetadataCache) (*Client, error) {
	secret := cfg.ClientSecret
	if secretbox.IsSealed(secret) {
		plain, err := secretbox.Decrypt(secret)
		if err != nil {
			return nil, fmt.Errorf("unseal client secret: %w", err)
		}
		secret = plain
	}

	scopes := cfg.ScopeSet
	if len(scopes) == 0 {
		scopes = ScopesExtended
	}
	set := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}

	var hosts map[string]struct{}
	if len(cfg.AllowedRedirectHosts) > 0 {
		hosts = make(map[string]struct{}, len(cfg.AllowedRedirectHosts))
		for _, h := range cfg.AllowedRedirectHosts {
			hosts[strings.ToLower(h)] = struct{}{}
		}
	}

	return &Client{
		clientID:     cfg.ClientID,
		clientSecret: secret,
		scopeSet:     set,
		scopeList:    scopes,
		allowedHosts: hosts,
		metadata:     metadata,
		http:         &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// ValidScopes reports whether every requested scope is in the supported
// set. Empty input is trivially valid.
func (c *Client) ValidScopes(scopes []string) bool {
	for _, s := range scopes {
		if _, ok := c.scopeSet[s]; !ok {
			return false
		}
	}
	return true
}

// SupportedScopes returns the configured scope set.
func (c *Client) SupportedScopes() []string {
	out := make([]string, len(c.scopeList))
	copy(out, c.scopeList)
	return out
}

// PasswordlessEligible reports whether a grant covers the full configured
// scope set. A partial grant is lower-trust: the host framework may demand
// a fallback credential before treating the login as authenticated.
func (c *Client) PasswordlessEligible(granted []string) bool {
	have := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		have[s] = struct{}{}
	}
	for s := range c.scopeSet {
		if _, ok := have[s]; !ok {
			return false
		}
	}
	return true
}

// RedirectURI derives the callback URI from the currently served host.
func (c *Client) RedirectURI(redirectHost string) string {
	return "https://" + redirectHost + CallbackPath
}

// BuildAuthorizationURL validates scopes and host, generates a fresh
// random state, and returns the provider authorization URL plus the state.
func (c *Client) BuildAuthorizationURL(ctx context.Context, scopes []string, redirectHost string) (string, string, error) {
	state, err := token.GenerateOpaque(32)
	if err != nil {
		return "", "", err
	}
	u, err := c.AuthorizationURL(ctx, scopes, redirectHost, state)
	if err != nil {
		return "", "", err
	}
	return u, state, nil
}

// AuthorizationURL is the deterministic form of BuildAuthorizationURL for
// a caller-provided state.
func (c *Client) AuthorizationURL(ctx context.Context, scopes []string, redirectHost, state string) (string, error) {
	if !c.ValidScopes(scopes) {
		return "", fmt.Errorf("%w: %v", ErrInvalidScope, scopes)
	}
	if c.allowedHosts != nil {
		if _, ok := c.allowedHosts[strings.ToLower(redirectHost)]; !ok {
			return "", fmt.Errorf("%w: %s", ErrRedirectHost, redirectHost)
		}
	}

	meta, err := c.metadata.Metadata(ctx)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(meta.AuthorizationEndpoint)
	if err != nil {
		return "", fmt.Errorf("%w: bad authorization_endpoint: %v", ErrDiscovery, err)
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", c.clientID)
	q.Set("redirect_uri", c.RedirectURI(redirectHost))
	q.Set("scope", strings.Join(scopes, " "))
	q.Set("state", state)
	q.Set("response_mode", "form_post")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExchangeCode posts the authorization code to the token endpoint. The
// redirect URI must be the exact one the authorization request carried.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*RawToken, error) {
	meta, err := c.metadata.Metadata(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, meta.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var body struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, fmt.Errorf("%w: http %d: %s %s", ErrTokenExchange, resp.StatusCode, body.Error, body.ErrorDescription)
	}

	var tr RawToken
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrTokenExchange, err)
	}
	if tr.IDToken == "" {
		return nil, fmt.Errorf("%w: response missing id_token", ErrTokenExchange)
	}
	return &tr, nil
}

// ValidateIdentityToken verifies the identity token's signature against
// the provider's published keys and checks issuer, audience, and expiry.
// Any failure is a hard rejection.
func (c *Client) ValidateIdentityToken(ctx context.Context, raw *RawToken) (*ValidatedIdentity, error) {
	if raw == nil || raw.IDToken == "" {
		return nil, fmt.Errorf("%w: missing id_token", ErrTokenValidation)
	}

	meta, err := c.metadata.Metadata(ctx)
	if err != nil {
		return nil, err
	}

	kf, err := c.keyfunc(ctx, meta.JWKSURI)
	if err != nil {
		return nil, fmt.Errorf("%w: jwks: %v", ErrTokenValidation, err)
	}

	tok, err := jwtv5.Parse(raw.IDToken, kf.Keyfunc,
		jwtv5.WithValidMethods([]string{"RS256", "RS384", "RS512", "PS256", "ES256"}),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithLeeway(30*time.Second),
	)
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrTokenValidation, err)
	}

	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrTokenValidation)
	}

	iss, _ := claims["iss"].(string)
	if iss != meta.Issuer {
		return nil, fmt.Errorf("%w: issuer %q", ErrTokenValidation, iss)
	}
	if !audienceMatches(claims["aud"], c.clientID) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrTokenValidation)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenValidation)
	}

	var expiresAt time.Time
	if expf, ok := claims["exp"].(float64); ok {
		expiresAt = time.Unix(int64(expf), 0)
	}

	email, _ := claims["email"].(string)
	if email == "" {
		// Azure-style tokens often carry the mail in preferred_username.
		email, _ = claims["preferred_username"].(string)
	}

	return &ValidatedIdentity{
		ExternalID:    sub,
		Email:         email,
		GrantedScopes: grantedScopes(claims, raw.Scope),
		ExpiresAt:     expiresAt,
	}, nil
}

// keyfunc lazily builds the JWKS keyfunc for the provider's key set and
// reuses it afterwards; keyfunc refreshes keys internally.
func (c *Client) keyfunc(ctx context.Context, jwksURI string) (keyfunc.Keyfunc, error) {
	c.jwksMu.RLock()
	kf := c.jwks
	c.jwksMu.RUnlock()
	if kf != nil {
		return kf, nil
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURI})
	if err != nil {
		return nil, err
	}

	c.jwksMu.Lock()
	if c.jwks == nil {
		c.jwks = kf
	}
	kf = c.jwks
	c.jwksMu.Unlock()
	return kf, nil
}

func audienceMatches(aud any, clientID string) bool {
	switch a := aud.(type) {
	case string:
		return a == clientID
	case []any:
		for _, v := range a {
			if s, _ := v.(string); s == clientID {
				return true
			}
		}
	}
	return false
}

// grantedScopes prefers the token's scp claim, falling back to the token
// response scope field.
func grantedScopes(claims jwtv5.MapClaims, responseScope string) []string {
	if s, _ := claims["scp"].(string); s != "" {
		return strings.Fields(s)
	}
	if s, _ := claims["scope"].(string); s != "" {
		return strings.Fields(s)
	}
	return strings.Fields(responseScope)
}
