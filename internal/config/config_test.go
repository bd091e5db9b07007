package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	p := writeYAML(t, `
provider:
  issuer: https://login.example.com/tenant-1/v2.0
  client_id: cid
  client_secret: secret
`)
	c, err := Load(p)
	require.NoError(t, err)

	require.Equal(t, ":8080", c.Server.Addr)
	require.Equal(t, 24*time.Hour, c.Provider.DiscoveryTTL)
	require.Equal(t, ScopeSetExtended, c.Provider.RequiredScopeSet)
	require.Equal(t, "memory", c.Storage.Driver)
	require.Equal(t, "memory", c.Cache.Kind)
	require.Equal(t, "sid", c.Session.CookieName)
	require.Equal(t, 5*time.Minute, c.Session.LoginTTL)
	require.False(t, c.Provisioning.AutoProvision)
}

func TestLoad_EnvOverrides(t *testing.T) {
	p := writeYAML(t, `
provider:
  issuer: https://login.example.com/tenant-1/v2.0
  client_id: cid
  required_scope_set: extended
`)
	t.Setenv("PROVIDER_REQUIRED_SCOPE_SET", "minimal")
	t.Setenv("AUTO_PROVISION", "true")
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("PROVIDER_ALLOWED_REDIRECT_HOSTS", "app.example, other.example")

	c, err := Load(p)
	require.NoError(t, err)

	require.Equal(t, ScopeSetMinimal, c.Provider.RequiredScopeSet)
	require.True(t, c.Provisioning.AutoProvision)
	require.Equal(t, ":9090", c.Server.Addr)
	require.Equal(t, []string{"app.example", "other.example"}, c.Provider.AllowedRedirectHosts)
}

func TestLoad_RejectsUnknownScopeSet(t *testing.T) {
	p := writeYAML(t, `
provider:
  required_scope_set: everything
`)
	_, err := Load(p)
	require.Error(t, err)
}

func TestLoad_PostgresRequiresDSN(t *testing.T) {
	p := writeYAML(t, `
storage:
  driver: postgres
`)
	_, err := Load(p)
	require.Error(t, err)
}

func TestLoad_ProdForcesSecureCookies(t *testing.T) {
	p := writeYAML(t, `
app:
  env: prod
session:
  secure: false
`)
	c, err := Load(p)
	require.NoError(t, err)
	require.True(t, c.Session.Secure)
}
