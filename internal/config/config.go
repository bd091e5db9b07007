package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Scope set names accepted for provider.required_scope_set.
const (
	ScopeSetMinimal  = "minimal"
	ScopeSetExtended = "extended"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Provider struct {
		Issuer       string        `yaml:"issuer"`
		ClientID     string        `yaml:"client_id"`
		ClientSecret string        `yaml:"client_secret"` // plain or secretbox-sealed (nonce|ciphertext)
		DiscoveryTTL time.Duration `yaml:"discovery_ttl"`
		// minimal => federated-login only; extended => adds openid/email/profile
		RequiredScopeSet     string   `yaml:"required_scope_set"`
		AllowedRedirectHosts []string `yaml:"allowed_redirect_hosts"`
	} `yaml:"provider"`

	Provisioning struct {
		AutoProvision           bool `yaml:"auto_provision"`
		RegisterInactiveAsAdmin bool `yaml:"register_inactive_as_admin"`
	} `yaml:"provisioning"`

	Storage struct {
		Driver   string `yaml:"driver"` // postgres | memory
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns int `yaml:"max_conns"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL time.Duration `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Session struct {
		CookieName string        `yaml:"cookie_name"`
		Domain     string        `yaml:"domain"`
		SameSite   string        `yaml:"samesite"`
		Secure     bool          `yaml:"secure"`
		TTL        time.Duration `yaml:"ttl"`
		// LoginTTL bounds how long an in-flight authorization request may
		// wait for its callback.
		LoginTTL time.Duration `yaml:"login_ttl"`
	} `yaml:"session"`
}

// Load reads the YAML file at path, applies defaults and env overrides,
// and validates the result.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Provider.DiscoveryTTL == 0 {
		c.Provider.DiscoveryTTL = 24 * time.Hour
	}
	if c.Provider.RequiredScopeSet == "" {
		c.Provider.RequiredScopeSet = ScopeSetExtended
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Postgres.MaxConns == 0 {
		c.Storage.Postgres.MaxConns = 10
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == 0 {
		c.Cache.Memory.DefaultTTL = 2 * time.Minute
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "fedgate:"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "sid"
	}
	if c.Session.SameSite == "" {
		c.Session.SameSite = "Lax"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 12 * time.Hour
	}
	if c.Session.LoginTTL == 0 {
		c.Session.LoginTTL = 5 * time.Minute
	}

	c.applyEnvOverrides()

	// prod hardening: never ship insecure session cookies
	if strings.EqualFold(c.App.Env, "prod") {
		c.Session.Secure = true
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the values the service cannot run without.
func (c *Config) Validate() error {
	switch c.Provider.RequiredScopeSet {
	case ScopeSetMinimal, ScopeSetExtended:
	default:
		return fmt.Errorf("provider.required_scope_set: unknown set %q", c.Provider.RequiredScopeSet)
	}
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && strings.TrimSpace(c.Storage.DSN) == "" {
		return fmt.Errorf("storage.dsn required for postgres driver")
	}
	return nil
}

// ---- env helpers ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		if strings.TrimSpace(s) == "" {
			return []string{}, true
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides lets the environment win over config.yaml.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	// PROVIDER
	if v, ok := getEnvStr("PROVIDER_ISSUER"); ok {
		c.Provider.Issuer = v
	}
	if v, ok := getEnvStr("PROVIDER_CLIENT_ID"); ok {
		c.Provider.ClientID = v
	}
	if v, ok := getEnvStr("PROVIDER_CLIENT_SECRET"); ok {
		c.Provider.ClientSecret = v
	}
	if v, ok := getEnvDur("PROVIDER_DISCOVERY_TTL"); ok {
		c.Provider.DiscoveryTTL = v
	}
	if v, ok := getEnvStr("PROVIDER_REQUIRED_SCOPE_SET"); ok {
		c.Provider.RequiredScopeSet = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := getEnvCSV("PROVIDER_ALLOWED_REDIRECT_HOSTS"); ok {
		c.Provider.AllowedRedirectHosts = v
	}

	// PROVISIONING
	if v, ok := getEnvBool("AUTO_PROVISION"); ok {
		c.Provisioning.AutoProvision = v
	}
	if v, ok := getEnvBool("REGISTER_INACTIVE_AS_ADMIN"); ok {
		c.Provisioning.RegisterInactiveAsAdmin = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_CONNS"); ok {
		c.Storage.Postgres.MaxConns = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}
	if v, ok := getEnvDur("CACHE_MEMORY_DEFAULT_TTL"); ok {
		c.Cache.Memory.DefaultTTL = v
	}

	// SESSION
	if v, ok := getEnvStr("SESSION_COOKIE_NAME"); ok {
		c.Session.CookieName = v
	}
	if v, ok := getEnvStr("SESSION_DOMAIN"); ok {
		c.Session.Domain = v
	}
	if v, ok := getEnvStr("SESSION_SAMESITE"); ok {
		c.Session.SameSite = v
	}
	if v, ok := getEnvBool("SESSION_SECURE"); ok {
		c.Session.Secure = v
	}
	if v, ok := getEnvDur("SESSION_TTL"); ok {
		c.Session.TTL = v
	}
	if v, ok := getEnvDur("SESSION_LOGIN_TTL"); ok {
		c.Session.LoginTTL = v
	}
}
