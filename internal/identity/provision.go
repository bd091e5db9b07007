package identity

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Provisioner turns validated claims into a new local user. Which
// provisioner runs is fixed at startup from configuration; nothing in
// the request path can select one.
type Provisioner interface {
	NewUser(claims Claims) *LocalUser
}

// ProvisionerFactory constructs a provisioner.
type ProvisionerFactory func() Provisioner

// Provisioner names selectable from configuration.
const (
	ProvisionerDefault       = "default"
	ProvisionerInactiveAdmin = "inactive-admin"
)

var (
	provMu       sync.RWMutex
	provisioners = map[string]ProvisionerFactory{}
)

// RegisterProvisioner makes a factory selectable by name. Duplicate
// registration panics; it is always a wiring bug.
func RegisterProvisioner(name string, f ProvisionerFactory) {
	provMu.Lock()
	defer provMu.Unlock()
	if _, dup := provisioners[name]; dup {
		panic(fmt.Sprintf("identity: provisioner %q registered twice", name))
	}
	provisioners[name] = f
}

// NewProvisioner resolves a registered factory by name.
func NewProvisioner(name string) (Provisioner, error) {
	provMu.RLock()
	f, ok := provisioners[name]
	provMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("identity: unknown provisioner %q (have %v)", name, registeredProvisioners())
	}
	return f(), nil
}

func registeredProvisioners() []string {
	names := make([]string, 0, len(provisioners))
	for n := range provisioners {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func init() {
	// The default provisioner creates a plain active account. The
	// inactive-admin variant creates a deactivated admin that an operator
	// must switch on by hand; selecting it is an explicit, auditable
	// configuration choice and never a fallback.
	RegisterProvisioner(ProvisionerDefault, func() Provisioner {
		return provisionFunc(func(c Claims) *LocalUser {
			return newUser(c, true, false)
		})
	})
	RegisterProvisioner(ProvisionerInactiveAdmin, func() Provisioner {
		return provisionFunc(func(c Claims) *LocalUser {
			return newUser(c, false, true)
		})
	})
}

type provisionFunc func(Claims) *LocalUser

func (f provisionFunc) NewUser(c Claims) *LocalUser { return f(c) }

func newUser(c Claims, active, admin bool) *LocalUser {
	now := time.Now()
	return &LocalUser{
		ID:        uuid.NewString(),
		Email:     c.Email,
		Name:      c.Name,
		Active:    active,
		Admin:     admin,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
