// Package memory is an in-process user directory for goRecovery.
//
// It implements the same collaborator interfaces as directory/postgres and
// follows the same claim-value conventions, so it can stand in for a real
// directory in load tests and local runs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	goRecovery "github.com/MrEthical07/goRecovery"
)

var (
	// ErrUnknownTenant is returned for tenant domains that were never added.
	ErrUnknownTenant = errors.New("memory directory: unknown tenant")
	// ErrUnknownAccount is returned by status checks for accounts that were never added.
	ErrUnknownAccount = errors.New("memory directory: unknown account")
)

type user struct {
	store    string
	username string
	claims   map[string]string
	disabled bool
	locked   bool
}

type tenant struct {
	id       int
	internal bool
	stores   map[string]bool
	users    map[string]*user // key: STORE/username
}

// Directory is safe for concurrent use.
type Directory struct {
	mu      sync.RWMutex
	primary string
	tenants map[string]*tenant
	byID    map[int]*tenant
}

var (
	_ goRecovery.Directory             = (*Directory)(nil)
	_ goRecovery.AccountStatusProvider = (*Directory)(nil)
	_ goRecovery.TenantResolver        = (*Directory)(nil)
	_ goRecovery.NotificationPolicy    = (*Directory)(nil)
)

// New returns an empty directory. primary defaults to "PRIMARY".
func New(primary string) *Directory {
	if primary == "" {
		primary = "PRIMARY"
	}
	return &Directory{
		primary: strings.ToUpper(primary),
		tenants: map[string]*tenant{},
		byID:    map[int]*tenant{},
	}
}

// AddTenant registers a tenant. internal sets whether notifications are
// managed by the recovery service.
func (d *Directory) AddTenant(domain string, id int, internal bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := &tenant{id: id, internal: internal, stores: map[string]bool{}, users: map[string]*user{}}
	d.tenants[domain] = t
	d.byID[id] = t
}

// AddUserStore registers a secondary user store for a tenant.
func (d *Directory) AddUserStore(tenantDomain, storeDomain string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tenants[tenantDomain]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTenant, tenantDomain)
	}
	t.stores[strings.ToUpper(storeDomain)] = true
	return nil
}

// AddUser stores a user. name may be domain-qualified ("STORE/jane").
func (d *Directory) AddUser(tenantDomain, name string, claims map[string]string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tenants[tenantDomain]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTenant, tenantDomain)
	}
	store, bare := goRecovery.SplitUserStoreDomain(name, d.primary)
	copied := make(map[string]string, len(claims))
	for k, v := range claims {
		copied[k] = v
	}
	t.users[store+"/"+bare] = &user{store: store, username: bare, claims: copied}
	return nil
}

// SetStatus updates the disabled and locked flags of an existing user.
func (d *Directory) SetStatus(tenantDomain, name string, disabled, locked bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	store, bare := goRecovery.SplitUserStoreDomain(name, d.primary)
	u, err := d.lookup(tenantDomain, store, bare)
	if err != nil {
		return err
	}
	u.disabled = disabled
	u.locked = locked
	return nil
}

func (d *Directory) lookup(tenantDomain, store, username string) (*user, error) {
	t, ok := d.tenants[tenantDomain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, tenantDomain)
	}
	if store == "" {
		store = d.primary
	}
	u, ok := t.users[strings.ToUpper(store)+"/"+username]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, username)
	}
	return u, nil
}

func (d *Directory) qualify(u *user) string {
	if u.store == d.primary {
		return u.username
	}
	return u.store + "/" + u.username
}

// FindUsersByClaim returns every user whose claim equals value. A value of
// the form "STORE/rest" searches only that user store for rest; a leading
// "/" marks an escaped value searched in every store.
func (d *Directory) FindUsersByClaim(_ context.Context, tenantID int, claimURI, value string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	t, ok := d.byID[tenantID]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownTenant, tenantID)
	}

	storeFilter := ""
	switch idx := strings.Index(value, "/"); {
	case idx == 0:
		value = value[1:]
	case idx > 0:
		storeFilter = strings.ToUpper(value[:idx])
		value = value[idx+1:]
	}

	var names []string
	for _, u := range t.users {
		if storeFilter != "" && u.store != storeFilter {
			continue
		}
		if v, ok := u.claims[claimURI]; ok && v == value {
			names = append(names, d.qualify(u))
		}
	}
	sort.Strings(names)
	return names, nil
}

// GetClaimValues returns the non-empty values of claimURIs for username.
func (d *Directory) GetClaimValues(_ context.Context, tenantID int, username string, claimURIs []string) (map[string]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	t, ok := d.byID[tenantID]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownTenant, tenantID)
	}
	store, bare := goRecovery.SplitUserStoreDomain(username, d.primary)
	values := make(map[string]string, len(claimURIs))
	u, ok := t.users[store+"/"+bare]
	if !ok {
		return values, nil
	}
	for _, uri := range claimURIs {
		if v := u.claims[uri]; v != "" {
			values[uri] = v
		}
	}
	return values, nil
}

// SecondaryStoreExists reports whether domain is a registered user store.
func (d *Directory) SecondaryStoreExists(_ context.Context, tenantID int, domain string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	t, ok := d.byID[tenantID]
	if !ok {
		return false, fmt.Errorf("%w: id %d", ErrUnknownTenant, tenantID)
	}
	return t.stores[strings.ToUpper(domain)], nil
}

func (d *Directory) IsDisabled(_ context.Context, account goRecovery.Account) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, err := d.lookup(account.TenantDomain, account.UserStoreDomain, account.Username)
	if err != nil {
		return false, err
	}
	return u.disabled, nil
}

func (d *Directory) IsLocked(_ context.Context, account goRecovery.Account) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, err := d.lookup(account.TenantDomain, account.UserStoreDomain, account.Username)
	if err != nil {
		return false, err
	}
	return u.locked, nil
}

// TenantID maps a tenant domain to its id.
func (d *Directory) TenantID(_ context.Context, tenantDomain string) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	t, ok := d.tenants[tenantDomain]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTenant, tenantDomain)
	}
	return t.id, nil
}

// NotificationsInternallyManaged returns the tenant's notification setting.
func (d *Directory) NotificationsInternallyManaged(_ context.Context, tenantDomain string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	t, ok := d.tenants[tenantDomain]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownTenant, tenantDomain)
	}
	return t.internal, nil
}
