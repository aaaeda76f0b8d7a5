// Package postgres is a PostgreSQL user directory for goRecovery.
//
// Directory implements goRecovery.Directory, AccountStatusProvider,
// TenantResolver and NotificationPolicy over the schema in migrations/.
// Users outside the primary user store are reported as "STORE/username".
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	goRecovery "github.com/MrEthical07/goRecovery"
)

var (
	// ErrUnknownTenant is returned when a tenant domain has no row.
	ErrUnknownTenant = errors.New("postgres directory: unknown tenant")
	// ErrUnknownAccount is returned by status checks for accounts with no row.
	ErrUnknownAccount = errors.New("postgres directory: unknown account")
)

// DB is the subset of *pgxpool.Pool used by Directory.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Open connects a pool to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Options configures a Directory.
type Options struct {
	PrimaryDomain string
	Logger        *slog.Logger
}

type Directory struct {
	db      DB
	primary string
	logger  *slog.Logger
}

var (
	_ goRecovery.Directory             = (*Directory)(nil)
	_ goRecovery.AccountStatusProvider = (*Directory)(nil)
	_ goRecovery.TenantResolver        = (*Directory)(nil)
	_ goRecovery.NotificationPolicy    = (*Directory)(nil)
)

func New(db DB, opts Options) *Directory {
	if opts.PrimaryDomain == "" {
		opts.PrimaryDomain = "PRIMARY"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Directory{
		db:      db,
		primary: strings.ToUpper(opts.PrimaryDomain),
		logger:  opts.Logger.With(slog.String("component", "directory")),
	}
}

const findUsersSQL = `SELECT u.user_store, u.username
FROM users u
JOIN user_claims c ON c.user_id = u.id
WHERE u.tenant_id = $1 AND c.claim_uri = $2 AND c.value = $3`

// FindUsersByClaim returns every user whose claim equals value. A value of
// the form "STORE/rest" searches only that user store for rest; a leading
// "/" marks an escaped value searched in every store.
func (d *Directory) FindUsersByClaim(ctx context.Context, tenantID int, claimURI, value string) ([]string, error) {
	query, args := d.findUsersQuery(tenantID, claimURI, value)

	rows, err := d.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find users by claim: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var store, username string
		if err := rows.Scan(&store, &username); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		names = append(names, d.qualify(store, username))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find users by claim: %w", err)
	}

	d.logger.DebugContext(ctx, "claim lookup", slog.String("claim", claimURI), slog.Int("matches", len(names)))
	return names, nil
}

func (d *Directory) findUsersQuery(tenantID int, claimURI, value string) (string, []any) {
	if strings.HasPrefix(value, "/") {
		return findUsersSQL + " ORDER BY u.user_store, u.username", []any{tenantID, claimURI, value[1:]}
	}
	if idx := strings.Index(value, "/"); idx > 0 {
		store := strings.ToUpper(value[:idx])
		return findUsersSQL + " AND u.user_store = $4 ORDER BY u.username", []any{tenantID, claimURI, value[idx+1:], store}
	}
	return findUsersSQL + " ORDER BY u.user_store, u.username", []any{tenantID, claimURI, value}
}

func (d *Directory) qualify(store, username string) string {
	if strings.EqualFold(store, d.primary) {
		return username
	}
	return strings.ToUpper(store) + "/" + username
}

const claimValuesSQL = `SELECT c.claim_uri, c.value
FROM user_claims c
JOIN users u ON u.id = c.user_id
WHERE u.tenant_id = $1 AND u.user_store = $2 AND u.username = $3 AND c.claim_uri = ANY($4)`

// GetClaimValues returns the non-empty values of claimURIs for username.
func (d *Directory) GetClaimValues(ctx context.Context, tenantID int, username string, claimURIs []string) (map[string]string, error) {
	store, bare := goRecovery.SplitUserStoreDomain(username, d.primary)

	rows, err := d.db.Query(ctx, claimValuesSQL, tenantID, store, bare, claimURIs)
	if err != nil {
		return nil, fmt.Errorf("load claims: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string, len(claimURIs))
	for rows.Next() {
		var uri, value string
		if err := rows.Scan(&uri, &value); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		if value != "" {
			values[uri] = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load claims: %w", err)
	}
	return values, nil
}

// SecondaryStoreExists reports whether domain is a registered user store.
func (d *Directory) SecondaryStoreExists(ctx context.Context, tenantID int, domain string) (bool, error) {
	var exists bool
	err := d.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_stores WHERE tenant_id = $1 AND domain = $2)`,
		tenantID, strings.ToUpper(domain),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user store: %w", err)
	}
	return exists, nil
}

func (d *Directory) IsDisabled(ctx context.Context, account goRecovery.Account) (bool, error) {
	disabled, _, err := d.accountStatus(ctx, account)
	return disabled, err
}

func (d *Directory) IsLocked(ctx context.Context, account goRecovery.Account) (bool, error) {
	_, locked, err := d.accountStatus(ctx, account)
	return locked, err
}

func (d *Directory) accountStatus(ctx context.Context, account goRecovery.Account) (disabled, locked bool, err error) {
	store := account.UserStoreDomain
	if store == "" {
		store = d.primary
	}

	err = d.db.QueryRow(ctx,
		`SELECT u.disabled, u.locked
FROM users u
JOIN tenants t ON t.id = u.tenant_id
WHERE t.domain = $1 AND u.user_store = $2 AND u.username = $3`,
		account.TenantDomain, strings.ToUpper(store), account.Username,
	).Scan(&disabled, &locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, fmt.Errorf("%w: %s", ErrUnknownAccount, account.Username)
	}
	if err != nil {
		return false, false, fmt.Errorf("load account status: %w", err)
	}
	return disabled, locked, nil
}

// TenantID maps a tenant domain to its id.
func (d *Directory) TenantID(ctx context.Context, tenantDomain string) (int, error) {
	var id int
	err := d.db.QueryRow(ctx, `SELECT id FROM tenants WHERE domain = $1`, tenantDomain).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTenant, tenantDomain)
	}
	if err != nil {
		return 0, fmt.Errorf("resolve tenant: %w", err)
	}
	return id, nil
}

// NotificationsInternallyManaged reads the tenant's notification setting.
func (d *Directory) NotificationsInternallyManaged(ctx context.Context, tenantDomain string) (bool, error) {
	var internal bool
	err := d.db.QueryRow(ctx, `SELECT notifications_internal FROM tenants WHERE domain = $1`, tenantDomain).Scan(&internal)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%w: %s", ErrUnknownTenant, tenantDomain)
	}
	if err != nil {
		return false, fmt.Errorf("load notification policy: %w", err)
	}
	return internal, nil
}
