// Package postgres provides a PostgreSQL implementation of apikey.KeyStore.
// Keys are stored as SHA-256 hashes; plaintext keys never reach the
// database.
package postgres

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/authgate/pkg/auth"
	"github.com/rhuss/authgate/pkg/auth/apikey"
	"github.com/rhuss/authgate/pkg/debug"
)

// ErrDuplicateKey is returned by Add when the key is already stored.
var ErrDuplicateKey = errors.New("api key already exists")

// Store is a PostgreSQL-backed KeyStore.
type Store struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
	logger       *slog.Logger
}

var _ apikey.KeyStore = (*Store)(nil)

// New connects to the database described by cfg. If MigrateOnStart is set,
// schema migrations are applied before New returns.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool, queryTimeout: cfg.QueryTimeout, logger: logger}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

func hashKey(key string) []byte {
	h := sha256.Sum256([]byte(key))
	return h[:]
}

// Lookup returns the identity owning key. Revoked keys are not found.
func (s *Store) Lookup(ctx context.Context, key string) (*auth.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var (
		id     auth.Identity
		tenant *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT subject, tenant_id, service_tier, scopes
		FROM api_keys
		WHERE key_hash = $1 AND revoked_at IS NULL
	`, hashKey(key)).Scan(&id.Subject, &tenant, &id.ServiceTier, &id.Scopes)
	if errors.Is(err, pgx.ErrNoRows) {
		debug.Log("keystore", "api key not found or revoked")
		return nil, apikey.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}

	if tenant != nil && *tenant != "" {
		id.Metadata = map[string]string{"tenant_id": *tenant}
	}
	return &id, nil
}

// Add stores key for identity.
func (s *Store) Add(ctx context.Context, key string, identity auth.Identity) error {
	if key == "" || identity.Subject == "" {
		return errors.New("key and subject are required")
	}
	scopes := identity.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_keys (key_hash, subject, tenant_id, service_tier, scopes)
		VALUES ($1, $2, $3, $4, $5)
	`, hashKey(key), identity.Subject, nullString(identity.TenantID()), identity.ServiceTier, scopes)
	if isDuplicateKey(err) {
		return ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("inserting api key: %w", err)
	}
	return nil
}

// Revoke marks key as revoked. Returns apikey.ErrKeyNotFound if the key is
// unknown or already revoked.
func (s *Store) Revoke(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE api_keys SET revoked_at = now()
		WHERE key_hash = $1 AND revoked_at IS NULL
	`, hashKey(key))
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apikey.ErrKeyNotFound
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isDuplicateKey reports a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
