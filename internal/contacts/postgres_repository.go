package contacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const createTable = `
CREATE TABLE IF NOT EXISTS whatsapp_contacts (
id TEXT PRIMARY KEY,
wa_id TEXT NOT NULL UNIQUE,
phone_number TEXT NOT NULL,
display_name TEXT,
is_active BOOLEAN NOT NULL DEFAULT TRUE,
created_at TIMESTAMPTZ NOT NULL,
updated_at TIMESTAMPTZ NOT NULL
)
`

const upsertContact = `
INSERT INTO whatsapp_contacts (
id,
wa_id,
phone_number,
display_name,
is_active,
created_at,
updated_at
) VALUES ($1,$2,$3,$4,TRUE,$5,$5)
ON CONFLICT (wa_id) DO UPDATE SET
phone_number = EXCLUDED.phone_number,
display_name = EXCLUDED.display_name,
is_active = TRUE,
updated_at = EXCLUDED.updated_at
RETURNING id, wa_id, phone_number, display_name, is_active, created_at, updated_at
`

const selectContacts = `
SELECT id, wa_id, phone_number, display_name, is_active, created_at, updated_at
FROM whatsapp_contacts
`

var ErrNotConfigured = errors.New("postgres contact store requires a non-nil pool")

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, ErrNotConfigured
	}
	return &PostgresStore{pool: pool}, nil
}

// Connect opens a pool and retries the first ping with exponential backoff,
// so the gateway tolerates a database that starts after it does.
func Connect(ctx context.Context, databaseURL string, maxWait time.Duration, logger zerolog.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxWait
	err = backoff.RetryNotify(func() error {
		return pool.Ping(ctx)
	}, backoff.WithContext(policy, ctx), func(err error, next time.Duration) {
		logger.Warn().Err(err).Dur("retry_in", next).Msg("postgres not ready")
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("create whatsapp_contacts: %w", err)
	}
	return nil
}

func (s *PostgresStore) Register(ctx context.Context, c Contact) (Contact, error) {
	var name *string
	if c.DisplayName != "" {
		name = &c.DisplayName
	}
	row := s.pool.QueryRow(ctx, upsertContact,
		uuid.NewString(),
		c.WaID,
		c.PhoneNumber,
		name,
		time.Now().UTC(),
	)
	saved, err := scanContact(row)
	if err != nil {
		return Contact{}, fmt.Errorf("upsert contact: %w", err)
	}
	return saved, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Contact, error) {
	return s.query(ctx, selectContacts+"ORDER BY created_at DESC")
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]Contact, error) {
	return s.query(ctx, selectContacts+"WHERE is_active ORDER BY created_at ASC")
}

func (s *PostgresStore) query(ctx context.Context, sql string) ([]Contact, error) {
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanContact(row pgx.Row) (Contact, error) {
	var (
		c    Contact
		name *string
	)
	if err := row.Scan(&c.ID, &c.WaID, &c.PhoneNumber, &name, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Contact{}, err
	}
	if name != nil {
		c.DisplayName = *name
	}
	return c, nil
}
