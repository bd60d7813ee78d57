package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS device_store (
		device_id  TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (device_id, key)
	)
`

// Backend stores the device keys as JSONB rows scoped by device id.
type Backend struct {
	pool     *pgxpool.Pool
	deviceID string
}

func NewBackend(pool *pgxpool.Pool, deviceID string) *Backend {
	return &Backend{pool: pool, deviceID: deviceID}
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return errors.Wrap(err, "create device_store table")
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	row := b.pool.QueryRow(ctx, `
		SELECT value
		FROM device_store
		WHERE device_id = $1 AND key = $2
	`, b.deviceID, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO device_store (device_id, key, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (device_id, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, b.deviceID, key, string(value), time.Now().UTC())
	return err
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	_, err := b.pool.Exec(ctx, `
		DELETE FROM device_store
		WHERE device_id = $1 AND key = $2
	`, b.deviceID, key)
	return err
}
