package repositories

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/myrjola/directorscut/internal/errors"
	"github.com/myrjola/directorscut/internal/persistence"
	"github.com/myrjola/directorscut/internal/sqlite"
)

// KVRepository is a persistence.Store backed by the kv table.
type KVRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

var _ persistence.Store = (*KVRepository)(nil)

func NewKVRepository(db *sqlite.Database, logger *slog.Logger) *KVRepository {
	return &KVRepository{
		db:     db,
		logger: logger.With("source", "KVRepository"),
	}
}

func (r *KVRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.ReadOnly.GetContext(ctx, &value, `SELECT value FROM kv WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(persistence.ErrNotFound, "get value", slog.String("key", key))
	}
	if err != nil {
		return nil, errors.Wrap(err, "get value", slog.String("key", key))
	}
	return value, nil
}

func (r *KVRepository) Set(ctx context.Context, key string, value []byte) error {
	stmt := `INSERT INTO kv (key, value, updated) VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ'))
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated = excluded.updated`
	if _, err := r.db.ReadWrite.ExecContext(ctx, stmt, key, value); err != nil {
		return errors.Wrap(err, "set value", slog.String("key", key))
	}
	return nil
}

func (r *KVRepository) Remove(ctx context.Context, key string) error {
	if _, err := r.db.ReadWrite.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return errors.Wrap(err, "remove value", slog.String("key", key))
	}
	return nil
}
