// Package pg guarda cada clave como una fila de gigsync_blobs en PostgreSQL.
package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/gigsync/internal/blob"
)

func init() {
	blob.RegisterAdapter(adapter{})
}

type adapter struct{}

func (adapter) Name() string { return "postgres" }

func (adapter) Open(ctx context.Context, cfg blob.Config) (blob.Storage, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse DSN: %w", err)
	}
	if poolCfg.MaxConns < 4 {
		poolCfg.MaxConns = 10
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping failed: %w", err)
	}
	if _, err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Storage{pool: pool}, nil
}

// Storage implementa blob.Storage sobre un pgxpool.
type Storage struct {
	blob.Locker
	pool *pgxpool.Pool
}

func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	key, err := blob.CleanKey(key)
	if err != nil {
		return nil, err
	}
	var data string
	err = s.pool.QueryRow(ctx, `SELECT data::text FROM gigsync_blobs WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, blob.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get %s: %w", key, err)
	}
	return []byte(data), nil
}

func (s *Storage) Put(ctx context.Context, key string, data []byte) error {
	key, err := blob.CleanKey(key)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO gigsync_blobs (key, data, updated_at) VALUES ($1, $2::json, now())
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		key, string(data))
	if err != nil {
		return fmt.Errorf("pg: put %s: %w", key, err)
	}
	return nil
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}
