// Package redis guarda cada clave como un string de redis, sin TTL.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/gigsync/internal/blob"
)

func init() {
	blob.RegisterAdapter(adapter{})
}

type adapter struct{}

func (adapter) Name() string { return "redis" }

func (adapter) Open(ctx context.Context, cfg blob.Config) (blob.Storage, error) {
	addr := cfg.DSN
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DB: cfg.DB})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return New(rdb, cfg.Prefix), nil
}

// Storage implementa blob.Storage sobre un cliente redis.
// Lock es local al proceso: serializa escrituras de este nodo, no entre nodos.
type Storage struct {
	blob.Locker
	client goredis.UniversalClient
	prefix string
}

// New envuelve un cliente existente.
func New(client goredis.UniversalClient, prefix string) *Storage {
	return &Storage{client: client, prefix: prefix}
}

func (s *Storage) key(k string) (string, error) {
	k, err := blob.CleanKey(k)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return k, nil
	}
	return s.prefix + ":" + k, nil
}

func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := s.key(key)
	if err != nil {
		return nil, err
	}
	b, err := s.client.Get(ctx, k).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, blob.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %s: %w", k, err)
	}
	return b, nil
}

func (s *Storage) Put(ctx context.Context, key string, data []byte) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, k, data, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", k, err)
	}
	return nil
}

func (s *Storage) Close() error { return s.client.Close() }
