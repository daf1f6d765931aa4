package pg

import (
	"context"
	"fmt"
	iofs "io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	migrations "github.com/dropDatabas3/gigsync/migrations/postgres"
)

// migrationLockID es la clave del advisory lock que serializa migraciones
// entre procesos que abren la misma base.
const migrationLockID int64 = 0x6769_6773_796e_63 // "gigsync"

// Migrate aplica los *_up.sql de migrations/postgres/blobs que falten, en orden
// lexicográfico, cada uno en su transacción. Devuelve cuántos aplicó.
func Migrate(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	return migrate(ctx, pool, migrations.BlobsFS, migrations.BlobsDir, 30*time.Second)
}

func migrate(ctx context.Context, pool *pgxpool.Pool, fsys iofs.FS, dir string, wait time.Duration) (int, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	lctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if _, err := conn.Exec(lctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return 0, fmt.Errorf("pg: migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockID)
	}()

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS gigsync_schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return 0, fmt.Errorf("pg: ensure gigsync_schema_migrations: %w", err)
	}

	rows, err := conn.Query(ctx, "SELECT version FROM gigsync_schema_migrations")
	if err != nil {
		return 0, fmt.Errorf("pg: query applied migrations: %w", err)
	}
	applied := map[string]bool{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return 0, err
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	files, err := pending(fsys, dir, applied)
	if err != nil {
		return 0, err
	}
	var n int
	for _, name := range files {
		b, err := iofs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return n, err
		}
		tx, err := conn.Begin(ctx)
		if err != nil {
			return n, fmt.Errorf("pg: begin tx: %w", err)
		}
		if _, err := tx.Exec(ctx, string(b)); err != nil {
			_ = tx.Rollback(ctx)
			return n, fmt.Errorf("pg: exec %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO gigsync_schema_migrations (version) VALUES ($1)", name); err != nil {
			_ = tx.Rollback(ctx)
			return n, fmt.Errorf("pg: record version %s: %w", name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return n, fmt.Errorf("pg: commit %s: %w", name, err)
		}
		n++
	}
	return n, nil
}

// pending lista los *_up.sql de dir que no están en applied, ordenados.
func pending(fsys iofs.FS, dir string, applied map[string]bool) ([]string, error) {
	entries, err := iofs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(name), "_up.sql") && !applied[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}
