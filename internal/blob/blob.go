// Package blob es el almacenamiento clave -> JSON detrás de los stores locales y del servidor.
//
// Cada clave guarda un documento JSON opaco (un oplog serializado). Get devuelve
// ErrNotFound si la clave no existe; el llamador lo trata como oplog vacío.
// Lock serializa read-modify-write por clave y deja correr en paralelo claves distintas.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/dropDatabas3/gigsync/internal/errs"
)

var (
	ErrNotFound    = errors.New("blob: not found")
	ErrInvalidPath = errs.New("StorageError:InvalidPath", "invalid path")
)

// Release libera un lock tomado con Lock. Llamarla más de una vez no tiene efecto.
type Release func()

// Storage es un backend de blobs.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Lock(ctx context.Context, key string) (Release, error)
	Close() error
}

// IsNotFound reporta si err es ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// CleanKey normaliza una clave a la forma "/a/b". Rechaza claves vacías o que
// normalizan a la raíz; ".." nunca escapa de la raíz.
func CleanKey(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidPath.WithMessage("Invalid `path`: " + key)
	}
	if key[0] != '/' {
		key = "/" + key
	}
	key = path.Clean(key)
	if len(key) < 2 {
		return "", ErrInvalidPath.WithMessage("Invalid `path`: " + key)
	}
	return key, nil
}

// Config es la configuración común de los adapters.
type Config struct {
	// Driver: "fs", "redis", "postgres".
	Driver string
	// Root es el directorio base (fs).
	Root string
	// DSN es la dirección del backend (redis addr o connection string de postgres).
	DSN string
	// DB es el número de base de redis.
	DB int
	// Prefix se antepone a cada clave (redis).
	Prefix string
}

// Adapter abre un Storage a partir de Config.
type Adapter interface {
	Name() string
	Open(ctx context.Context, cfg Config) (Storage, error)
}

var (
	registryMu sync.RWMutex
	adapters   = map[string]Adapter{}
)

// RegisterAdapter registra a; se llama desde init() de cada adapter.
func RegisterAdapter(a Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := adapters[a.Name()]; dup {
		panic(fmt.Sprintf("blob: adapter %q already registered", a.Name()))
	}
	adapters[a.Name()] = a
}

// ListAdapters devuelve los nombres registrados, ordenados.
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(adapters))
	for n := range adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Open abre el Storage del driver indicado.
func Open(ctx context.Context, cfg Config) (Storage, error) {
	registryMu.RLock()
	a, ok := adapters[cfg.Driver]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("blob: driver %q not registered (have %v)", cfg.Driver, ListAdapters())
	}
	return a.Open(ctx, cfg)
}
