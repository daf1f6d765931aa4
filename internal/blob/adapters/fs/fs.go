// Package fs guarda cada clave como un archivo JSON bajo un directorio raíz.
package fs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"

	"github.com/dropDatabas3/gigsync/internal/blob"
	"github.com/dropDatabas3/gigsync/internal/util/atomicwrite"
)

func init() {
	blob.RegisterAdapter(adapter{})
}

type adapter struct{}

func (adapter) Name() string { return "fs" }

func (adapter) Open(_ context.Context, cfg blob.Config) (blob.Storage, error) {
	return New(cfg.Root)
}

// Storage implementa blob.Storage sobre el sistema de archivos.
type Storage struct {
	blob.Locker
	root string
}

// New prepara root (lo crea si no existe).
func New(root string) (*Storage, error) {
	if root == "" {
		return nil, errors.New("fs: empty root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("fs: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("fs: mkdir root: %w", err)
	}
	return &Storage{root: abs}, nil
}

// Root devuelve el directorio base absoluto.
func (s *Storage) Root() string { return s.root }

func (s *Storage) file(key string) (string, error) {
	key, err := blob.CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *Storage) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.file(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, blob.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fs: read %s: %w", key, err)
	}
	return b, nil
}

func (s *Storage) Put(_ context.Context, key string, data []byte) error {
	p, err := s.file(key)
	if err != nil {
		return err
	}
	return atomicwrite.WriteFile(p, data, 0o644)
}

func (s *Storage) Close() error { return nil }
