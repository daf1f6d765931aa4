// Package atomicwrite reemplaza archivos completos sin dejar lecturas a medias.
package atomicwrite

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteFile escribe data en un temporal del mismo directorio, hace fsync y lo
// renombra sobre path. Si el rename falla (destino bloqueado en Windows) prueba
// remove+rename; el archivo previo solo se pierde si ese segundo intento también falla.
func WriteFile(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomicwrite: mkdir %s: %w", dir, err)
	}

	tmpPath, err := writeTemp(dir, data, perm)
	if err != nil {
		return err
	}
	if err := replace(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// WriteJSON codifica v (compacto) y lo escribe con WriteFile.
func WriteJSON(path string, v any, perm fs.FileMode) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("atomicwrite: encode %s: %w", path, err)
	}
	return WriteFile(path, b, perm)
}

func writeTemp(dir string, data []byte, perm fs.FileMode) (string, error) {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("atomicwrite: create temp: %w", err)
	}
	name := tmp.Name()
	fail := func(step string, err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("atomicwrite: %s temp: %w", step, err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("fsync", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("atomicwrite: close temp: %w", err)
	}
	_ = os.Chmod(name, perm)
	return name, nil
}

func replace(tmpPath, path string) error {
	err := os.Rename(tmpPath, path)
	if err == nil {
		return nil
	}
	_ = os.Remove(path)
	if err2 := os.Rename(tmpPath, path); err2 != nil {
		return fmt.Errorf("atomicwrite: rename: %v (after remove: %v)", err, err2)
	}
	return nil
}
