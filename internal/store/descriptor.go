package store

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/gigsync/internal/blob"
	"github.com/dropDatabas3/gigsync/internal/reducer"
)

const (
	TypeRemote = "remote"
	TypeLocal  = "local"
)

// Descriptor describe un store tal como lo entrega el directorio de canales.
type Descriptor struct {
	Type        string `json:"type" yaml:"type"`
	URL         string `json:"url,omitempty" yaml:"url,omitempty"`
	StoreToken  string `json:"store_token,omitempty" yaml:"store_token,omitempty"`
	StoragePath string `json:"storage_path,omitempty" yaml:"storage_path,omitempty"`
	Driver      string `json:"driver,omitempty" yaml:"driver,omitempty"`
	DSN         string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	Prefix      string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// FromDescriptor construye el store descripto. Los remotos salen con el long
// polling ya arrancado. Un local sin storage_path ni driver queda en memoria;
// con driver, el adapter tiene que estar registrado (import de blob/adapters/...).
func FromDescriptor(ctx context.Context, id string, d Descriptor, reg *reducer.Registry, opts ...Option) (Store, error) {
	switch d.Type {
	case TypeRemote:
		r, err := NewRemote(id, reg, d.URL, d.StoreToken, opts...)
		if err != nil {
			return nil, err
		}
		r.Start()
		return r, nil

	case TypeLocal, "":
		var storage blob.Storage
		switch {
		case d.Driver != "":
			st, err := blob.Open(ctx, blob.Config{Driver: d.Driver, Root: d.StoragePath, DSN: d.DSN, Prefix: d.Prefix})
			if err != nil {
				return nil, fmt.Errorf("store %s: %w", id, err)
			}
			storage = st
		case d.StoragePath != "":
			st, err := blob.Open(ctx, blob.Config{Driver: "fs", Root: d.StoragePath})
			if err != nil {
				return nil, fmt.Errorf("store %s: %w", id, err)
			}
			storage = st
		}
		l := NewLocal(id, reg, storage, opts...)
		l.owned = storage != nil
		return l, nil
	}
	return nil, fmt.Errorf("store %s: unknown type %q", id, d.Type)
}
