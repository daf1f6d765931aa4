package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dropDatabas3/gigsync/internal/blob"
	"github.com/dropDatabas3/gigsync/internal/metrics"
	"github.com/dropDatabas3/gigsync/internal/observability/logger"
	"github.com/dropDatabas3/gigsync/internal/oplog"
	"github.com/dropDatabas3/gigsync/internal/reducer"
)

// Local es un store respaldado por un blob.Storage, una clave "type/path" por tupla.
// Sin storage trabaja solo en memoria.
type Local struct {
	*engine
	storage blob.Storage
	owned   bool
	closed  sync.Once
}

// NewLocal crea un store local. storage puede ser nil.
func NewLocal(id string, reg *reducer.Registry, storage blob.Storage, opts ...Option) *Local {
	o := buildOptions(opts)
	s := &Local{engine: newEngine(id, reg, o.log.Named("store.local")), storage: storage}
	s.fetch = s.load
	if storage != nil {
		s.propagate = s.persist
	}
	return s
}

// InMemory indica si el store no tiene respaldo.
func (s *Local) InMemory() bool { return s.storage == nil }

func blobKey(typ, path string) string {
	return typ + "/" + path
}

func (s *Local) load(ctx context.Context, typ, path string) (oplog.Oplog, error) {
	if s.storage == nil {
		return oplog.Empty(), nil
	}
	key := blobKey(typ, path)
	release, err := s.storage.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	b, err := s.storage.Get(ctx, key)
	if blob.IsNotFound(err) {
		return oplog.Empty(), nil
	}
	if err != nil {
		return nil, err
	}
	var l oplog.Oplog
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, fmt.Errorf("store %s: decode %s: %w", s.id, key, err)
	}
	return l, nil
}

// persist escribe el oplog más reciente, leído ya con el lock tomado para que
// un push más viejo no pise a uno más nuevo.
func (s *Local) persist(ctx context.Context, typ, path string, _ oplog.Op) {
	key := blobKey(typ, path)
	fail := func(err error) {
		metrics.StorePersistErrors.WithLabelValues(s.id).Inc()
		s.log.Error("persist failed", logger.Key(key), logger.Err(err))
	}

	release, err := s.storage.Lock(ctx, key)
	if err != nil {
		fail(err)
		return
	}
	defer release()

	l := s.current(typ, path)
	if l == nil {
		return
	}
	b, err := json.Marshal(l)
	if err != nil {
		fail(err)
		return
	}
	if err := s.storage.Put(ctx, key, b); err != nil {
		fail(err)
	}
}

// Kill espera las escrituras pendientes. Cierra el storage solo si lo abrió FromDescriptor.
func (s *Local) Kill(ctx context.Context) error {
	s.subs.clear()
	if err := s.drain(ctx); err != nil {
		return err
	}
	var err error
	if s.owned {
		s.closed.Do(func() { err = s.storage.Close() })
	}
	return err
}
