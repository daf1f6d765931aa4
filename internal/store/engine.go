package store

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/gigsync/internal/metrics"
	"github.com/dropDatabas3/gigsync/internal/observability/logger"
	"github.com/dropDatabas3/gigsync/internal/oplog"
	"github.com/dropDatabas3/gigsync/internal/reducer"
)

// fetchFunc trae el oplog del medio de respaldo; nil o vacío equivale al sentinela.
type fetchFunc func(ctx context.Context, typ, path string) (oplog.Oplog, error)

// propagateFunc corre en segundo plano después de cada push no-NOOP.
type propagateFunc func(ctx context.Context, typ, path string, op oplog.Op)

type tupleKey struct{ typ, path string }

type tuple struct {
	mu    sync.Mutex
	log   oplog.Oplog
	value any
	seq   uint64
}

// engine es el algoritmo compartido por Local y Remote: caché de tuplas,
// merge y notificación.
type engine struct {
	id        string
	registry  *reducer.Registry
	log       *zap.Logger
	fetch     fetchFunc
	propagate propagateFunc

	mu     sync.Mutex
	tuples map[tupleKey]*tuple
	sf     singleflight.Group

	subs subscribers

	bgMu   sync.Mutex
	bg     sync.WaitGroup
	killed bool
}

func newEngine(id string, reg *reducer.Registry, log *zap.Logger) *engine {
	return &engine{
		id:       id,
		registry: reg,
		log:      log.With(logger.StoreID(id)),
		tuples:   map[tupleKey]*tuple{},
	}
}

func (e *engine) ID() string { return e.id }

func (e *engine) tuple(ctx context.Context, typ, path string) (*tuple, error) {
	if !e.registry.Has(typ) {
		return nil, reducer.ErrTypeNotRegistered.WithMessage("Type not registered: " + typ)
	}
	k := tupleKey{typ, path}
	e.mu.Lock()
	t, ok := e.tuples[k]
	e.mu.Unlock()
	if ok {
		return t, nil
	}

	v, err, _ := e.sf.Do(typ+"\x00"+path, func() (any, error) {
		e.mu.Lock()
		if t, ok := e.tuples[k]; ok {
			e.mu.Unlock()
			return t, nil
		}
		e.mu.Unlock()

		l, err := e.fetch(ctx, typ, path)
		if err != nil {
			return nil, err
		}
		if len(l) == 0 {
			l = oplog.Empty()
		}
		value, err := e.registry.Reduce(typ, l)
		if err != nil {
			return nil, err
		}
		t := &tuple{log: l, value: value}
		e.mu.Lock()
		e.tuples[k] = t
		e.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*tuple), nil
}

// Get implementa Store.
func (e *engine) Get(ctx context.Context, typ, path string) (any, oplog.Oplog, error) {
	t, err := e.tuple(ctx, typ, path)
	if err != nil {
		return nil, nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value, t.log.Clone(), nil
}

// Push implementa Store.
func (e *engine) Push(ctx context.Context, typ, path string, op oplog.Op) (any, bool, error) {
	t, err := e.tuple(ctx, typ, path)
	if err != nil {
		return nil, false, err
	}

	t.mu.Lock()
	res := oplog.Merge(t.log, op)
	if res.Noop {
		v := t.value
		t.mu.Unlock()
		metrics.StorePushes.WithLabelValues(e.id, "noop").Inc()
		e.log.Debug("NOOP", logger.TupleType(typ), logger.TuplePath(path), logger.SHA(op.SHA))
		return v, true, nil
	}
	value, err := e.registry.Reduce(typ, res.Oplog)
	if err != nil {
		t.mu.Unlock()
		metrics.StorePushes.WithLabelValues(e.id, "error").Inc()
		return nil, false, err
	}
	t.log, t.value = res.Oplog, value
	t.seq++
	seq := t.seq
	t.mu.Unlock()

	metrics.StorePushes.WithLabelValues(e.id, "applied").Inc()
	if res.Pruned > 0 {
		metrics.StorePrunedOps.WithLabelValues(e.id).Add(float64(res.Pruned))
		e.log.Debug("PRUNING", logger.TupleType(typ), logger.TuplePath(path), logger.Count(res.Pruned))
	}

	e.subs.notify(Mutation{StoreID: e.id, Type: typ, Path: path, Value: value, Origin: originOf(ctx), Seq: seq})

	if e.propagate != nil {
		e.spawn(context.WithoutCancel(ctx), typ, path, op)
	}
	return value, false, nil
}

// spawn lanza la propagación salvo que el store ya esté muerto.
func (e *engine) spawn(ctx context.Context, typ, path string, op oplog.Op) {
	e.bgMu.Lock()
	defer e.bgMu.Unlock()
	if e.killed {
		e.log.Debug("store killed, op not propagated", logger.TupleType(typ), logger.TuplePath(path), logger.SHA(op.SHA))
		return
	}
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		e.propagate(ctx, typ, path, op)
	}()
}

// current devuelve el oplog cacheado más reciente de la tupla, o nil.
func (e *engine) current(typ, path string) oplog.Oplog {
	e.mu.Lock()
	t, ok := e.tuples[tupleKey{typ, path}]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.log.Clone()
}

// Subscribe implementa Store.
func (e *engine) Subscribe(fn func(Mutation)) func() {
	return e.subs.add(fn)
}

// drain marca el store como muerto (no se lanzan más propagaciones) y espera
// las pendientes o el fin de ctx.
func (e *engine) drain(ctx context.Context) error {
	e.bgMu.Lock()
	e.killed = true
	e.bgMu.Unlock()

	done := make(chan struct{})
	go func() {
		e.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type subscription struct {
	id uint64
	fn func(Mutation)
}

type subscribers struct {
	mu   sync.RWMutex
	next uint64
	list []subscription
}

func (s *subscribers) add(fn func(Mutation)) func() {
	s.mu.Lock()
	s.next++
	id := s.next
	s.list = append(s.list, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.list {
				if sub.id == id {
					s.list = append(s.list[:i:i], s.list[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *subscribers) notify(m Mutation) {
	s.mu.RLock()
	list := s.list
	s.mu.RUnlock()
	for _, sub := range list {
		sub.fn(m)
	}
}

func (s *subscribers) clear() {
	s.mu.Lock()
	s.list = nil
	s.mu.Unlock()
}
