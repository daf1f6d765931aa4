package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/gigsync/internal/metrics"
	"github.com/dropDatabas3/gigsync/internal/observability/logger"
	"github.com/dropDatabas3/gigsync/internal/oplog"
)

// Outcome resume una corrida de syncprune.
type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"   // canal muerto
	OutcomeSynced    Outcome = "synced"    // algún push de la malla no fue NOOP
	OutcomeConverged Outcome = "converged" // sin cambios y nada que compactar
	OutcomePruned    Outcome = "pruned"    // se empujó un snapshot nuevo
	OutcomeError     Outcome = "error"
)

func (c *Channel) runSyncPrune(typ, path string) {
	if _, err := c.SyncPrune(context.Background(), typ, path); err != nil {
		c.log.Warn("syncprune failed", logger.TupleType(typ), logger.TuplePath(path), logger.Err(err))
	}
}

// SyncPrune corre una vez el protocolo de reconciliación para (typ, path).
//
// Sync: trae el oplog de cada store y reproduce cada oplog en cada store
// (malla completa n x n). Si algún push no fue NOOP la corrida termina ahí.
// Prune: si nada cambió, exige largos y valores iguales en todos los stores
// que respondieron y, si el largo es > 1, empuja a todos un snapshot del valor.
//
// Corridas concurrentes sobre la misma clave son válidas: el merge es idempotente.
func (c *Channel) SyncPrune(ctx context.Context, typ, path string) (Outcome, error) {
	if c.killed.Load() {
		metrics.SyncPruneRuns.WithLabelValues(c.name, string(OutcomeSkipped)).Inc()
		return OutcomeSkipped, nil
	}
	start := time.Now()
	out, err := c.syncPrune(ctx, typ, path)
	metrics.SyncPruneLatency.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		out = OutcomeError
	}
	metrics.SyncPruneRuns.WithLabelValues(c.name, string(out)).Inc()
	return out, err
}

func (c *Channel) syncPrune(ctx context.Context, typ, path string) (Outcome, error) {
	log := c.log.With(logger.TupleType(typ), logger.TuplePath(path))

	// sync: oplogs de todos los stores
	var (
		mu     sync.Mutex
		oplogs = map[string]oplog.Oplog{}
		g      errgroup.Group
	)
	for _, id := range c.ids {
		id, s := id, c.stores[id]
		g.Go(func() error {
			_, l, err := s.Get(ctx, typ, path)
			if err != nil {
				log.Warn("sync get failed", logger.StoreID(id), logger.Err(err))
				return nil
			}
			mu.Lock()
			oplogs[id] = l
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	responders := make([]string, 0, len(oplogs))
	for _, id := range c.ids {
		if _, ok := oplogs[id]; ok {
			responders = append(responders, id)
		}
	}

	var (
		synced atomic.Bool
		values = map[string]any{}
		mesh   errgroup.Group
	)
	mesh.SetLimit(c.meshLimit)
	for _, dst := range responders {
		dst := dst
		mesh.Go(func() error {
			s := c.stores[dst]
			for _, src := range responders {
				for _, op := range oplogs[src] {
					v, noop, err := s.Push(ctx, typ, path, op)
					if err != nil {
						log.Warn("sync push failed", logger.StoreID(dst), logger.SHA(op.SHA), logger.Err(err))
						continue
					}
					if !noop {
						synced.Store(true)
					}
					mu.Lock()
					values[dst] = v
					mu.Unlock()
				}
			}
			return nil
		})
	}
	_ = mesh.Wait()

	if synced.Load() {
		log.Debug("SYNCED")
		return OutcomeSynced, nil
	}

	// prune
	length := -1
	for _, id := range responders {
		n := len(oplogs[id])
		if length == -1 {
			length = n
			continue
		}
		if n != length {
			return OutcomeError, ErrOplogLengthMismatch.WithMessage(
				"Oplog length mismatch at pruning: [" + typ + "] " + path)
		}
	}
	if length <= 1 {
		return OutcomeConverged, nil
	}

	var (
		value any
		hv    string
		first = true
	)
	for _, id := range responders {
		v, ok := values[id]
		if !ok {
			continue
		}
		h, err := oplog.ValueHash(v)
		if err != nil {
			return OutcomeError, err
		}
		if first {
			value, hv, first = v, h, false
			continue
		}
		if h != hv {
			return OutcomeError, ErrValuesMismatch.WithMessage(
				"Values mismatch at pruning: [" + typ + "] " + path)
		}
	}
	if first {
		return OutcomeConverged, nil
	}

	date := c.now().UnixMilli()
	for _, id := range responders {
		if n := oplogs[id].Newest(); n >= date {
			date = n + 1
		}
	}
	snap, err := oplog.NewSnapshot(date, value)
	if err != nil {
		return OutcomeError, err
	}
	log.Debug("PRUNE", logger.SHA(snap.SHA), logger.Count(length))

	var (
		errMu  sync.Mutex
		failed []error
		push   errgroup.Group
	)
	for _, id := range c.ids {
		id, s := id, c.stores[id]
		push.Go(func() error {
			if _, _, err := s.Push(ctx, typ, path, snap); err != nil {
				errMu.Lock()
				failed = append(failed, fmt.Errorf("store %s: %w", id, err))
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = push.Wait()
	if len(failed) > 0 {
		return OutcomeError, errors.Join(failed...)
	}
	return OutcomePruned, nil
}

// String implementa fmt.Stringer.
func (o Outcome) String() string { return string(o) }
