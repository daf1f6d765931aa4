// Package oplogs es el service del servidor de oplogs: guarda un oplog por
// (user, type, path) en un blob.Storage, aplica la misma regla de merge que los
// stores y avisa al pump de cada op nuevo.
package oplogs

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/dropDatabas3/gigsync/internal/auth"
	"github.com/dropDatabas3/gigsync/internal/blob"
	"github.com/dropDatabas3/gigsync/internal/metrics"
	"github.com/dropDatabas3/gigsync/internal/observability/logger"
	"github.com/dropDatabas3/gigsync/internal/oplog"
	"github.com/dropDatabas3/gigsync/internal/pump"
)

// metricsStore es la etiqueta "store" de las métricas del servidor.
const metricsStore = "server"

// Service define las operaciones del servidor de oplogs.
type Service interface {
	Get(ctx context.Context, user int64, typ, path string) (oplog.Oplog, error)
	Push(ctx context.Context, user int64, typ, path string, op oplog.Op) (oplog.Result, error)
	Listen(ctx context.Context, user int64, regID string) (oplog.Batch, error)
	Revoke(token string)
}

// Deps contiene las dependencias del service.
type Deps struct {
	Storage blob.Storage
	Pump    *pump.Pump
	Checker auth.Checker
	Logger  *zap.Logger
}

type service struct {
	storage blob.Storage
	pump    *pump.Pump
	checker auth.Checker
	log     *zap.Logger
}

// NewService crea el service. Checker puede ser nil (sin revocación).
func NewService(d Deps) Service {
	if d.Pump == nil {
		d.Pump = pump.New()
	}
	if d.Checker == nil {
		d.Checker = auth.AllowAll{}
	}
	return &service{storage: d.Storage, pump: d.Pump, checker: d.Checker, log: logger.OrNop(d.Logger).Named("oplog")}
}

// storageKey arma "{user}/root/{type}{path}". El path se normaliza solo, así
// un ".." no sale del árbol del usuario.
func storageKey(user int64, typ, path string) (string, error) {
	p, err := blob.CleanKey(path)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(user, 10) + "/root/" + typ + p, nil
}

func (s *service) read(ctx context.Context, key string) (oplog.Oplog, error) {
	b, err := s.storage.Get(ctx, key)
	if blob.IsNotFound(err) {
		return oplog.Empty(), nil
	}
	if err != nil {
		return nil, err
	}
	var l oplog.Oplog
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if len(l) == 0 {
		return oplog.Empty(), nil
	}
	return l, nil
}

func (s *service) Get(ctx context.Context, user int64, typ, path string) (oplog.Oplog, error) {
	key, err := storageKey(user, typ, path)
	if err != nil {
		return nil, err
	}
	return s.read(ctx, key)
}

func (s *service) Push(ctx context.Context, user int64, typ, path string, op oplog.Op) (oplog.Result, error) {
	if err := op.Validate(); err != nil {
		return oplog.Result{}, err
	}
	key, err := storageKey(user, typ, path)
	if err != nil {
		return oplog.Result{}, err
	}
	log := logger.From(ctx).With(logger.Key(key), logger.SHA(op.SHA))

	release, err := s.storage.Lock(ctx, key)
	if err != nil {
		return oplog.Result{}, err
	}
	cur, err := s.read(ctx, key)
	if err != nil {
		release()
		return oplog.Result{}, err
	}
	res := oplog.Merge(cur, op)
	if !res.Noop {
		b, err := json.Marshal(res.Oplog)
		if err == nil {
			err = s.storage.Put(ctx, key, b)
		}
		if err != nil {
			release()
			metrics.StorePersistErrors.WithLabelValues(metricsStore).Inc()
			return oplog.Result{}, err
		}
	}
	release()

	if res.Noop {
		metrics.StorePushes.WithLabelValues(metricsStore, "noop").Inc()
		log.Debug("push noop")
		return res, nil
	}
	metrics.StorePushes.WithLabelValues(metricsStore, "applied").Inc()
	if res.Pruned > 0 {
		metrics.StorePrunedOps.WithLabelValues(metricsStore).Add(float64(res.Pruned))
		log.Debug("oplog pruned", logger.Count(res.Pruned))
	}
	s.pump.Push(strconv.FormatInt(user, 10), oplog.Entry{Type: typ, Path: path, Op: op})
	return res, nil
}

func (s *service) Listen(ctx context.Context, user int64, regID string) (oplog.Batch, error) {
	id, entries, err := s.pump.Listen(ctx, strconv.FormatInt(user, 10), regID)
	if err != nil {
		return oplog.Batch{}, err
	}
	return oplog.Batch{RegID: id, Stream: entries}, nil
}

func (s *service) Revoke(token string) {
	s.checker.Revoke(token)
	s.log.Debug("store token revoked")
}
