// Package channel presenta un conjunto de stores como un único espacio lógico:
// get y push compiten entre todos los stores y gana la primera respuesta;
// syncprune repara divergencias y compacta en segundo plano.
package channel

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/gigsync/internal/errs"
	"github.com/dropDatabas3/gigsync/internal/observability/logger"
	"github.com/dropDatabas3/gigsync/internal/oplog"
	"github.com/dropDatabas3/gigsync/internal/reducer"
	"github.com/dropDatabas3/gigsync/internal/store"
)

var (
	ErrAllStoresFailed     = errs.New("ChannelError:AllStoresFailed", "all stores failed")
	ErrOplogLengthMismatch = errs.New("ChannelError:OplogLengthMismatch", "oplog length mismatch")
	ErrValuesMismatch      = errs.New("ChannelError:ValuesMismatch", "values mismatch")
	ErrUnknownStore        = errs.New("ChannelError:UnknownStore", "unknown store")
)

// Update se emite cuando cambia el valor visible de una tupla.
type Update struct {
	Channel string
	Type    string
	Path    string
	Value   any
}

// DefaultMeshLimit acota los destinos que syncprune reproduce en paralelo.
const DefaultMeshLimit = 8

// Channel es dueño de referencias a sus stores; nunca toca sus oplogs salvo por Get/Push.
type Channel struct {
	name   string
	origin string
	ids    []string
	stores map[string]store.Store
	log    *zap.Logger
	now    func() time.Time

	meshLimit int

	mu     sync.Mutex
	state  map[string]string
	seen   map[string]uint64
	subs   []subscription
	nextID uint64
	unsubs []func()

	killed   atomic.Bool
	sched    *scheduler
	dispatch *dispatcher
}

type subscription struct {
	id uint64
	fn func(Update)
}

// Option configura un Channel.
type Option func(*Channel)

func WithLogger(l *zap.Logger) Option      { return func(c *Channel) { c.log = l } }
func WithClock(now func() time.Time) Option { return func(c *Channel) { c.now = now } }

// WithMeshLimit fija el paralelismo de la fase de sync.
func WithMeshLimit(n int) Option { return func(c *Channel) { c.meshLimit = n } }

// New arma el canal y se suscribe a las mutaciones de cada store.
func New(name string, stores map[string]store.Store, opts ...Option) *Channel {
	c := &Channel{
		name:      name,
		stores:    make(map[string]store.Store, len(stores)),
		log:       zap.NewNop(),
		now:       time.Now,
		meshLimit: DefaultMeshLimit,
		state:     map[string]string{},
		seen:      map[string]uint64{},
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.Named("channel").With(logger.Channel(name))
	c.origin = fmt.Sprintf("channel:%s:%p", name, c)
	for id, s := range stores {
		c.ids = append(c.ids, id)
		c.stores[id] = s
	}
	sort.Strings(c.ids)
	c.sched = newScheduler(c.runSyncPrune)
	c.dispatch = newDispatcher(c.deliver)

	for _, id := range c.ids {
		c.unsubs = append(c.unsubs, c.stores[id].Subscribe(c.onMutate))
	}
	return c
}

func (c *Channel) Name() string { return c.name }

// Stores lista los ids de los stores, ordenados.
func (c *Channel) Stores() []string { return append([]string(nil), c.ids...) }

// Store devuelve el store id.
func (c *Channel) Store(id string) (store.Store, error) {
	s, ok := c.stores[id]
	if !ok {
		return nil, ErrUnknownStore.WithMessage("Unknown store: " + id)
	}
	return s, nil
}

// Subscribe registra fn para cada Update del canal.
func (c *Channel) Subscribe(fn func(Update)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscription{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, s := range c.subs {
				if s.id == id {
					c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func stateKey(typ, path string) string { return oplog.Hash(typ, path) }

// record guarda el hash del valor; devuelve true si cambió.
func (c *Channel) record(typ, path string, value any) bool {
	return c.recordSeq("", 0, typ, path, value)
}

// recordSeq es record para una mutación de storeID con secuencia seq. Una
// mutación con seq menor o igual a la última vista de ese store y tupla llegó
// tarde y se descarta. seq 0 no se ordena.
func (c *Channel) recordSeq(storeID string, seq uint64, typ, path string, value any) bool {
	hv, err := oplog.ValueHash(value)
	if err != nil {
		c.log.Warn("value not hashable", logger.TupleType(typ), logger.TuplePath(path), logger.Err(err))
		return false
	}
	k := stateKey(typ, path)
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != 0 {
		sk := storeID + "\x00" + k
		if seq <= c.seen[sk] {
			return false
		}
		c.seen[sk] = seq
	}
	if c.state[k] == hv {
		return false
	}
	c.state[k] = hv
	return true
}

// onMutate emite Update si el valor cambió respecto del último visto. Los
// pushes propios del canal solo actualizan el estado: quien llamó ya recibe
// el valor como respuesta.
func (c *Channel) onMutate(m store.Mutation) {
	if c.killed.Load() {
		return
	}
	changed := c.recordSeq(m.StoreID, m.Seq, m.Type, m.Path, m.Value)
	if changed && m.Origin != c.origin {
		c.log.Debug("UPDATE", logger.TupleType(m.Type), logger.TuplePath(m.Path), logger.StoreID(m.StoreID))
		c.dispatch.enqueue(Update{Channel: c.name, Type: m.Type, Path: m.Path, Value: m.Value})
	}
	c.sched.schedule(m.Type, m.Path)
}

func (c *Channel) deliver(u Update) {
	if c.killed.Load() {
		return
	}
	c.mu.Lock()
	subs := c.subs
	c.mu.Unlock()
	for _, s := range subs {
		s.fn(u)
	}
}

type raceResult struct {
	id    string
	value any
	err   error
}

// race llama fn en todos los stores. Devuelve el primer éxito, o el primer
// error de aplicación, sin esperar al resto; los demás terminan solos.
// done se cierra cuando respondieron todos.
func (c *Channel) race(ctx context.Context, op, typ, path string, fn func(context.Context, store.Store) (any, error)) (any, <-chan struct{}, error) {
	done := make(chan struct{})
	if len(c.ids) == 0 {
		close(done)
		return nil, done, ErrAllStoresFailed.WithMessage("All stores failed: [" + typ + "] " + path)
	}

	bg := context.WithoutCancel(ctx)
	results := make(chan raceResult, len(c.ids))
	for _, id := range c.ids {
		go func(id string, s store.Store) {
			v, err := fn(bg, s)
			results <- raceResult{id: id, value: v, err: err}
		}(id, c.stores[id])
	}

	for received := 1; received <= len(c.ids); received++ {
		r := <-results
		switch {
		case r.err == nil:
			go drain(results, len(c.ids)-received, done)
			return r.value, done, nil
		case reducer.IsApplication(r.err):
			go drain(results, len(c.ids)-received, done)
			return nil, done, r.err
		default:
			c.log.Warn("store failed", logger.Op(op), logger.StoreID(r.id),
				logger.TupleType(typ), logger.TuplePath(path), logger.Err(r.err))
		}
	}
	close(done)
	return nil, done, ErrAllStoresFailed.WithMessage("All stores failed: [" + typ + "] " + path)
}

func drain(results <-chan raceResult, n int, done chan struct{}) {
	for i := 0; i < n; i++ {
		<-results
	}
	close(done)
}

// Get devuelve el valor del primer store que responde y agenda syncprune
// cuando terminan todos.
func (c *Channel) Get(ctx context.Context, typ, path string) (any, error) {
	v, done, err := c.race(ctx, "get", typ, path, func(ctx context.Context, s store.Store) (any, error) {
		v, _, err := s.Get(ctx, typ, path)
		return v, err
	})
	if err != nil {
		return nil, err
	}
	c.record(typ, path, v)
	go func() {
		<-done
		if !c.killed.Load() {
			c.sched.schedule(typ, path)
		}
	}()
	return v, nil
}

// Push aplica op en todos los stores y devuelve el valor del primero que responde.
// No agenda syncprune: eso lo disparan las mutaciones.
func (c *Channel) Push(ctx context.Context, typ, path string, op oplog.Op) (any, error) {
	ctx = store.WithOrigin(ctx, c.origin)
	v, _, err := c.race(ctx, "push", typ, path, func(ctx context.Context, s store.Store) (any, error) {
		v, _, err := s.Push(ctx, typ, path, op)
		return v, err
	})
	if err != nil {
		return nil, err
	}
	c.record(typ, path, v)
	return v, nil
}

// Idle indica si no quedan syncprune ni Update pendientes.
func (c *Channel) Idle() bool { return c.sched.idle() && c.dispatch.idle() }

// Kill quita las suscripciones, marca el canal, espera los syncprune en curso
// hasta que ctx termine y mata los stores aunque alguno siga corriendo. Se
// puede llamar desde un suscriptor.
func (c *Channel) Kill(ctx context.Context) error {
	if !c.killed.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.subs = nil
	c.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
	c.dispatch.stop()

	var first error
	if err := c.sched.stop(ctx); err != nil {
		c.log.Warn("syncprune still running at kill", logger.Err(err))
		first = err
	}
	for _, id := range c.ids {
		if err := c.stores[id].Kill(ctx); err != nil {
			c.log.Warn("store kill failed", logger.StoreID(id), logger.Err(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}
