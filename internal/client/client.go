// Package client es la fachada que usan las aplicaciones: registra reducers,
// arma los canales según el directorio y expone get/push/on por canal.
package client

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/gigsync/internal/channel"
	"github.com/dropDatabas3/gigsync/internal/errs"
	"github.com/dropDatabas3/gigsync/internal/observability/logger"
	"github.com/dropDatabas3/gigsync/internal/oplog"
	"github.com/dropDatabas3/gigsync/internal/reducer"
	"github.com/dropDatabas3/gigsync/internal/store"
	"github.com/dropDatabas3/gigsync/internal/table"
)

var ErrUnknownChannel = errs.New("GiGError:UnknownChannel", "unknown channel")

// Client es seguro para uso concurrente. Los canales se construyen en el
// primer Init (explícito o implícito en Get/Push/On).
type Client struct {
	dir       table.Directory
	registry  *reducer.Registry
	log       *zap.Logger
	now       func() time.Time
	storeOpts []store.Option
	chanOpts  []channel.Option

	initOnce sync.Once
	initErr  error

	mu       sync.RWMutex
	channels map[string]*channel.Channel
}

// Option configura un Client.
type Option func(*Client)

func WithLogger(l *zap.Logger) Option        { return func(c *Client) { c.log = l } }
func WithClock(now func() time.Time) Option   { return func(c *Client) { c.now = now } }
func WithRegistry(r *reducer.Registry) Option { return func(c *Client) { c.registry = r } }

// WithStoreOptions se pasa a cada store construido.
func WithStoreOptions(opts ...store.Option) Option {
	return func(c *Client) { c.storeOpts = append(c.storeOpts, opts...) }
}

// WithChannelOptions se pasa a cada canal construido.
func WithChannelOptions(opts ...channel.Option) Option {
	return func(c *Client) { c.chanOpts = append(c.chanOpts, opts...) }
}

func New(dir table.Directory, opts ...Option) *Client {
	c := &Client{
		dir:      dir,
		registry: reducer.NewRegistry(),
		log:      zap.NewNop(),
		now:      time.Now,
		channels: map[string]*channel.Channel{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Register asocia un reducer a un tipo. Llamar antes de Init.
func (c *Client) Register(typ string, r reducer.Reducer) {
	c.registry.Register(typ, r)
}

// Registry devuelve el registro de reducers compartido por los stores.
func (c *Client) Registry() *reducer.Registry { return c.registry }

// Init arma todos los canales. Es idempotente: el error de la primera llamada se conserva.
func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() { c.initErr = c.build(ctx) })
	return c.initErr
}

func (c *Client) build(ctx context.Context) error {
	layout, err := c.dir.Channels(ctx)
	if err != nil {
		return err
	}
	opts := append([]store.Option{store.WithLogger(c.log)}, c.storeOpts...)
	chOpts := append([]channel.Option{channel.WithLogger(c.log)}, c.chanOpts...)

	built := map[string]*channel.Channel{}
	for name, descs := range layout {
		stores := make(map[string]store.Store, len(descs))
		for id, d := range descs {
			s, err := store.FromDescriptor(ctx, id, d, c.registry, opts...)
			if err != nil {
				for _, s := range stores {
					_ = s.Kill(ctx)
				}
				for _, ch := range built {
					_ = ch.Kill(ctx)
				}
				return err
			}
			stores[id] = s
		}
		built[name] = channel.New(name, stores, chOpts...)
		c.log.Info("channel ready", logger.Channel(name), logger.Count(len(stores)))
	}

	c.mu.Lock()
	c.channels = built
	c.mu.Unlock()
	return nil
}

// Channel devuelve el canal name.
func (c *Client) Channel(ctx context.Context, name string) (*channel.Channel, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	ch, ok := c.channels[name]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownChannel.WithMessage("Unknown channel: " + name)
	}
	return ch, nil
}

// Channels lista los nombres de canal, ordenados.
func (c *Client) Channels(ctx context.Context) ([]string, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.channels))
	for n := range c.channels {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// Get lee el valor de (typ, path) en el canal.
func (c *Client) Get(ctx context.Context, name, typ, path string) (any, error) {
	ch, err := c.Channel(ctx, name)
	if err != nil {
		return nil, err
	}
	return ch.Get(ctx, typ, path)
}

// Push crea un op {date: now, payload, sha} y lo empuja al canal.
func (c *Client) Push(ctx context.Context, name, typ, path string, payload any) (any, error) {
	ch, err := c.Channel(ctx, name)
	if err != nil {
		return nil, err
	}
	op, err := oplog.NewDelta(c.now().UnixMilli(), payload)
	if err != nil {
		return nil, err
	}
	return ch.Push(ctx, typ, path, op)
}

// On suscribe fn a los Update del canal.
func (c *Client) On(ctx context.Context, name string, fn func(channel.Update)) (func(), error) {
	ch, err := c.Channel(ctx, name)
	if err != nil {
		return nil, err
	}
	return ch.Subscribe(fn), nil
}

// Kill mata todos los canales.
func (c *Client) Kill(ctx context.Context) error {
	c.mu.Lock()
	chans := c.channels
	c.channels = map[string]*channel.Channel{}
	c.mu.Unlock()

	var first error
	for _, ch := range chans {
		if err := ch.Kill(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
