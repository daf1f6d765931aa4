// Package store implementa los stores de tuplas (type, path): un motor de merge
// común y dos variantes, Local (blob o memoria) y Remote (HTTP contra un
// servidor de oplogs, con long polling).
//
// Cada store es dueño de un único oplog por tupla. Push aplica la regla de NOOP,
// inserta, reordena y compacta; si hubo cambio notifica a los suscriptores y
// persiste o propaga en segundo plano. Los fallos de esa etapa solo se loguean.
package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/gigsync/internal/oplog"
)

// Store es un contenedor físico de oplogs.
type Store interface {
	ID() string
	// Get devuelve el valor reducido y una copia del oplog de la tupla.
	Get(ctx context.Context, typ, path string) (any, oplog.Oplog, error)
	// Push mezcla op en el oplog; noop indica que op ya estaba reflejado.
	Push(ctx context.Context, typ, path string, op oplog.Op) (value any, noop bool, err error)
	// Subscribe registra fn para cada push que cambia el oplog.
	Subscribe(fn func(Mutation)) (unsubscribe func())
	// Kill corta conexiones y espera el trabajo en segundo plano. Idempotente.
	Kill(ctx context.Context) error
}

// Mutation es el evento emitido una vez por cada push no-NOOP.
// Origin es la marca puesta con WithOrigin en el ctx del push, si la hubo.
type Mutation struct {
	StoreID string
	Type    string
	Path    string
	Value   any
	Origin  string
	// Seq crece con cada push aplicado a la tupla en este store.
	Seq uint64
}

type originKey struct{}

// WithOrigin marca ctx para que las mutaciones de los pushes hechos con él
// lleven origin. Un canal lo usa para reconocer sus propios pushes.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

func originOf(ctx context.Context) string {
	o, _ := ctx.Value(originKey{}).(string)
	return o
}

const (
	DefaultRetryBackoff   = time.Second
	DefaultRequestTimeout = 10 * time.Second
	DefaultPollTimeout    = 30 * time.Second
)

type options struct {
	log            *zap.Logger
	client         httpDoer
	retryBackoff   time.Duration
	requestTimeout time.Duration
	pollTimeout    time.Duration
}

// Option configura un store.
type Option func(*options)

// WithLogger fija el logger base; el store le agrega su id.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// WithHTTPClient reemplaza el cliente HTTP de un store remoto.
func WithHTTPClient(c httpDoer) Option { return func(o *options) { o.client = c } }

// WithRetryBackoff fija la espera entre reintentos del long polling.
func WithRetryBackoff(d time.Duration) Option { return func(o *options) { o.retryBackoff = d } }

// WithRequestTimeout fija el timeout de GET/POST de oplogs.
func WithRequestTimeout(d time.Duration) Option { return func(o *options) { o.requestTimeout = d } }

// WithPollTimeout fija el timeout de cada GET de stream; debe superar el delay del pump.
func WithPollTimeout(d time.Duration) Option { return func(o *options) { o.pollTimeout = d } }

func buildOptions(opts []Option) options {
	o := options{
		retryBackoff:   DefaultRetryBackoff,
		requestTimeout: DefaultRequestTimeout,
		pollTimeout:    DefaultPollTimeout,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	return o
}
