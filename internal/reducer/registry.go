// Package reducer resuelve, por tipo de dato, la función pura que pliega un oplog en un valor.
package reducer

import (
	"errors"
	"sort"
	"sync"

	"github.com/dropDatabas3/gigsync/internal/errs"
	"github.com/dropDatabas3/gigsync/internal/oplog"
)

var (
	ErrTypeNotRegistered = errs.New("ReducerError:TypeNotRegistered", "type not registered")
	ErrValueUndefined    = errs.New("ReducerError:ValueUndefined", "reducer returned undefined")
	ErrReduceFailed      = errs.New("ReducerError:ReduceFailed", "reducer failed")
)

type undefined struct{}

// Undefined es el valor que un reducer devuelve cuando no puede producir valor.
// Registry.Reduce lo convierte en ErrValueUndefined.
var Undefined any = undefined{}

// Reducer pliega un oplog en el valor de la tupla. Debe ser puro.
type Reducer interface {
	Reduce(log oplog.Oplog) (any, error)
}

// Func adapta una función a Reducer.
type Func func(log oplog.Oplog) (any, error)

func (f Func) Reduce(log oplog.Oplog) (any, error) { return f(log) }

// Registry mapea type -> Reducer. Se construye una vez y se inyecta en stores y canales.
type Registry struct {
	mu       sync.RWMutex
	reducers map[string]Reducer
}

func NewRegistry() *Registry {
	return &Registry{reducers: map[string]Reducer{}}
}

// Register asocia r al tipo; un segundo registro reemplaza al anterior.
func (r *Registry) Register(typ string, red Reducer) {
	r.mu.Lock()
	r.reducers[typ] = red
	r.mu.Unlock()
}

// Has indica si hay reducer para el tipo.
func (r *Registry) Has(typ string) bool {
	r.mu.RLock()
	_, ok := r.reducers[typ]
	r.mu.RUnlock()
	return ok
}

// Types lista los tipos registrados, ordenados.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.reducers))
	for t := range r.reducers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Reduce aplica el reducer del tipo. Un resultado Undefined es ErrValueUndefined;
// cualquier otro error del reducer queda envuelto en ErrReduceFailed.
func (r *Registry) Reduce(typ string, log oplog.Oplog) (any, error) {
	r.mu.RLock()
	red, ok := r.reducers[typ]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrTypeNotRegistered.WithMessage("Type not registered: " + typ)
	}

	v, err := red.Reduce(log)
	if err != nil {
		if errors.Is(err, ErrValueUndefined) {
			return nil, err
		}
		return nil, ErrReduceFailed.WithMessage("Reducer failed for type: " + typ).WithCause(err)
	}
	if v == Undefined {
		return nil, ErrValueUndefined.WithMessage("Reducer returned `undefined` for type: " + typ)
	}
	return v, nil
}

// IsApplication indica si err es un error del reducer, terminal en un fan-out.
func IsApplication(err error) bool {
	return errors.Is(err, ErrTypeNotRegistered) ||
		errors.Is(err, ErrValueUndefined) ||
		errors.Is(err, ErrReduceFailed)
}
