// Package pump es el hub de long polling del servidor: entrega a cada registro
// de un usuario las entradas empujadas, de inmediato si hay un listener
// esperando o vía backlog si no. Los registros sin listener se expiran por
// inactividad; no existe un cierre explícito.
package pump

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/gigsync/internal/errs"
	"github.com/dropDatabas3/gigsync/internal/metrics"
	"github.com/dropDatabas3/gigsync/internal/observability/logger"
	"github.com/dropDatabas3/gigsync/internal/oplog"
)

const (
	DefaultLongPollDelay   = 5 * time.Second
	DefaultLongPollTimeout = 2 * time.Minute
)

var (
	ErrCallbackPending = errs.New("PumpError:CallbackPending", "a listener is already waiting on this registration")
	ErrInvalidUserID   = errs.New("PumpError:InvalidUserId", "invalid user id")
)

type registration struct {
	lastSeen time.Time
	waiter   chan []oplog.Entry
	backlog  []oplog.Entry
}

// Pump guarda los registros por user -> reg_id.
type Pump struct {
	mu    sync.Mutex
	users map[string]map[string]*registration

	delay   time.Duration
	timeout time.Duration
	now     func() time.Time
	newID   func(user string) string
	log     *zap.Logger
}

// Option configura un Pump.
type Option func(*Pump)

// WithDelay fija cuánto espera Listen antes de devolver un batch vacío.
func WithDelay(d time.Duration) Option { return func(p *Pump) { p.delay = d } }

// WithTimeout fija la inactividad tras la cual se borra un registro sin listener.
func WithTimeout(d time.Duration) Option { return func(p *Pump) { p.timeout = d } }

// WithClock reemplaza time.Now.
func WithClock(now func() time.Time) Option { return func(p *Pump) { p.now = now } }

// WithLogger fija el logger.
func WithLogger(l *zap.Logger) Option { return func(p *Pump) { p.log = l } }

func New(opts ...Option) *Pump {
	p := &Pump{
		users:   map[string]map[string]*registration{},
		delay:   DefaultLongPollDelay,
		timeout: DefaultLongPollTimeout,
		now:     time.Now,
		newID:   func(user string) string { return user + "_" + uuid.NewString() },
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	p.log = p.log.Named("pump")
	return p
}

// Push entrega e a cada registro de user y luego barre los registros vencidos.
func (p *Pump) Push(user string, e oplog.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, reg := range p.users[user] {
		if reg.waiter != nil {
			reg.waiter <- []oplog.Entry{e}
			reg.waiter = nil
			metrics.PumpDeliveries.WithLabelValues("immediate").Inc()
			continue
		}
		reg.backlog = append(reg.backlog, e)
		p.log.Debug("backlogged", logger.UserID(user), logger.RegID(id), logger.SHA(e.Op.SHA))
	}
	p.sweepLocked()
}

func (p *Pump) sweepLocked() {
	now := p.now()
	for user, regs := range p.users {
		for id, reg := range regs {
			if reg.waiter == nil && now.Sub(reg.lastSeen) > p.timeout {
				delete(regs, id)
				metrics.PumpRegistrations.Dec()
				p.log.Debug("registration expired", logger.UserID(user), logger.RegID(id),
					logger.Count(len(reg.backlog)))
			}
		}
		if len(regs) == 0 {
			delete(p.users, user)
		}
	}
}

// Listen espera entradas para (user, regID). Con regID vacío crea un registro
// nuevo y devuelve su id. Si hay backlog lo devuelve ya, ordenado por fecha.
// Si no, espera hasta el delay y devuelve un batch vacío. Si ctx termina
// antes, lo ya entregado vuelve al backlog.
func (p *Pump) Listen(ctx context.Context, user, regID string) (string, []oplog.Entry, error) {
	if user == "" {
		return "", nil, ErrInvalidUserID
	}

	p.mu.Lock()
	if regID == "" {
		regID = p.newID(user)
	}
	regs, ok := p.users[user]
	if !ok {
		regs = map[string]*registration{}
		p.users[user] = regs
	}
	reg, ok := regs[regID]
	if !ok {
		reg = &registration{}
		regs[regID] = reg
		metrics.PumpRegistrations.Inc()
	}
	reg.lastSeen = p.now()

	if len(reg.backlog) > 0 {
		out := reg.backlog
		reg.backlog = nil
		p.mu.Unlock()
		oplog.SortEntries(out)
		metrics.PumpDeliveries.WithLabelValues("backlog").Add(float64(len(out)))
		return regID, out, nil
	}
	if reg.waiter != nil {
		p.mu.Unlock()
		return regID, nil, ErrCallbackPending
	}
	w := make(chan []oplog.Entry, 1)
	reg.waiter = w
	p.mu.Unlock()

	timer := time.NewTimer(p.delay)
	defer timer.Stop()

	select {
	case out := <-w:
		return regID, out, nil
	case <-timer.C:
		if p.release(reg, w) {
			return regID, []oplog.Entry{}, nil
		}
		return regID, <-w, nil
	case <-ctx.Done():
		if !p.release(reg, w) {
			out := <-w
			p.mu.Lock()
			reg.backlog = append(out, reg.backlog...)
			p.mu.Unlock()
		}
		return regID, nil, ctx.Err()
	}
}

// release quita w como listener; false si un Push ya lo consumió.
func (p *Pump) release(reg *registration, w chan []oplog.Entry) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if reg.waiter != w {
		return false
	}
	reg.waiter = nil
	reg.lastSeen = p.now()
	return true
}

// Registrations devuelve cuántos registros vivos hay para user.
func (p *Pump) Registrations(user string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.users[user])
}
