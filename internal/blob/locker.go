package blob

import (
	"context"
	"sync"
)

// Locker es una cola FIFO de exclusión por clave. Las claves se normalizan con
// CleanKey, así "a//b" y "/a/b" comparten turno igual que comparten dato.
// El valor cero está listo para usarse.
type Locker struct {
	mu     sync.Mutex
	queues map[string][]chan struct{}
}

// Lock espera el turno de key en orden de llegada. Si ctx se cancela antes,
// abandona la cola y devuelve ctx.Err().
func (l *Locker) Lock(ctx context.Context, key string) (Release, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	ticket := make(chan struct{})

	l.mu.Lock()
	if l.queues == nil {
		l.queues = map[string][]chan struct{}{}
	}
	q := l.queues[key]
	l.queues[key] = append(q, ticket)
	if len(q) == 0 {
		close(ticket)
	}
	l.mu.Unlock()

	select {
	case <-ticket:
		return l.release(key, ticket), nil
	case <-ctx.Done():
	}

	l.mu.Lock()
	q = l.queues[key]
	if len(q) > 0 && q[0] == ticket {
		// el turno llegó junto con la cancelación
		l.mu.Unlock()
		l.release(key, ticket)()
		return nil, ctx.Err()
	}
	for i, t := range q {
		if t == ticket {
			l.queues[key] = append(q[:i:i], q[i+1:]...)
			break
		}
	}
	l.mu.Unlock()
	return nil, ctx.Err()
}

func (l *Locker) release(key string, ticket chan struct{}) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			q := l.queues[key]
			if len(q) == 0 || q[0] != ticket {
				return
			}
			q = q[1:]
			if len(q) == 0 {
				delete(l.queues, key)
				return
			}
			l.queues[key] = q
			close(q[0])
		})
	}
}

// Pending devuelve cuántos turnos (incluido el activo) hay para key.
func (l *Locker) Pending(key string) int {
	if k, err := CleanKey(key); err == nil {
		key = k
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queues[key])
}
