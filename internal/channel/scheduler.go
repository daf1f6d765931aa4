package channel

import (
	"context"
	"sync"
)

// scheduler corre fn por clave con a lo sumo una corrida activa y una pendiente:
// los pedidos que llegan mientras corre se funden en una sola corrida más.
// Claves distintas corren en paralelo.
type scheduler struct {
	run func(typ, path string)

	mu      sync.Mutex
	entries map[string]*slot
	stopped bool
	wg      sync.WaitGroup
}

type slot struct {
	typ, path string
	pending   bool
}

func newScheduler(run func(typ, path string)) *scheduler {
	return &scheduler{run: run, entries: map[string]*slot{}}
}

// schedule pide una corrida para (typ, path); nunca corre en el goroutine que llama.
func (s *scheduler) schedule(typ, path string) {
	k := typ + "\x00" + path
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if e, ok := s.entries[k]; ok {
		e.pending = true
		return
	}
	e := &slot{typ: typ, path: path}
	s.entries[k] = e
	s.wg.Add(1)
	go s.loop(k, e)
}

func (s *scheduler) loop(k string, e *slot) {
	defer s.wg.Done()
	for {
		s.run(e.typ, e.path)

		s.mu.Lock()
		if e.pending && !s.stopped {
			e.pending = false
			s.mu.Unlock()
			continue
		}
		delete(s.entries, k)
		s.mu.Unlock()
		return
	}
}

// stop descarta lo pendiente y espera las corridas activas hasta que ctx termine.
func (s *scheduler) stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// idle indica si no hay corridas activas ni pendientes.
func (s *scheduler) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries) == 0
}
