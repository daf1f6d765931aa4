package channel

import "sync"

// dispatcher entrega los Update en orden de llegada desde un goroutine propio.
// Los suscriptores nunca corren dentro de un push ni de un syncprune, así que
// pueden llamar Kill, Get o Push del mismo canal.
type dispatcher struct {
	deliver func(Update)

	mu      sync.Mutex
	queue   []Update
	busy    bool
	stopped bool
	wake    chan struct{}
}

func newDispatcher(deliver func(Update)) *dispatcher {
	d := &dispatcher{deliver: deliver, wake: make(chan struct{}, 1)}
	go d.loop()
	return d
}

// enqueue nunca bloquea.
func (d *dispatcher) enqueue(u Update) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, u)
	d.mu.Unlock()
	d.signal()
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) loop() {
	for range d.wake {
		for {
			d.mu.Lock()
			if d.stopped {
				d.queue = nil
				d.mu.Unlock()
				return
			}
			if len(d.queue) == 0 {
				d.busy = false
				d.mu.Unlock()
				break
			}
			u := d.queue[0]
			d.queue[0] = Update{}
			d.queue = d.queue[1:]
			d.busy = true
			d.mu.Unlock()

			d.deliver(u)
		}
	}
}

// stop descarta lo encolado y no espera la entrega en curso: puede llamarse
// desde un suscriptor.
func (d *dispatcher) stop() {
	d.mu.Lock()
	d.stopped = true
	d.queue = nil
	d.mu.Unlock()
	d.signal()
}

func (d *dispatcher) idle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue) == 0 && !d.busy
}
