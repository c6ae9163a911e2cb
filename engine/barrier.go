package engine

import "sync"

// Barrier is a reusable rendezvous for a fixed number of parties. The last
// party to arrive runs the release action and wakes everybody else.
type Barrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	parties    int
	remaining  int
	generation uint64
}

// NewBarrier returns a barrier for parties goroutines.
func NewBarrier(parties int) *Barrier {
	b := &Barrier{parties: parties, remaining: parties}
	b.cond = sync.NewCond(&b.mu)

	return b
}

// Wait blocks until all parties have called Wait. release, if not nil, is run
// by the last arriver while holding the barrier lock, before anyone is woken.
func (b *Barrier) Wait(release func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	gen := b.generation

	b.remaining--
	if b.remaining == 0 {
		if release != nil {
			release()
		}

		b.generation++
		b.remaining = b.parties
		b.cond.Broadcast()

		return
	}

	for gen == b.generation {
		b.cond.Wait()
	}
}
