package dispatcher

import (
	"context"
	"sync"

	"github.com/wesleyorama2/surge/internal/vu"
)

// Factory builds the VU with the given id. The pool starts it.
type Factory func(id uint64) *vu.VirtualUser

// Pool owns the VUs of a run.
//
// Reconcile decides and applies spawn/retire actions under a single lock,
// so consecutive calls always see an exact live count.
type Pool struct {
	mu      sync.Mutex
	factory Factory
	vus     []*vu.VirtualUser // spawn order, stopped VUs pruned on reconcile
	nextID  uint64
	spawned int
	retired int

	wg sync.WaitGroup
}

// NewPool creates an empty pool.
func NewPool(factory Factory) *Pool {
	return &Pool{factory: factory}
}

// Reconcile moves the pool toward desired VUs.
//
// Spawns desired-live VUs when desired exceeds the live count (draining VUs
// are still live). Retires active-desired VUs, oldest first, when desired is
// below the active count. In-flight iterations are never interrupted.
func (p *Pool) Reconcile(ctx context.Context, desired int) (spawned, retired int) {
	if desired < 0 {
		desired = 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.prune()
	live, active := p.counts()

	switch {
	case desired > live:
		for i := 0; i < desired-live; i++ {
			p.spawn(ctx)
			spawned++
		}
	case desired < active:
		excess := active - desired
		for _, v := range p.vus {
			if retired == excess {
				break
			}
			if v.RequestDrain() {
				retired++
			}
		}
		p.retired += retired
	}

	return spawned, retired
}

// spawn starts one VU. Callers hold p.mu.
func (p *Pool) spawn(ctx context.Context) {
	p.nextID++
	v := p.factory(p.nextID)
	p.vus = append(p.vus, v)
	p.spawned++

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		v.Run(ctx)
	}()
}

// prune drops stopped VUs. Callers hold p.mu.
func (p *Pool) prune() {
	kept := p.vus[:0]
	for _, v := range p.vus {
		if v.State() != vu.StateStopped {
			kept = append(kept, v)
		}
	}
	for i := len(kept); i < len(p.vus); i++ {
		p.vus[i] = nil
	}
	p.vus = kept
}

// counts returns live (not stopped) and active (starting or running) VUs.
// Callers hold p.mu.
func (p *Pool) counts() (live, active int) {
	for _, v := range p.vus {
		switch v.State() {
		case vu.StateStopped:
		case vu.StateDraining:
			live++
		default:
			live++
			active++
		}
	}
	return live, active
}

// Live returns the number of VUs that have not stopped.
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	live, _ := p.counts()
	return live
}

// Active returns the number of VUs that are starting or running.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, active := p.counts()
	return active
}

// Spawned returns how many VUs have been started over the pool's lifetime.
func (p *Pool) Spawned() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spawned
}

// Retired returns how many VUs have been asked to drain by Reconcile or DrainAll.
func (p *Pool) Retired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retired
}

// VUs returns the tracked VUs in spawn order.
func (p *Pool) VUs() []*vu.VirtualUser {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*vu.VirtualUser, len(p.vus))
	copy(out, p.vus)
	return out
}

// DrainAll asks every VU to stop after its current iteration and returns the
// number of VUs newly draining.
func (p *Pool) DrainAll() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, v := range p.vus {
		if v.RequestDrain() {
			n++
		}
	}
	p.retired += n
	return n
}

// Wait blocks until every spawned VU goroutine has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
