package core

import "fmt"

// IDPool hands out the smallest positive integer not currently held. Id 0 is
// reserved and never allocated.
type IDPool struct {
	used map[int]struct{}
	next int
}

// NewIDPool creates an empty pool.
func NewIDPool() *IDPool {
	return &IDPool{used: make(map[int]struct{}), next: 1}
}

// Allocate reserves and returns the smallest unused positive id.
func (p *IDPool) Allocate() int {
	for {
		if _, taken := p.used[p.next]; !taken {
			break
		}
		p.next++
	}
	id := p.next
	p.used[id] = struct{}{}
	p.next++
	return id
}

// Assign returns existing when it is already held by the pool, otherwise a
// freshly allocated id. Calling it again with the returned id is a no-op.
func (p *IDPool) Assign(existing int) int {
	if existing > 0 && p.InUse(existing) {
		return existing
	}
	return p.Allocate()
}

// Claim reserves a specific id, as needed when restoring persisted records.
func (p *IDPool) Claim(id int) error {
	if id <= 0 {
		return fmt.Errorf("claiming id %d: ids must be positive", id)
	}
	if _, taken := p.used[id]; taken {
		return fmt.Errorf("claiming id %d: already in use", id)
	}
	p.used[id] = struct{}{}
	return nil
}

// Release returns id to the pool so a later Allocate may reuse it.
func (p *IDPool) Release(id int) {
	if _, taken := p.used[id]; !taken {
		return
	}
	delete(p.used, id)
	if id < p.next {
		p.next = id
	}
}

// InUse reports whether id is currently held.
func (p *IDPool) InUse(id int) bool {
	_, taken := p.used[id]
	return taken
}

// Len returns the number of held ids.
func (p *IDPool) Len() int {
	return len(p.used)
}
