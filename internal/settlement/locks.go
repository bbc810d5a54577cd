package settlement

import "sync"

// PairLocker serializes work per (sub-account, security) pair. Settlement
// and aggregation must hold the pair lock across their read-then-mutate
// sequence; different pairs proceed in parallel.
type PairLocker struct {
	mu    sync.Mutex
	locks map[string]*pairLock
}

type pairLock struct {
	mu   sync.Mutex
	refs int
}

func NewPairLocker() *PairLocker {
	return &PairLocker{locks: make(map[string]*pairLock)}
}

// Lock acquires the lock for the given pair and returns its release
// function.
func (p *PairLocker) Lock(subAccountID, securityID string) func() {
	key := subAccountID + "|" + securityID

	p.mu.Lock()
	entry, ok := p.locks[key]
	if !ok {
		entry = &pairLock{}
		p.locks[key] = entry
	}
	entry.refs++
	p.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		p.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(p.locks, key)
		}
		p.mu.Unlock()
	}
}
