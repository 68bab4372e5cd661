package service

import "sync"

// keyedLock serialises work per key while unrelated keys proceed in parallel.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *keyedLock) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// generations counts cache evictions per key so a reader that loaded a row
// before a write committed does not put it back into the cache afterwards.
type generations struct {
	locks *keyedLock
	mu    sync.Mutex
	byKey map[string]uint64
}

func newGenerations() *generations {
	return &generations{locks: newKeyedLock(), byKey: make(map[string]uint64)}
}

func (g *generations) current(key string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.byKey[key]
}

// bump advances the generation of key and runs fn while no fill can slip in.
func (g *generations) bump(key string, fn func()) {
	unlock := g.locks.Lock(key)
	defer unlock()
	g.mu.Lock()
	g.byKey[key]++
	g.mu.Unlock()
	fn()
}

// fill runs fn only if key has not been bumped since seen was read.
func (g *generations) fill(key string, seen uint64, fn func()) bool {
	unlock := g.locks.Lock(key)
	defer unlock()
	if g.current(key) != seen {
		return false
	}
	fn()
	return true
}
