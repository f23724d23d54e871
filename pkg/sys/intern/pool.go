// Package intern maps repeated strings onto small integer IDs. Capability
// names repeat across nearly every package in an image (every ELF package
// requires libc.so.6 and friends), so indexing by uint32 instead of string
// keeps the resolver's provider tables compact.
package intern

import "sync"

// InvalidID is never allocated; it stands for the empty string.
const InvalidID uint32 = 0

// Pool allocates stable 1-based IDs for strings. The zero value is not
// usable; construct with NewPool.
type Pool struct {
	mu      sync.RWMutex
	store   map[string]uint32
	reverse []string
}

func NewPool() *Pool {
	return &Pool{
		store:   make(map[string]uint32),
		reverse: make([]string, 0, 1024),
	}
}

// Get returns the unique ID for s, allocating one on first sight.
func (p *Pool) Get(s string) uint32 {
	if s == "" {
		return InvalidID
	}

	p.mu.RLock()
	id, ok := p.store[s]
	p.mu.RUnlock()
	if ok {
		return id
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.store[s]; ok {
		return id
	}
	p.reverse = append(p.reverse, s)
	id = uint32(len(p.reverse))
	p.store[s] = id
	return id
}

// Lookup returns the ID for s without allocating, or InvalidID.
func (p *Pool) Lookup(s string) uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.store[s]
}

// Str returns the string for the given ID, or "" for unknown IDs.
func (p *Pool) Str(id uint32) string {
	if id == InvalidID {
		return ""
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	idx := int(id) - 1
	if idx < 0 || idx >= len(p.reverse) {
		return ""
	}
	return p.reverse[idx]
}

// Len reports how many distinct strings the pool holds.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.reverse)
}
