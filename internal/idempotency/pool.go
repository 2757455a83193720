// Package idempotency issues Idempotency-Key values, replaying recently
// issued keys on request to exercise duplicate detection.
package idempotency

import (
	"sync"

	"github.com/pulse-events/loadgen/internal/random"
)

// DefaultCapacity is the number of recent keys retained for replay.
const DefaultCapacity = 100

// KeyLength is the number of random characters after the key prefix.
const KeyLength = 16

// KeyPrefix starts every issued key.
const KeyPrefix = "idem_"

// KeyPool is a fixed-capacity ring of recently issued keys. When full,
// issuing a fresh key evicts the oldest one. It is safe for concurrent use.
type KeyPool struct {
	mu   sync.Mutex
	src  random.Source
	keys []string
	head int // index of the oldest key once the ring is full
}

// NewKeyPool creates an empty pool. A capacity below 1 selects
// DefaultCapacity.
func NewKeyPool(src random.Source, capacity int) *KeyPool {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &KeyPool{
		src:  src,
		keys: make([]string, 0, capacity),
	}
}

// Issue returns a key for the next request. With wantDuplicate set and a
// non-empty pool it returns a uniformly chosen existing key and
// replayed=true without changing the pool. Otherwise it mints a fresh key,
// retains it and returns replayed=false; an empty pool therefore never
// fails a duplicate request.
func (p *KeyPool) Issue(wantDuplicate bool) (key string, replayed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if wantDuplicate && len(p.keys) > 0 {
		return p.keys[p.src.IntN(len(p.keys))], true
	}

	key = KeyPrefix + random.String(p.src, KeyLength)
	if len(p.keys) < cap(p.keys) {
		p.keys = append(p.keys, key)
		return key, false
	}
	p.keys[p.head] = key
	p.head = (p.head + 1) % len(p.keys)
	return key, false
}

// Len returns the number of keys currently retained.
func (p *KeyPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Cap returns the pool capacity.
func (p *KeyPool) Cap() int {
	return cap(p.keys)
}

// Contains reports whether key is currently retained.
func (p *KeyPool) Contains(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range p.keys {
		if k == key {
			return true
		}
	}
	return false
}
