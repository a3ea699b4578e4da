// Package observe provides a mutable value whose changes can be watched.
package observe

import "sync"

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 16

// Value holds the latest T and fans each publication out to subscribers in order.
// A subscriber that falls DefaultBuffer values behind loses its oldest pending
// value, never the newest.
type Value[T any] struct {
	mu   sync.Mutex
	cur  T
	next uint64
	subs map[uint64]chan T
}

// New returns a Value holding initial.
func New[T any](initial T) *Value[T] {
	return &Value[T]{cur: initial, subs: make(map[uint64]chan T)}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Set publishes x.
func (v *Value[T]) Set(x T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.publishLocked(x)
}

// Subscribe returns a channel that first yields the current value and then every
// later publication. cancel closes the channel; calling it twice is safe.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.next
	v.next++
	ch := make(chan T, DefaultBuffer)
	ch <- v.cur
	v.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			delete(v.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers reports the number of live subscriptions.
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

func (v *Value[T]) publishLocked(x T) {
	v.cur = x
	for _, ch := range v.subs {
		select {
		case ch <- x:
		default:
			// Full: evict the oldest pending value to make room for x.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- x:
			default:
			}
		}
	}
}
