// Package kv implements the Application Master's watchable key-value
// store (§4.B): a strongly consistent in-memory map with blocking get
// semantics, used as the primary rendezvous mechanism between dependent
// services. Waiters are per-key, one-shot completion handles registered
// under the store's lock (§9 design note), woken on absent->present
// transitions only.
package kv

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/skein-project/skein/pkg/metrics"
)

// ErrNotFound is returned by Get when wait is false and the key is absent.
var ErrNotFound = errors.New("kv: key not found")

// waiter is a one-shot completion handle: ch (buffered, capacity 1)
// receives the value exactly once, from the Set that moves the key from
// absent to present; it is never closed.
type waiter struct {
	ch chan string
}

// Store is a linearizable, watchable string->string map.
type Store struct {
	mu      sync.Mutex
	values  map[string]string
	waiters map[string][]*waiter
	rev     uint64
	log     zerolog.Logger
}

// New returns an empty store.
func New(log zerolog.Logger) *Store {
	return &Store{
		values:  make(map[string]string),
		waiters: make(map[string][]*waiter),
		log:     log,
	}
}

// Get returns the value for key. If the key is present it returns
// immediately. If absent and wait is false, it fails with ErrNotFound. If
// absent and wait is true, it blocks until the key is set or ctx is
// cancelled, in which case it returns ctx.Err().
func (s *Store) Get(ctx context.Context, key string, wait bool) (string, error) {
	s.mu.Lock()
	if v, ok := s.values[key]; ok {
		s.mu.Unlock()
		metrics.KVOperationsTotal.WithLabelValues("get", "hit").Inc()
		return v, nil
	}
	if !wait {
		s.mu.Unlock()
		metrics.KVOperationsTotal.WithLabelValues("get", "not_found").Inc()
		return "", ErrNotFound
	}

	w := &waiter{ch: make(chan string, 1)}
	s.waiters[key] = append(s.waiters[key], w)
	s.mu.Unlock()

	metrics.KVWaitersGauge.Inc()
	defer metrics.KVWaitersGauge.Dec()

	select {
	case v := <-w.ch:
		metrics.KVOperationsTotal.WithLabelValues("get", "woken").Inc()
		return v, nil
	case <-ctx.Done():
		s.removeWaiter(key, w)
		metrics.KVOperationsTotal.WithLabelValues("get", "cancelled").Inc()
		return "", ctx.Err()
	}
}

// removeWaiter drops w from key's waiter list if it's still registered.
// Called on cancellation so a late Set does not try to deliver to a dead
// caller (§5 cancellation guarantee).
func (s *Store) removeWaiter(key string, w *waiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.waiters[key]
	for i, c := range ws {
		if c == w {
			s.waiters[key] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(s.waiters[key]) == 0 {
		delete(s.waiters, key)
	}
}

// Set is an unconditional upsert. On an absent->present transition it
// wakes every waiter registered on key with a single set, in one atomic
// step under the store's lock.
func (s *Store) Set(key, val string) {
	s.mu.Lock()
	_, existed := s.values[key]
	s.values[key] = val
	s.rev++

	var woken []*waiter
	if !existed {
		woken = s.waiters[key]
		delete(s.waiters, key)
	}
	s.mu.Unlock()

	for _, w := range woken {
		w.ch <- val
	}
	metrics.KVOperationsTotal.WithLabelValues("set", "ok").Inc()
	s.log.Debug().Str("key", key).Bool("created", !existed).Msg("kv set")
}

// Del removes key if present. Idempotent. Deletion never wakes waiters;
// a wait=true Get issued after Del blocks until a value actually
// reappears.
func (s *Store) Del(key string) {
	s.mu.Lock()
	_, existed := s.values[key]
	delete(s.values, key)
	if existed {
		s.rev++
	}
	s.mu.Unlock()
	metrics.KVOperationsTotal.WithLabelValues("del", "ok").Inc()
}

// GetAll returns a snapshot of every key/value pair currently stored.
func (s *Store) GetAll() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Snapshot returns the same data as GetAll plus the monotonic revision
// counter, incremented on every mutating operation, so callers can detect
// "did anything change" without diffing values key by key.
func (s *Store) Snapshot() (map[string]string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, s.rev
}
