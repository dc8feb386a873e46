package service

import (
	"sort"
	"sync"
)

// KeyedLocker hands out one mutex per key. Entries are reference counted and dropped
// once nobody holds or waits on them, so the map only grows with in-flight keys.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free and returns the matching unlock function.
func (l *KeyedLocker) Lock(key string) func() {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &keyedEntry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// LockAll takes every distinct key in sorted order and returns one function releasing them
// all. Callers with overlapping key sets therefore always acquire in the same order.
func (l *KeyedLocker) LockAll(keys ...string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	unlocks := make([]func(), 0, len(sorted))
	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		unlocks = append(unlocks, l.Lock(key))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// size reports how many keys are currently tracked.
func (l *KeyedLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// Lock key helpers. Every path holding both takes user keys before the term key.
func termKey(id interface{ Hex() string }) string { return "term:" + id.Hex() }
func userKey(id interface{ Hex() string }) string { return "user:" + id.Hex() }

// scheduleKey serializes every write that can leave a term scheduled, so overlap checks
// and inserts happen as one step.
const scheduleKey = "schedule"
