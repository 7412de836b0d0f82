package amm

import (
	"sync"

	"rugpullsim/internal/model"
)

// poolLocks serializes operations per pool id. Different pools never share a
// mutex.
type poolLocks struct {
	mu    sync.Mutex
	locks map[model.PoolID]*sync.Mutex
}

func newPoolLocks() *poolLocks {
	return &poolLocks{locks: make(map[model.PoolID]*sync.Mutex)}
}

// lock acquires the mutex for id and returns its release func.
func (l *poolLocks) lock(id model.PoolID) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
