package rig

import (
	"sync"

	"github.com/carozario/Yadav-Lab-Headfix-training/internal/model"
)

// TunableStore holds the live parameter set. The tick loop is the only
// writer (every mutation funnels through the command path); the lock exists
// for concurrent readers on the control socket.
type TunableStore struct {
	mu  sync.RWMutex
	tun model.Tunables
}

func NewTunableStore(initial model.Tunables) *TunableStore {
	return &TunableStore{tun: initial}
}

// Snapshot returns a copy for one tick's evaluation; components never read
// the store mid-tick.
func (s *TunableStore) Snapshot() model.Tunables {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tun
}

// Update applies a mutation atomically.
func (s *TunableStore) Update(fn func(*model.Tunables)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.tun)
}
