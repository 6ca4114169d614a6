// Package local implements a single-process, in-memory lock manager,
// adapted from the teacher's lib/lockmgr CAS-over-a-store pattern
// (AcquireLock/ReleaseLock with a random owner-ID token) generalized from
// a single string key per lock to a key range plus access mode.
package local

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftfs/itemcache/itemcache"
	"github.com/driftfs/itemcache/key"
	"github.com/driftfs/itemcache/lockmgr"
)

// lease is one outstanding grant held by the manager.
type lease struct {
	start, end key.Key
	mode       itemcache.Mode
	ownerID    []byte
	expiresAt  time.Time // zero value means no timeout
}

func (l *lease) expired(now time.Time) bool {
	return !l.expiresAt.IsZero() && now.After(l.expiresAt)
}

// Manager is a reference lockmgr.ILockManager backed by a slice of leases
// under a single mutex — adequate for a single process, not for a cluster
// (that is what lockmgr/raftlock is for).
type Manager struct {
	mu     sync.Mutex
	leases []*lease
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) AcquireLock(_ context.Context, start, end key.Key, mode itemcache.Mode, timeoutSeconds uint64) (bool, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.pruneExpiredLocked(now)

	for _, l := range m.leases {
		if lockmgr.Conflicts(mode, l.mode) && lockmgr.Overlaps(start, end, l.start, l.end) {
			return false, nil, nil
		}
	}

	ownerID, err := uuid.NewRandom()
	if err != nil {
		return false, nil, err
	}

	l := &lease{start: start, end: end, mode: mode, ownerID: ownerID[:]}
	if timeoutSeconds > 0 {
		l.expiresAt = now.Add(time.Duration(timeoutSeconds) * time.Second)
	}
	m.leases = append(m.leases, l)

	return true, l.ownerID, nil
}

func (m *Manager) ReleaseLock(_ context.Context, start, end key.Key, ownerID []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneExpiredLocked(time.Now())

	for i, l := range m.leases {
		if key.Compare(l.start, start) == 0 && key.Compare(l.end, end) == 0 && bytes.Equal(l.ownerID, ownerID) {
			m.leases = append(m.leases[:i], m.leases[i+1:]...)
			return true, nil
		}
	}
	// a lease over the same range held by another owner stays held.
	for _, l := range m.leases {
		if key.Compare(l.start, start) == 0 && key.Compare(l.end, end) == 0 {
			return false, nil
		}
	}
	// lease not found (already released or expired) is not an error.
	return true, nil
}

// pruneExpiredLocked drops timed-out leases. Called with mu held.
func (m *Manager) pruneExpiredLocked(now time.Time) {
	if len(m.leases) == 0 {
		return
	}
	live := m.leases[:0]
	for _, l := range m.leases {
		if !l.expired(now) {
			live = append(live, l)
		}
	}
	m.leases = live
}

var _ lockmgr.ILockManager = (*Manager)(nil)
