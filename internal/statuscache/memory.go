package statuscache

import (
	"context"
	"sync"
	"time"

	"github.com/caseforge/docstream/internal/config"
)

// Memory is an in-process Store backed by a mutex-guarded map. Safe for
// concurrent use across workers and gateway connections.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*Snapshot
	ttl     time.Duration

	// to help with testing
	now func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty store whose entries expire ttl after their
// last write.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		entries: make(map[string]*Snapshot),
		ttl:     ttl,
		now:     time.Now,
	}
}

func key(namespace, jobID string) string {
	return namespace + "\x00" + jobID
}

// Update creates the snapshot on first write (setting StartedAt) and
// merges fields on subsequent writes. Every write refreshes UpdatedAt and
// ExpiresAt. The first terminal status sets EndedAt and the derived
// execution time exactly once.
func (m *Memory) Update(_ context.Context, namespace, jobID string, u Update) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	k := key(namespace, jobID)

	snap, ok := m.entries[k]
	if !ok || now.After(snap.ExpiresAt) {
		snap = &Snapshot{
			Namespace: namespace,
			JobID:     jobID,
			Status:    config.SnapshotQueued,
			StartedAt: now,
		}
		m.entries[k] = snap
	}

	if u.Status != "" {
		snap.Status = u.Status
	}
	if u.Phase != "" {
		snap.Phase = u.Phase
	}
	if u.Progress != nil && *u.Progress > snap.Progress {
		snap.Progress = *u.Progress
	}
	if u.Message != "" {
		snap.Message = u.Message
	}
	if u.Error != "" {
		snap.Error = u.Error
	}
	if u.Result != nil {
		snap.Result = u.Result
	}

	snap.UpdatedAt = now
	snap.ExpiresAt = now.Add(m.ttl)

	if snap.Terminal() && snap.EndedAt == nil {
		ended := now
		snap.EndedAt = &ended
		snap.DurationMS = ended.Sub(snap.StartedAt).Milliseconds()
	}

	cp := *snap
	return &cp, nil
}

// Get returns nil when the entry is absent or past expiry. Expired
// entries are removed lazily here; the periodic Sweep handles the rest.
func (m *Memory) Get(_ context.Context, namespace, jobID string) (*Snapshot, error) {
	k := key(namespace, jobID)

	m.mu.RLock()
	snap, ok := m.entries[k]
	if ok && !m.now().After(snap.ExpiresAt) {
		cp := *snap
		m.mu.RUnlock()
		return &cp, nil
	}
	m.mu.RUnlock()

	if !ok {
		return nil, nil
	}

	// Re-check under the write lock: a concurrent Update may have
	// refreshed the entry since the read above.
	m.mu.Lock()
	if cur, ok := m.entries[k]; ok && m.now().After(cur.ExpiresAt) {
		delete(m.entries, k)
	}
	m.mu.Unlock()
	return nil, nil
}

// Delete removes the snapshot if present.
func (m *Memory) Delete(_ context.Context, namespace, jobID string) error {
	m.mu.Lock()
	delete(m.entries, key(namespace, jobID))
	m.mu.Unlock()
	return nil
}

// Sweep deletes all expired entries across namespaces.
func (m *Memory) Sweep(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for k, snap := range m.entries {
		if now.After(snap.ExpiresAt) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Len reports the current entry count, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
