package store

import (
	"sync"

	"github.com/meridianapps/resilience-core/internal/model"
)

// DefaultCap bounds both the LogEntry and Intervention collections.
const DefaultCap = 50

// MemoryStore provides thread-safe storage for the Core's two collections:
// classified log entries and recorded interventions. Both are bounded; the
// intervention cache evicts oldest-first since entries are audit records
// rather than working data.
type MemoryStore struct {
	mu              sync.RWMutex
	entries         []model.LogEntry
	interventions   []model.Intervention
	entryCap        int
	interventionCap int

	// Interventions recorded or merged during this session, as opposed to
	// cache contents pulled wholesale at startup. Drives the health floor.
	sessionInterventions int

	onChange func()
}

// NewMemoryStore creates a store with the given collection caps.
func NewMemoryStore(entryCap, interventionCap int) *MemoryStore {
	if entryCap <= 0 {
		entryCap = DefaultCap
	}
	if interventionCap <= 0 {
		interventionCap = DefaultCap
	}
	return &MemoryStore{
		entryCap:        entryCap,
		interventionCap: interventionCap,
	}
}

// SetOnChange registers a hook invoked after every mutation, outside the
// store lock. Used to persist the local snapshot.
func (s *MemoryStore) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *MemoryStore) notify() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// AddEntry appends a classified log entry, dropping the oldest beyond the cap.
func (s *MemoryStore) AddEntry(entry model.LogEntry) {
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	if len(s.entries) > s.entryCap {
		s.entries = s.entries[len(s.entries)-s.entryCap:]
	}
	s.mu.Unlock()
	s.notify()
}

// Entries returns a copy of all log entries in arrival order.
func (s *MemoryStore) Entries() []model.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// UnresolvedEntries returns a copy of the entries still awaiting resolution.
func (s *MemoryStore) UnresolvedEntries() []model.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.LogEntry
	for _, e := range s.entries {
		if !e.Resolved {
			out = append(out, e)
		}
	}
	return out
}

// Resolve marks the entry with the given id as resolved. It returns the
// resolved entry so callers can invalidate dedup state, and reports whether
// an unresolved entry was found.
func (s *MemoryStore) Resolve(id string) (entry model.LogEntry, ok bool) {
	s.mu.Lock()
	for i := range s.entries {
		if s.entries[i].ID == id && !s.entries[i].Resolved {
			s.entries[i].Resolved = true
			entry = s.entries[i]
			ok = true
			break
		}
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
	return entry, ok
}

// RestoreEntries seeds the entry collection from a persisted snapshot.
func (s *MemoryStore) RestoreEntries(entries []model.LogEntry) {
	s.mu.Lock()
	if len(entries) > s.entryCap {
		entries = entries[len(entries)-s.entryCap:]
	}
	s.entries = make([]model.LogEntry, len(entries))
	copy(s.entries, entries)
	s.mu.Unlock()
	s.notify()
}

// ClearAll empties the log entry collection and resets the session
// intervention count. This is the only path back to green health.
func (s *MemoryStore) ClearAll() {
	s.mu.Lock()
	s.entries = nil
	s.sessionInterventions = 0
	s.mu.Unlock()
	s.notify()
}

// AddIntervention prepends a locally recorded intervention and trims the
// cache to its cap.
func (s *MemoryStore) AddIntervention(iv model.Intervention) {
	s.mu.Lock()
	s.interventions = prepend(s.interventions, iv, s.interventionCap)
	s.sessionInterventions++
	s.mu.Unlock()
	s.notify()
}

// MergeRemote reconciles a pushed remote record into the cache with id-based
// deduplication. Returns false when the record was already present.
func (s *MemoryStore) MergeRemote(iv model.Intervention) bool {
	s.mu.Lock()
	next, merged := Reconcile(s.interventions, iv, s.interventionCap)
	if merged {
		s.interventions = next
		s.sessionInterventions++
	}
	s.mu.Unlock()
	if merged {
		s.notify()
	}
	return merged
}

// ReplaceInterventions swaps the cache wholesale, as done by the initial
// remote pull. Replaced records do not count toward the session total.
func (s *MemoryStore) ReplaceInterventions(ivs []model.Intervention) {
	s.mu.Lock()
	if len(ivs) > s.interventionCap {
		ivs = ivs[:s.interventionCap]
	}
	s.interventions = make([]model.Intervention, len(ivs))
	copy(s.interventions, ivs)
	s.mu.Unlock()
	s.notify()
}

// Interventions returns a copy of the cache, newest first.
func (s *MemoryStore) Interventions() []model.Intervention {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Intervention, len(s.interventions))
	copy(out, s.interventions)
	return out
}

// RecentInterventions returns up to n of the most recent interventions.
func (s *MemoryStore) RecentInterventions(n int) []model.Intervention {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > len(s.interventions) {
		n = len(s.interventions)
	}
	out := make([]model.Intervention, n)
	copy(out, s.interventions[:n])
	return out
}

// SessionInterventionCount reports how many interventions were recorded or
// merged during this session.
func (s *MemoryStore) SessionInterventionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionInterventions
}

func prepend(ivs []model.Intervention, iv model.Intervention, limit int) []model.Intervention {
	next := make([]model.Intervention, 0, len(ivs)+1)
	next = append(next, iv)
	next = append(next, ivs...)
	if len(next) > limit {
		next = next[:limit]
	}
	return next
}
