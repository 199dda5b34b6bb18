package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/dnldd/tradedrill/iteration"
	"github.com/dnldd/tradedrill/session"
	"github.com/dnldd/tradedrill/shared"
)

// MemoryStore is an in-process session store, used when no database endpoint is configured.
type MemoryStore struct {
	sessions   map[string]session.Session
	iterations map[string][]IterationRecord
	decisions  map[string][]session.Decision
	mtx        sync.RWMutex
}

// Ensure the memory store implements the SessionStorer interface.
var _ SessionStorer = (*MemoryStore)(nil)

// NewMemoryStore initializes a new in-process session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]session.Session),
		iterations: make(map[string][]IterationRecord),
		decisions:  make(map[string][]session.Decision),
	}
}

// PersistSession stores the provided session and its iterations under a single lock.
func (m *MemoryStore) PersistSession(ctx context.Context, sess *session.Session, iterations []*iteration.Iteration) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if _, ok := m.sessions[sess.ID]; ok {
		return fmt.Errorf("session %s already exists", sess.ID)
	}

	records := make([]IterationRecord, 0, len(iterations))
	for _, iter := range iterations {
		if iter.SessionID != sess.ID {
			return fmt.Errorf("iteration %d belongs to session %s, not %s", iter.Number,
				iter.SessionID, sess.ID)
		}

		records = append(records, IterationRecord{
			ID:          iter.ID,
			SessionID:   iter.SessionID,
			Number:      iter.Number,
			Interval:    iter.Interval,
			StartDate:   iter.StartDate,
			FinishDate:  iter.FinishDate,
			StartPrice:  iter.StartPrice,
			FinishPrice: iter.FinishPrice,
			FixPrice:    iter.FixPrice,
		})
	}

	m.sessions[sess.ID] = *sess
	m.iterations[sess.ID] = records
	return nil
}

// FetchSession returns a copy of the stored session with the provided id.
func (m *MemoryStore) FetchSession(ctx context.Context, sessionID string) (*session.Session, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	stored, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, sessionID)
	}

	return &stored, nil
}

// UpdateSessionStatus stores the current status of the provided session.
func (m *MemoryStore) UpdateSessionStatus(ctx context.Context, sess *session.Session) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	stored, ok := m.sessions[sess.ID]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrSessionNotFound, sess.ID)
	}

	stored.Status = sess.Status
	m.sessions[sess.ID] = stored
	return nil
}

// FetchIterations returns the stored iterations of the provided session.
func (m *MemoryStore) FetchIterations(ctx context.Context, sessionID string) ([]IterationRecord, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	records := m.iterations[sessionID]
	out := make([]IterationRecord, len(records))
	copy(out, records)

	return out, nil
}

// PersistDecision stores the provided decision. A second decision for the same iteration
// is rejected.
func (m *MemoryStore) PersistDecision(ctx context.Context, decision *session.Decision) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if _, ok := m.sessions[decision.SessionID]; !ok {
		return fmt.Errorf("%w: %s", shared.ErrSessionNotFound, decision.SessionID)
	}

	for _, stored := range m.decisions[decision.SessionID] {
		if stored.IterationNumber == decision.IterationNumber {
			return fmt.Errorf("decision %d for session %s already exists",
				decision.IterationNumber, decision.SessionID)
		}
	}

	m.decisions[decision.SessionID] = append(m.decisions[decision.SessionID], *decision)
	return nil
}

// FetchDecisions returns the stored decisions of the provided session in the order
// they were made.
func (m *MemoryStore) FetchDecisions(ctx context.Context, sessionID string) ([]session.Decision, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	decisions := m.decisions[sessionID]
	out := make([]session.Decision, len(decisions))
	copy(out, decisions)

	return out, nil
}
