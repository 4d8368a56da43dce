package manager

import (
	"context"
	"time"
)

// beginGeneration reserves a queue slot and then the single in-flight slot
// of a session. Returns a release func to be deferred.
func (m *Manager) beginGeneration(ctx context.Context, s *Session) (func(), error) {
	if s.closed.Load() {
		return func() {}, ErrSessionNotFound(s.ID)
	}
	// Reject new work while the instance drains.
	m.mu.RLock()
	inst := m.instances[s.ModelID]
	draining := inst != nil && inst.State == StateDraining
	m.mu.RUnlock()
	if draining {
		return func() {}, tooBusyError{target: s.ModelID}
	}

	if err := ctx.Err(); err != nil {
		return func() {}, err
	}

	timer := time.NewTimer(m.maxWait)
	defer timer.Stop()
	select {
	case s.queueCh <- struct{}{}:
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, tooBusyError{target: s.ID}
	}

	acquired := false
	defer func() {
		if !acquired {
			<-s.queueCh
		}
	}()
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	timer2 := time.NewTimer(m.maxWait)
	defer timer2.Stop()
	select {
	case s.genCh <- struct{}{}:
		if s.closed.Load() {
			<-s.genCh
			return func() {}, ErrSessionNotFound(s.ID)
		}
		acquired = true
		now := m.now()
		s.touch(now)
		m.mu.Lock()
		if inst := m.instances[s.ModelID]; inst != nil {
			inst.LastUsed = now
		}
		m.mu.Unlock()
		return func() { <-s.genCh; <-s.queueCh; s.touch(m.now()) }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer2.C:
		return func() {}, tooBusyError{target: s.ID}
	}
}
