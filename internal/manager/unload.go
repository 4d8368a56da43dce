package manager

import (
	"time"

	"go.uber.org/multierr"
)

// Unload initiates a graceful drain of a model instance and removes it.
//   - Sets instance state to draining to reject new enqueues.
//   - Waits up to drainTimeout for in-flight and queued requests to finish.
//   - Closes every session and frees the model.
func (m *Manager) Unload(modelID string) error {
	if modelID == "" {
		return ErrModelNotFound("(unspecified)")
	}
	m.mu.Lock()
	inst := m.instances[modelID]
	if inst == nil || inst.State == StateLoading {
		m.mu.Unlock()
		return ErrModelNotFound(modelID)
	}
	if inst.State == StateDraining {
		m.mu.Unlock()
		return nil
	}
	inst.State = StateDraining
	m.mu.Unlock()
	m.publish(Event{Name: "unload_start", ModelID: modelID, Fields: map[string]any{}})

	deadline := time.Now().Add(m.drainTimeout)
	for {
		busy, queued := 0, 0
		for _, s := range m.sessionsOf(modelID) {
			busy += len(s.genCh)
			queued += len(s.queueCh)
		}
		if busy == 0 && queued == 0 {
			break
		}
		if time.Now().After(deadline) {
			m.log.Warn().Str("event", "unload_timeout").Str("model", modelID).Int("inflight", busy).Int("queue", queued).Msg("manager")
			m.publish(Event{Name: "unload_timeout", ModelID: modelID, Fields: map[string]any{"inflight": busy, "queue": queued}})
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	err := m.removeInstance(inst)
	m.publish(Event{Name: "unload_done", ModelID: modelID, Fields: map[string]any{}})
	return err
}

// removeInstance closes the sessions and model of a draining instance and
// drops it from the table.
func (m *Manager) removeInstance(inst *Instance) error {
	for _, s := range m.sessionsOf(inst.ID) {
		m.dropSession(s)
	}
	var err error
	if inst.model != nil {
		err = multierr.Append(err, inst.model.Close())
	}
	m.mu.Lock()
	if m.instances[inst.ID] == inst {
		delete(m.instances, inst.ID)
		m.usedEstMB -= inst.EstVRAMMB
		if m.usedEstMB < 0 {
			m.usedEstMB = 0
		}
	}
	if m.cur != nil && m.cur.ID == inst.ID {
		m.cur = nil
	}
	m.mu.Unlock()
	return err
}
