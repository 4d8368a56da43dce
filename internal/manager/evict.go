package manager

// evictUntilFits unloads idle instances, least recently used first, until
// requiredMB fits within budget minus margin.
func (m *Manager) evictUntilFits(requiredMB int) error {
	for {
		m.mu.Lock()
		free := m.budgetMB - m.usedEstMB - m.marginMB
		if requiredMB <= free {
			m.mu.Unlock()
			return nil
		}
		victim := m.evictionVictimLocked()
		if victim == nil {
			m.mu.Unlock()
			return budgetExceededError{requiredMB: requiredMB, freeMB: max(free, 0)}
		}
		victim.State = StateDraining
		m.evictionsTotal++
		m.mu.Unlock()

		m.log.Info().Str("event", "evict").Str("model", victim.ID).Int("need_mb", requiredMB).Int("free_mb", free).Msg("manager")
		m.publish(Event{Name: "evict", ModelID: victim.ID, Fields: map[string]any{"need_mb": requiredMB, "free_mb": free}})
		if err := m.removeInstance(victim); err != nil {
			m.log.Warn().Str("event", "evict_close_error").Str("model", victim.ID).Err(err).Msg("manager")
		}
	}
}

// evictionVictimLocked picks the ready instance with the oldest LastUsed
// whose sessions are all idle. Loading and draining instances are skipped.
func (m *Manager) evictionVictimLocked() *Instance {
	var victim *Instance
	for _, inst := range m.instances {
		if inst.State != StateReady || !m.instanceIdleLocked(inst.ID) {
			continue
		}
		if victim == nil || inst.LastUsed.Before(victim.LastUsed) {
			victim = inst
		}
	}
	return victim
}

// instanceIdleLocked reports whether no session of modelID is generating
// or queued.
func (m *Manager) instanceIdleLocked(modelID string) bool {
	for _, s := range m.sessionsOf(modelID) {
		if !s.idle() {
			return false
		}
	}
	return true
}
