package manager

import "go.uber.org/multierr"

// Close cancels every session, frees all models, records LRU metadata and
// closes the snapshot store. Errors are combined.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		err = multierr.Append(err, m.saveLRUMetadata())
		m.sessions.Stop()
		m.mu.Lock()
		insts := make([]*Instance, 0, len(m.instances))
		for _, inst := range m.instances {
			if inst.State != StateLoading {
				inst.State = StateDraining
				insts = append(insts, inst)
			}
		}
		m.mu.Unlock()
		for _, inst := range insts {
			err = multierr.Append(err, m.removeInstance(inst))
		}
		for _, item := range m.sessions.Items() {
			m.dropSession(item.Value())
		}
		m.storeOnce.Do(func() {})
		if m.store != nil {
			err = multierr.Append(err, m.store.Close())
		}
		m.log.Info().Str("event", "close").Int("instances", len(insts)).Msg("manager")
	})
	return err
}
