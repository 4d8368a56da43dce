package manager

import (
	"context"
	"fmt"
	"time"
)

// EnsureInstance loads modelID if it is not loaded yet, evicting idle
// instances to fit the VRAM budget, and opens its default session.
// Concurrent callers for the same model wait for a single load.
func (m *Manager) EnsureInstance(ctx context.Context, modelID string) error {
	startTs := time.Now()
	if modelID == "" {
		modelID = m.defaultModel
		if modelID == "" {
			return nil
		}
	}

	m.mu.Lock()
	if inst, ok := m.instances[modelID]; ok && inst != nil {
		switch inst.State {
		case StateReady:
			inst.LastUsed = m.now()
			m.mu.Unlock()
			return nil
		case StateLoading:
			m.mu.Unlock()
			select {
			case <-inst.loaded:
				return inst.loadErr
			case <-ctx.Done():
				return ctx.Err()
			}
		case StateDraining:
			m.mu.Unlock()
			return tooBusyError{target: modelID}
		}
	}
	m.mu.Unlock()

	m.log.Info().Str("event", "ensure_start").Str("model", modelID).Msg("manager")
	m.publish(Event{Name: "ensure_start", ModelID: modelID, Fields: map[string]any{}})

	mdl, ok := m.getModelByID(modelID)
	if !ok {
		m.log.Warn().Str("event", "ensure_model_not_found").Str("model", modelID).Msg("manager")
		m.publish(Event{Name: "ensure_model_not_found", ModelID: modelID, Fields: map[string]any{}})
		return ErrModelNotFound(modelID)
	}
	reqMB := m.estimateVRAMMB(mdl)

	if m.budgetMB > 0 {
		if err := m.evictUntilFits(reqMB); err != nil {
			m.log.Warn().Str("event", "ensure_budget_fail").Str("model", modelID).Err(err).Msg("manager")
			m.publish(Event{Name: "ensure_budget_fail", ModelID: modelID, Fields: map[string]any{"error": err.Error()}})
			return err
		}
	}

	backend := mdl.Backend
	if backend == "" {
		backend = "llama"
	}
	inst := &Instance{
		ID:        modelID,
		Backend:   backend,
		State:     StateLoading,
		LastUsed:  m.now(),
		EstVRAMMB: reqMB,
		loaded:    make(chan struct{}),
	}
	m.mu.Lock()
	if other, ok := m.instances[modelID]; ok && other != nil {
		// Lost a race with another loader; wait on theirs.
		m.mu.Unlock()
		return m.EnsureInstance(ctx, modelID)
	}
	m.instances[modelID] = inst
	m.usedEstMB += reqMB
	m.state = StateLoading
	m.mu.Unlock()

	err := m.loadInstance(inst, mdl.Path)

	m.mu.Lock()
	inst.loadErr = err
	if err != nil {
		delete(m.instances, modelID)
		m.usedEstMB -= reqMB
		m.err = err.Error()
		m.state = StateReady
		if !m.anyReadyLocked() {
			m.state = StateError
		}
	} else {
		inst.State = StateReady
		inst.LastUsed = m.now()
		m.cur = &ModelInfo{ID: modelID, Name: mdl.Name, Path: mdl.Path, Backend: backend}
		m.state = StateReady
		m.err = ""
		m.loadsTotal++
	}
	m.mu.Unlock()
	close(inst.loaded)

	if err != nil {
		m.log.Error().Str("event", "ensure_load_error").Str("model", modelID).Err(err).Msg("manager")
		m.publish(Event{Name: "ensure_load_error", ModelID: modelID, Fields: map[string]any{"error": err.Error()}})
		return err
	}
	dur := time.Since(startTs)
	m.log.Info().Str("event", "ensure_ready").Str("model", modelID).Dur("dur", dur).Msg("manager")
	m.publish(Event{Name: "ensure_ready", ModelID: modelID, Fields: map[string]any{"dur_ms": int(dur / time.Millisecond)}})
	return nil
}

// loadInstance opens the model and its default session.
func (m *Manager) loadInstance(inst *Instance, path string) error {
	model, err := m.open(inst.Backend, path, m.modelOpts)
	if err != nil {
		if IsDependencyUnavailable(err) {
			return dependencyUnavailableError{msg: "backend " + inst.Backend, cause: err}
		}
		return fmt.Errorf("load %s: %w", inst.ID, err)
	}
	s, err := m.newSession(inst.ID, model, m.ctxParams, true)
	if err != nil {
		_ = model.Close()
		return err
	}
	inst.model = model
	inst.defaultSession = s.ID
	return nil
}

func (m *Manager) anyReadyLocked() bool {
	for _, inst := range m.instances {
		if inst.State == StateReady {
			return true
		}
	}
	return false
}
