package manager

import (
	"context"

	"github.com/google/uuid"
)

// Switch kicks off an async ensure of modelID and returns an operation ID.
// Callers poll Status() to observe state transitions; the switch_done
// event carries the outcome.
func (m *Manager) Switch(ctx context.Context, modelID string) (string, error) {
	id, err := m.resolveModelID(modelID)
	if err != nil {
		return "", err
	}
	if _, ok := m.getModelByID(id); !ok {
		return "", ErrModelNotFound(id)
	}
	op := uuid.NewString()
	m.publish(Event{Name: "switch_start", ModelID: id, Fields: map[string]any{"op": op}})
	go func() {
		// Detached: the caller's request ends before the load does.
		err := m.EnsureInstance(context.WithoutCancel(ctx), id)
		fields := map[string]any{"op": op}
		if err != nil {
			fields["error"] = err.Error()
		}
		m.publish(Event{Name: "switch_done", ModelID: id, Fields: fields})
	}()
	return op, nil
}
