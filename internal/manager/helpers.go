package manager

import (
	"os"

	"llamactx/pkg/types"
)

// Helper: find model in registry by id.
func (m *Manager) getModelByID(id string) (types.Model, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getModelByIDLocked(id)
}

func (m *Manager) getModelByIDLocked(id string) (types.Model, bool) {
	for _, mdl := range m.registry {
		if mdl.ID == id {
			return mdl, true
		}
	}
	return types.Model{}, false
}

// Helper: estimate VRAM based on file size (MB). Falls back to the last
// recorded estimate when the file cannot be read.
func (m *Manager) estimateVRAMMB(mdl types.Model) int {
	fi, err := os.Stat(mdl.Path)
	if err != nil {
		if rec, ok := m.lruMeta[mdl.ID]; ok && rec.EstVRAMMB > 0 {
			return rec.EstVRAMMB
		}
		// Unknown size still counts against the budget.
		return 1
	}
	mb := int(fi.Size() / (1024 * 1024))
	if mb <= 0 {
		mb = 1
	}
	return mb
}

func (m *Manager) resolveModelID(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	if m.defaultModel == "" {
		return "", modelNotFoundError{id: "(unspecified)"}
	}
	return m.defaultModel, nil
}
