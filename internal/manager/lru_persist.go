package manager

import (
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"llamactx/internal/common/fsutil"
)

type lruRecord struct {
	LastUsedUnix int64 `json:"last_used_unix"`
	EstVRAMMB    int   `json:"est_vram_mb"`
}

func snapshotDir(stateDir string) string { return filepath.Join(stateDir, "snapshots") }

func (m *Manager) lruPath() string {
	if m.stateDir == "" {
		return ""
	}
	dir, err := fsutil.ExpandHome(m.stateDir)
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "lru.json")
}

// loadLRUMetadata reads per-model estimates recorded by a previous run.
func (m *Manager) loadLRUMetadata() {
	p := m.lruPath()
	if p == "" {
		return
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return
	}
	var data map[string]lruRecord
	if err := json.Unmarshal(b, &data); err == nil {
		m.lruMeta = data
	}
}

// saveLRUMetadata records the loaded instances, merged over older records.
func (m *Manager) saveLRUMetadata() error {
	p := m.lruPath()
	if p == "" {
		return nil
	}
	snap := make(map[string]lruRecord, len(m.lruMeta))
	for id, rec := range m.lruMeta {
		snap[id] = rec
	}
	m.mu.RLock()
	for id, inst := range m.instances {
		snap[id] = lruRecord{LastUsedUnix: inst.LastUsed.Unix(), EstVRAMMB: inst.EstVRAMMB}
	}
	m.mu.RUnlock()
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(p, b, 0o644)
}
