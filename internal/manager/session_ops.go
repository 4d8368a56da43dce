package manager

import (
	"fmt"

	"llamactx/internal/inference"
	"llamactx/internal/snapshot"
	"llamactx/pkg/types"
)

// Cancel asks the session's current generation to stop after the token
// in progress. It is a no-op on an idle session.
func (m *Manager) Cancel(id string) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}
	s.ictx.Cancel()
	return nil
}

// Reset clears the decode memory and restarts the sampler of a session.
func (m *Manager) Reset(id string) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}
	return s.ictx.Reset()
}

// ClearKV clears the decode memory of a session only.
func (m *Manager) ClearKV(id string) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}
	return s.ictx.ClearKVCache()
}

// Stats reports the performance counters of a session.
func (m *Manager) Stats(id string) (types.StatsResponse, error) {
	s, err := m.session(id)
	if err != nil {
		return types.StatsResponse{}, err
	}
	st, ok := s.ictx.Stats()
	if !ok {
		return types.StatsResponse{}, inference.ErrNotReady
	}
	return types.StatsResponse{
		Session:               id,
		StartMs:               st.StartMs,
		LoadMs:                st.LoadMs,
		PromptEvalMs:          st.PromptEvalMs,
		EvalMs:                st.EvalMs,
		PromptEvalTokens:      st.PromptEvalTokens,
		EvalTokens:            st.EvalTokens,
		ReusedTokens:          st.ReusedTokens,
		ContextSize:           st.ContextSize,
		PromptTokensPerSecond: st.PromptTokensPerSecond(),
		TokensPerSecond:       st.TokensPerSecond(),
	}, nil
}

// SaveState returns the raw decode state of a session.
func (m *Manager) SaveState(id string) ([]byte, error) {
	s, err := m.session(id)
	if err != nil {
		return nil, err
	}
	return saveState(s)
}

func saveState(s *Session) ([]byte, error) {
	data := s.ictx.SaveState()
	if data == nil {
		if s.ictx.Busy() {
			return nil, inference.ErrBusy
		}
		return nil, inference.ErrNotReady
	}
	return data, nil
}

// LoadState replaces the decode state of a session.
func (m *Manager) LoadState(id string, data []byte) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}
	return s.ictx.LoadState(data)
}

func (m *Manager) snapshots() (*snapshot.Store, error) {
	if m.stateDir == "" {
		return nil, ErrSnapshotsDisabled
	}
	m.storeOnce.Do(func() {
		m.store, m.storeErr = snapshot.Open(snapshotDir(m.stateDir))
	})
	return m.store, m.storeErr
}

// PersistSession writes the session state to the snapshot store under key.
func (m *Manager) PersistSession(id, key string) (types.SnapshotInfo, error) {
	s, err := m.session(id)
	if err != nil {
		return types.SnapshotInfo{}, err
	}
	store, err := m.snapshots()
	if err != nil {
		return types.SnapshotInfo{}, err
	}
	data, err := saveState(s)
	if err != nil {
		return types.SnapshotInfo{}, err
	}
	meta, err := store.Put(key, s.ModelID, data)
	if err != nil {
		return types.SnapshotInfo{}, err
	}
	m.log.Info().Str("event", "snapshot_put").Str("session", id).Str("key", key).
		Int("raw_bytes", meta.RawBytes).Int64("disk_bytes", meta.DiskBytes).Msg("manager")
	return snapshotInfo(meta), nil
}

// RestoreSession loads a stored snapshot into a session. The snapshot must
// have been taken from the same model.
func (m *Manager) RestoreSession(id, key string) (types.SnapshotInfo, error) {
	s, err := m.session(id)
	if err != nil {
		return types.SnapshotInfo{}, err
	}
	store, err := m.snapshots()
	if err != nil {
		return types.SnapshotInfo{}, err
	}
	data, meta, err := store.Get(key)
	if err != nil {
		return types.SnapshotInfo{}, err
	}
	if meta.Model != s.ModelID {
		return types.SnapshotInfo{}, fmt.Errorf("%w: snapshot %q is for model %q, session uses %q",
			inference.ErrInvalidArgument, key, meta.Model, s.ModelID)
	}
	if err := s.ictx.LoadState(data); err != nil {
		return types.SnapshotInfo{}, err
	}
	m.log.Info().Str("event", "snapshot_restore").Str("session", id).Str("key", key).Msg("manager")
	return snapshotInfo(meta), nil
}

// ListSnapshots lists the snapshot store.
func (m *Manager) ListSnapshots() ([]types.SnapshotInfo, error) {
	store, err := m.snapshots()
	if err != nil {
		return nil, err
	}
	metas, err := store.List()
	if err != nil {
		return nil, err
	}
	out := make([]types.SnapshotInfo, 0, len(metas))
	for _, meta := range metas {
		out = append(out, snapshotInfo(meta))
	}
	return out, nil
}

// DeleteSnapshot removes a stored snapshot.
func (m *Manager) DeleteSnapshot(key string) error {
	store, err := m.snapshots()
	if err != nil {
		return err
	}
	return store.Delete(key)
}

func snapshotInfo(meta snapshot.Meta) types.SnapshotInfo {
	return types.SnapshotInfo{
		Key:         meta.Key,
		Model:       meta.Model,
		RawBytes:    meta.RawBytes,
		DiskBytes:   meta.DiskBytes,
		CreatedUnix: meta.CreatedAt.Unix(),
	}
}
