package manager

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"llamactx/internal/inference"
	"llamactx/internal/llm"
	"llamactx/pkg/types"
)

func newSessionCache(m *Manager, ttl time.Duration) *ttlcache.Cache[string, *Session] {
	c := ttlcache.New[string, *Session](ttlcache.WithTTL[string, *Session](ttl))
	c.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Session]) {
		s := item.Value()
		if s.closed.Load() {
			return
		}
		// Never take m.mu while the cache may hold its own lock.
		go func() {
			if reason == ttlcache.EvictionReasonExpired {
				m.log.Info().Str("event", "session_expired").Str("session", s.ID).Str("model", s.ModelID).Msg("manager")
				m.publish(Event{Name: "session_expired", ModelID: s.ModelID, SessionID: s.ID})
			}
			m.shutdownSession(s)
		}()
	})
	go c.Start()
	return c
}

func (m *Manager) newSession(modelID string, model llm.Model, params inference.ContextParams, isDefault bool) (*Session, error) {
	id := uuid.NewString()
	ictx := inference.New(inference.WithLogger(m.log.With().Str("model", modelID).Str("session", id).Logger()))
	if err := ictx.Create(model, params.Merge(m.ctxParams)); err != nil {
		return nil, err
	}
	s := &Session{
		ID:      id,
		ModelID: modelID,
		Default: isDefault,
		Created: m.now(),
		ictx:    ictx,
		genCh:   make(chan struct{}, 1),
		queueCh: make(chan struct{}, m.maxQueueDepth),
	}
	if st, ok := ictx.Stats(); ok {
		s.nctx = st.ContextSize
	}
	s.touch(s.Created)
	ttl := ttlcache.DefaultTTL
	if isDefault {
		ttl = ttlcache.NoTTL
	}
	m.sessions.Set(id, s, ttl)
	sessionsOpen.Inc()
	m.publish(Event{Name: "session_open", ModelID: modelID, SessionID: id, Fields: map[string]any{"default": isDefault}})
	return s, nil
}

// shutdownSession cancels any generation, waits for it to finish and
// frees the context. Safe to call more than once.
func (m *Manager) shutdownSession(s *Session) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.ictx.Cancel()
	deadline := time.Now().Add(m.drainTimeout)
	for {
		err := s.ictx.Close()
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			m.log.Warn().Str("event", "session_close_timeout").Str("session", s.ID).Err(err).Msg("manager")
			break
		}
		s.ictx.Cancel()
		time.Sleep(10 * time.Millisecond)
	}
	sessionsOpen.Dec()
	m.publish(Event{Name: "session_close", ModelID: s.ModelID, SessionID: s.ID})
}

// session looks up an open session and refreshes its expiry.
func (m *Manager) session(id string) (*Session, error) {
	item := m.sessions.Get(id)
	if item == nil || item.Value().closed.Load() {
		return nil, ErrSessionNotFound(id)
	}
	s := item.Value()
	s.touch(m.now())
	return s, nil
}

// defaultSession returns the default session of a ready instance,
// reopening it if it was closed.
func (m *Manager) defaultSession(modelID string) (*Session, error) {
	m.mu.RLock()
	inst := m.instances[modelID]
	var id string
	var model llm.Model
	if inst != nil && inst.State == StateReady {
		id, model = inst.defaultSession, inst.model
	}
	m.mu.RUnlock()
	if model == nil {
		return nil, ErrModelNotFound(modelID)
	}
	if s, err := m.session(id); err == nil {
		return s, nil
	}
	s, err := m.newSession(modelID, model, m.ctxParams, true)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	if inst.defaultSession == id {
		inst.defaultSession = s.ID
		m.mu.Unlock()
		return s, nil
	}
	// Someone else replaced it first.
	winner := inst.defaultSession
	m.mu.Unlock()
	m.dropSession(s)
	return m.session(winner)
}

// resolveSession picks the named session or the default session of the
// request's model, loading the model when needed.
func (m *Manager) resolveSession(ctx context.Context, modelID, sessionID string) (*Session, error) {
	if sessionID != "" {
		s, err := m.session(sessionID)
		if err != nil {
			return nil, err
		}
		if modelID != "" && modelID != s.ModelID {
			return nil, inference.ErrInvalidArgument
		}
		return s, nil
	}
	id, err := m.resolveModelID(modelID)
	if err != nil {
		return nil, err
	}
	if err := m.EnsureInstance(ctx, id); err != nil {
		return nil, err
	}
	return m.defaultSession(id)
}

func (m *Manager) dropSession(s *Session) {
	m.shutdownSession(s)
	m.sessions.Delete(s.ID)
}

// OpenSession creates a new session on modelID (or the default model)
// with the given context overrides.
func (m *Manager) OpenSession(ctx context.Context, modelID string, params inference.ContextParams) (types.SessionInfo, error) {
	id, err := m.resolveModelID(modelID)
	if err != nil {
		return types.SessionInfo{}, err
	}
	if err := m.EnsureInstance(ctx, id); err != nil {
		return types.SessionInfo{}, err
	}
	m.mu.RLock()
	inst := m.instances[id]
	var model llm.Model
	if inst != nil && inst.State == StateReady {
		model = inst.model
	}
	m.mu.RUnlock()
	if model == nil {
		return types.SessionInfo{}, ErrModelNotFound(id)
	}
	s, err := m.newSession(id, model, params, false)
	if err != nil {
		return types.SessionInfo{}, err
	}
	m.log.Info().Str("event", "session_open").Str("session", s.ID).Str("model", id).Int("n_ctx", s.nctx).Msg("manager")
	return s.info(), nil
}

// CloseSession cancels and frees a session. Closing a default session
// is allowed; the next request on its model opens a fresh one.
func (m *Manager) CloseSession(id string) error {
	item := m.sessions.Get(id, ttlcache.WithDisableTouchOnHit[string, *Session]())
	if item == nil || item.Value().closed.Load() {
		return ErrSessionNotFound(id)
	}
	m.dropSession(item.Value())
	return nil
}

// SessionInfo describes one session.
func (m *Manager) SessionInfo(id string) (types.SessionInfo, error) {
	s, err := m.session(id)
	if err != nil {
		return types.SessionInfo{}, err
	}
	return s.info(), nil
}

// Sessions lists open sessions sorted by model then creation time.
func (m *Manager) Sessions() []types.SessionInfo {
	var out []types.SessionInfo
	for _, item := range m.sessions.Items() {
		s := item.Value()
		if s.closed.Load() {
			continue
		}
		out = append(out, s.info())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Model != out[j].Model {
			return out[i].Model < out[j].Model
		}
		if out[i].CreatedUnix != out[j].CreatedUnix {
			return out[i].CreatedUnix < out[j].CreatedUnix
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// sessionsOf returns the open sessions bound to modelID.
func (m *Manager) sessionsOf(modelID string) []*Session {
	var out []*Session
	for _, item := range m.sessions.Items() {
		if s := item.Value(); s.ModelID == modelID && !s.closed.Load() {
			out = append(out, s)
		}
	}
	return out
}

func (s *Session) info() types.SessionInfo {
	return types.SessionInfo{
		ID:          s.ID,
		Model:       s.ModelID,
		NCtx:        s.nctx,
		Busy:        s.ictx.Busy(),
		Default:     s.Default,
		CreatedUnix: s.Created.Unix(),
		LastUsed:    s.lastUsed.Load(),
		QueueLen:    len(s.queueCh),
	}
}
