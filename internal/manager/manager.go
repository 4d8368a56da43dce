package manager

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"llamactx/internal/inference"
	"llamactx/internal/llm"
	"llamactx/internal/snapshot"
	"llamactx/pkg/types"
)

type Manager struct {
	mu           sync.RWMutex
	state        State
	cur          *ModelInfo
	err          string
	registry     []types.Model
	budgetMB     int
	marginMB     int
	defaultModel string
	stateDir     string

	instances map[string]*Instance
	usedEstMB int
	sessions  *ttlcache.Cache[string, *Session]

	modelOpts llm.ModelOptions
	ctxParams inference.ContextParams
	genParams inference.GenerateParams
	open      OpenFunc

	// Queue config
	maxQueueDepth int
	maxWait       time.Duration
	drainTimeout  time.Duration

	publisher EventPublisher
	log       zerolog.Logger
	now       func() time.Time
	startTime time.Time

	loadsTotal     uint64
	evictionsTotal uint64
	lruMeta        map[string]lruRecord

	storeOnce sync.Once
	store     *snapshot.Store
	storeErr  error

	closeOnce sync.Once
}

func New(reg []types.Model, budgetMB, marginMB int, defaultModel string) *Manager {
	return NewWithConfig(ManagerConfig{
		Registry:     reg,
		BudgetMB:     budgetMB,
		MarginMB:     marginMB,
		DefaultModel: defaultModel,
	})
}

// Ready reports whether any instance can serve requests. With nothing
// loaded yet the manager is ready as long as a default model is known.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == StateError {
		return false
	}
	for _, inst := range m.instances {
		if inst.State == StateReady {
			return true
		}
	}
	if m.defaultModel == "" {
		return false
	}
	_, ok := m.getModelByIDLocked(m.defaultModel)
	return ok
}

func (m *Manager) ListModels() []types.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Model, len(m.registry))
	copy(out, m.registry)
	return out
}

// SetRegistry replaces the model list, e.g. after a rescan. Loaded
// instances are left alone.
func (m *Manager) SetRegistry(reg []types.Model) {
	m.mu.Lock()
	m.registry = append([]types.Model(nil), reg...)
	m.mu.Unlock()
}

// DefaultModel returns the configured default model id.
func (m *Manager) DefaultModel() string { return m.defaultModel }

// SetPublisher replaces the lifecycle event sink. Nil restores the no-op.
func (m *Manager) SetPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	m.mu.Lock()
	m.publisher = p
	m.mu.Unlock()
}

func (m *Manager) publish(e Event) {
	m.mu.RLock()
	p := m.publisher
	m.mu.RUnlock()
	if e.At.IsZero() {
		e.At = m.now()
	}
	p.Publish(e)
}
