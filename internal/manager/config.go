package manager

import (
	"time"

	"github.com/rs/zerolog"

	"llamactx/internal/inference"
	"llamactx/internal/llm"
	"llamactx/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
	defaultDrainTimeout  = 5 * time.Second
	defaultSessionTTL    = 15 * time.Minute
)

// OpenFunc loads a model file through a backend.
type OpenFunc func(backend, path string, opts llm.ModelOptions) (llm.Model, error)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Registry      []types.Model
	BudgetMB      int
	MarginMB      int
	DefaultModel  string
	MaxQueueDepth int
	MaxWait       time.Duration
	DrainTimeout  time.Duration
	// SessionTTL expires idle non-default sessions.
	SessionTTL time.Duration
	// StateDir holds snapshots and LRU metadata. Empty disables both.
	StateDir string

	ModelOptions llm.ModelOptions
	Context      inference.ContextParams
	Generation   inference.GenerateParams

	// Open defaults to llm.Open.
	Open      OpenFunc
	Publisher EventPublisher
	Logger    *zerolog.Logger
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		state:        StateReady,
		registry:     cfg.Registry,
		budgetMB:     cfg.BudgetMB,
		marginMB:     cfg.MarginMB,
		defaultModel: cfg.DefaultModel,
		stateDir:     cfg.StateDir,
		modelOpts:    cfg.ModelOptions,
		ctxParams:    cfg.Context,
		genParams:    cfg.Generation,
		open:         cfg.Open,
		publisher:    cfg.Publisher,
		instances:    make(map[string]*Instance),
		now:          time.Now,
	}
	if cfg.MaxQueueDepth <= 0 {
		m.maxQueueDepth = defaultMaxQueueDepth
	} else {
		m.maxQueueDepth = cfg.MaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		m.maxWait = defaultMaxWait
	} else {
		m.maxWait = cfg.MaxWait
	}
	if cfg.DrainTimeout <= 0 {
		m.drainTimeout = defaultDrainTimeout
	} else {
		m.drainTimeout = cfg.DrainTimeout
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if m.open == nil {
		m.open = llm.Open
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	} else {
		m.log = zerolog.Nop()
	}
	m.sessions = newSessionCache(m, ttl)
	m.loadLRUMetadata()
	m.startTime = time.Now()
	return m
}
