package manager

import (
	"sync/atomic"
	"time"

	"llamactx/internal/inference"
	"llamactx/internal/llm"
)

// State represents lifecycle state of the manager/instances.
type State string

const (
	StateReady    State = "ready"
	StateLoading  State = "loading"
	StateDraining State = "draining"
	StateError    State = "error"
)

// ModelInfo is a minimal view of the current model.
type ModelInfo struct {
	ID      string
	Name    string
	Path    string
	Backend string
}

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State        State
	CurrentModel *ModelInfo
	Err          string
}

// Instance is one loaded model. Sessions hold decode states over it.
type Instance struct {
	ID        string
	Backend   string
	State     State
	LastUsed  time.Time
	EstVRAMMB int
	// defaultSession serves requests that name no session.
	defaultSession string
	model          llm.Model
	// loaded is closed once the model load finishes (successfully or not).
	loaded  chan struct{}
	loadErr error
}

// Session is an inference context bound to an instance, with its own
// admission queue: one in-flight generation, bounded waiters.
type Session struct {
	ID       string
	ModelID  string
	Default  bool
	Created  time.Time
	ictx     *inference.Context
	nctx     int
	genCh    chan struct{} // size 1: single in-flight generation
	queueCh  chan struct{} // buffered: queue slots
	lastUsed atomic.Int64
	closed   atomic.Bool
}

func (s *Session) touch(now time.Time) { s.lastUsed.Store(now.Unix()) }

// idle reports whether nothing holds or waits for the session.
func (s *Session) idle() bool { return len(s.genCh) == 0 && len(s.queueCh) == 0 }
