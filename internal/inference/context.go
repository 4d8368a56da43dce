// Package inference binds a loaded model to one decode state and runs
// incremental, cancellable token generation over it.
//
// A Context starts unconfigured. Create allocates the decode state, after
// which SetPrompt and Generate (or GenerateStream) produce text. At most one
// generation runs at a time; a second call fails fast with ErrBusy. Cancel
// may be called from any goroutine and is observed before the next token.
package inference

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"llamactx/internal/llm"
	"llamactx/internal/sampler"
)

// Context owns one native decode state and its sampler pipeline. The model
// is borrowed and must outlive the Context.
type Context struct {
	mu      sync.Mutex
	running atomic.Bool
	cancel  atomic.Bool

	created bool
	model   llm.Model
	dec     llm.Decoder
	pipe    *sampler.Pipeline
	params  llm.DecoderParams
	prompt  string
	last    Result

	pub Publisher
	log zerolog.Logger
	now func() time.Time
}

// Option customizes a Context.
type Option func(*Context)

// WithPublisher sets the event sink. The default drops events.
func WithPublisher(p Publisher) Option {
	return func(c *Context) {
		if p != nil {
			c.pub = p
		}
	}
}

// WithLogger sets the logger. The default is zerolog.Nop.
func WithLogger(l zerolog.Logger) Option { return func(c *Context) { c.log = l } }

// WithClock replaces the wall clock used for default seeds.
func WithClock(now func() time.Time) Option {
	return func(c *Context) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns an unconfigured Context.
func New(opts ...Option) *Context {
	c := &Context{pub: noopPublisher{}, log: zerolog.Nop(), now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Create binds model and allocates a fresh decode state, releasing any
// previous one first. Nil fields of p take the defaults.
func (c *Context) Create(model llm.Model, p ContextParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running.Load() {
		return ErrBusy
	}
	c.releaseLocked()
	if model == nil || !model.Loaded() {
		return newError(CodeUnconfigured, "model is not loaded", nil)
	}
	dp, err := p.Resolve()
	if err != nil {
		return err
	}
	dec, err := model.NewDecoder(dp)
	if err != nil {
		c.log.Warn().Err(err).Str("code", string(CodeCreationFailed)).Msg("create decode state")
		return newError(CodeCreationFailed, "failed to create decode state", err)
	}
	c.model, c.dec, c.params = model, dec, dp
	c.pipe = sampler.New(defaultPipelineParams(c.now()), dec.ContextSize())
	c.created = true
	c.log.Debug().
		Uint32("n_ctx", dp.NCtx).
		Uint32("n_batch", dp.NBatch).
		Int32("threads", dp.Threads).
		Int32("threads_batch", dp.ThreadsBatch).
		Msg("context created")
	return nil
}

// releaseLocked frees the decode state. Caller holds mu.
func (c *Context) releaseLocked() error {
	var err error
	if c.dec != nil {
		if err = c.dec.Close(); err != nil {
			c.log.Warn().Err(err).Msg("release decode state")
		}
	}
	c.created = false
	c.model, c.dec, c.pipe = nil, nil, nil
	c.params = llm.DecoderParams{}
	return err
}

// Close releases the decode state and returns the Context to unconfigured.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running.Load() {
		return ErrBusy
	}
	return c.releaseLocked()
}

// Reset clears the KV cache, the native counters and the sampler history.
// It is a no-op before Create.
func (c *Context) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running.Load() {
		return ErrBusy
	}
	if c.dec == nil {
		return nil
	}
	c.dec.ClearMemory()
	c.dec.ResetPerf()
	if c.pipe != nil {
		c.pipe.Reset()
	}
	return nil
}

// ClearKVCache drops cached tokens only.
func (c *Context) ClearKVCache() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running.Load() {
		return ErrBusy
	}
	if c.dec != nil {
		c.dec.ClearMemory()
	}
	return nil
}

// SetPrompt replaces the prompt used by the next generation.
func (c *Context) SetPrompt(text string) {
	c.mu.Lock()
	c.prompt = text
	c.mu.Unlock()
}

func (c *Context) Prompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt
}

// Model returns the bound model, or nil.
func (c *Context) Model() llm.Model {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// Initialized reports whether Create succeeded and the state is live.
func (c *Context) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readyLocked()
}

// Busy reports whether a generation is in flight.
func (c *Context) Busy() bool { return c.running.Load() }

// Cancel asks the running generation to stop before its next token.
func (c *Context) Cancel() { c.cancel.Store(true) }

// Params returns the resolved decode-state parameters.
func (c *Context) Params() llm.DecoderParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// StageNames lists the active sampler stages.
func (c *Context) StageNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pipe == nil {
		return nil
	}
	return c.pipe.StageNames()
}

// LastResult describes the most recent generation.
func (c *Context) LastResult() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Context) readyLocked() bool {
	return c.model != nil && c.model.Loaded() && c.dec != nil && c.pipe != nil
}
