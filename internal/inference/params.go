package inference

import (
	"fmt"
	"math"
	"runtime"
	"time"

	"llamactx/internal/llm"
	"llamactx/internal/sampler"
)

// Defaults applied when a parameter is absent.
const (
	DefaultNCtx          = 2048
	DefaultNBatch        = 512
	DefaultMaxTokens     = 128
	DefaultTemperature   = 0.7
	DefaultTopP          = 0.9
	DefaultMinP          = 0.0
	DefaultTopK          = 40
	DefaultRepeatPenalty = 1.0
	DefaultPenaltyLastN  = 64
)

// DefaultThreads is one less than the processor count, at least 1.
func DefaultThreads() int { return max(runtime.NumCPU()-1, 1) }

// Ptr returns a pointer to v, for filling optional parameters.
func Ptr[T any](v T) *T { return &v }

// ContextParams overrides decode-state defaults. Nil fields use the default.
type ContextParams struct {
	NCtx         *int `json:"n_ctx,omitempty" yaml:"n_ctx,omitempty" toml:"n_ctx,omitempty"`
	NBatch       *int `json:"n_batch,omitempty" yaml:"n_batch,omitempty" toml:"n_batch,omitempty"`
	Threads      *int `json:"threads,omitempty" yaml:"threads,omitempty" toml:"threads,omitempty"`
	ThreadsBatch *int `json:"threads_batch,omitempty" yaml:"threads_batch,omitempty" toml:"threads_batch,omitempty"`
}

// Merge returns p with nil fields taken from base.
func (p ContextParams) Merge(base ContextParams) ContextParams {
	if p.NCtx == nil {
		p.NCtx = base.NCtx
	}
	if p.NBatch == nil {
		p.NBatch = base.NBatch
	}
	if p.Threads == nil {
		p.Threads = base.Threads
	}
	if p.ThreadsBatch == nil {
		p.ThreadsBatch = base.ThreadsBatch
	}
	return p
}

// Resolve applies defaults. n_batch also sets the micro-batch. Negative
// sizes are rejected; thread counts below 1 become 1.
func (p ContextParams) Resolve() (llm.DecoderParams, error) {
	nctx, nbatch := DefaultNCtx, DefaultNBatch
	threads, threadsBatch := DefaultThreads(), DefaultThreads()
	if p.NCtx != nil {
		nctx = *p.NCtx
	}
	if p.NBatch != nil {
		nbatch = *p.NBatch
	}
	if nctx < 0 || int64(nctx) > math.MaxUint32 {
		return llm.DecoderParams{}, newError(CodeInvalidArgument, fmt.Sprintf("n_ctx %d out of range", nctx), nil)
	}
	if nbatch < 0 || int64(nbatch) > math.MaxUint32 {
		return llm.DecoderParams{}, newError(CodeInvalidArgument, fmt.Sprintf("n_batch %d out of range", nbatch), nil)
	}
	if p.Threads != nil {
		threads = *p.Threads
	}
	if p.ThreadsBatch != nil {
		threadsBatch = *p.ThreadsBatch
	}
	return llm.DecoderParams{
		NCtx:         uint32(nctx),
		NBatch:       uint32(nbatch),
		NUBatch:      uint32(nbatch),
		Threads:      int32(min(max(threads, 1), math.MaxInt32)),
		ThreadsBatch: int32(min(max(threadsBatch, 1), math.MaxInt32)),
	}, nil
}

// GenerateParams overrides generation defaults. Nil fields use the default;
// zero is a real value. Stop and StopSequences are merged.
type GenerateParams struct {
	MaxTokens        *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" toml:"max_tokens,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" toml:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty" toml:"top_p,omitempty"`
	MinP             *float64 `json:"min_p,omitempty" yaml:"min_p,omitempty" toml:"min_p,omitempty"`
	TopK             *int     `json:"top_k,omitempty" yaml:"top_k,omitempty" toml:"top_k,omitempty"`
	RepeatPenalty    *float64 `json:"repeat_penalty,omitempty" yaml:"repeat_penalty,omitempty" toml:"repeat_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty" yaml:"frequency_penalty,omitempty" toml:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty" yaml:"presence_penalty,omitempty" toml:"presence_penalty,omitempty"`
	PenaltyLastN     *int     `json:"penalty_last_n,omitempty" yaml:"penalty_last_n,omitempty" toml:"penalty_last_n,omitempty"`
	// Seed -1 means pick one from the wall clock.
	Seed          *int64   `json:"seed,omitempty" yaml:"seed,omitempty" toml:"seed,omitempty"`
	Stop          []string `json:"stop,omitempty" yaml:"stop,omitempty" toml:"stop,omitempty"`
	StopSequences []string `json:"stop_sequences,omitempty" yaml:"stop_sequences,omitempty" toml:"stop_sequences,omitempty"`
}

// Merge returns p with nil fields taken from base. Stop lists are unioned.
func (p GenerateParams) Merge(base GenerateParams) GenerateParams {
	pick := func(dst **float64, src *float64) {
		if *dst == nil {
			*dst = src
		}
	}
	pickInt := func(dst **int, src *int) {
		if *dst == nil {
			*dst = src
		}
	}
	pickInt(&p.MaxTokens, base.MaxTokens)
	pick(&p.Temperature, base.Temperature)
	pick(&p.TopP, base.TopP)
	pick(&p.MinP, base.MinP)
	pickInt(&p.TopK, base.TopK)
	pick(&p.RepeatPenalty, base.RepeatPenalty)
	pick(&p.FrequencyPenalty, base.FrequencyPenalty)
	pick(&p.PresencePenalty, base.PresencePenalty)
	pickInt(&p.PenaltyLastN, base.PenaltyLastN)
	if p.Seed == nil {
		p.Seed = base.Seed
	}
	p.Stop = append(append([]string(nil), base.Stop...), p.Stop...)
	p.StopSequences = append(append([]string(nil), base.StopSequences...), p.StopSequences...)
	return p
}

type resolvedParams struct {
	maxTokens int
	sampler   sampler.Params
	stop      []string
}

// resolve fills defaults and clamps. maxTokens is the positional default
// that the max_tokens key overrides.
func (p GenerateParams) resolve(maxTokens int, now time.Time) resolvedParams {
	r := resolvedParams{maxTokens: maxTokens}
	if p.MaxTokens != nil {
		r.maxTokens = *p.MaxTokens
	}
	sp := sampler.Params{
		TopK:             DefaultTopK,
		TopP:             floatOr(p.TopP, DefaultTopP),
		MinP:             floatOr(p.MinP, DefaultMinP),
		Temperature:      floatOr(p.Temperature, DefaultTemperature),
		RepeatPenalty:    floatOr(p.RepeatPenalty, DefaultRepeatPenalty),
		FrequencyPenalty: floatOr(p.FrequencyPenalty, 0),
		PresencePenalty:  floatOr(p.PresencePenalty, 0),
		PenaltyLastN:     DefaultPenaltyLastN,
		Seed:             clockSeed(now),
	}
	if p.TopK != nil {
		sp.TopK = *p.TopK
	}
	if p.PenaltyLastN != nil {
		sp.PenaltyLastN = *p.PenaltyLastN
	}
	if p.Seed != nil && *p.Seed != -1 {
		sp.Seed = uint32(*p.Seed)
	}
	r.sampler = sp.Clamp()
	for _, list := range [][]string{p.Stop, p.StopSequences} {
		for _, s := range list {
			if s != "" {
				r.stop = append(r.stop, s)
			}
		}
	}
	return r
}

// defaultPipelineParams is the chain installed by Create.
func defaultPipelineParams(now time.Time) sampler.Params {
	return sampler.Params{
		TopK:          DefaultTopK,
		TopP:          DefaultTopP,
		Temperature:   DefaultTemperature,
		RepeatPenalty: DefaultRepeatPenalty,
		PenaltyLastN:  DefaultPenaltyLastN,
		Seed:          clockSeed(now),
	}
}

func clockSeed(now time.Time) uint32 { return uint32(now.Unix()) }

func floatOr(v *float64, def float64) float32 {
	if v == nil || math.IsNaN(*v) {
		return float32(def)
	}
	return float32(*v)
}
