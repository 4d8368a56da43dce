// Package sampler implements the ordered token-selection pipeline:
// top-k, top-p, min-p, penalties, temperature and a seeded weighted draw.
package sampler

import (
	"errors"
	"math"
	"time"
)

// ErrNoCandidates is returned when there is nothing to sample from.
var ErrNoCandidates = errors.New("sampler: no candidates")

// Params configures a Pipeline. Use DefaultParams and override fields.
type Params struct {
	TopK             int
	TopP             float32
	MinP             float32
	Temperature      float32
	RepeatPenalty    float32
	FrequencyPenalty float32
	PresencePenalty  float32
	// PenaltyLastN is the penalty window; -1 means the whole context, 0 disables.
	PenaltyLastN int
	Seed         uint32
}

// DefaultParams returns the defaults with a wall-clock seed.
func DefaultParams() Params {
	return Params{
		TopK:          40,
		TopP:          0.9,
		Temperature:   0.7,
		RepeatPenalty: 1,
		PenaltyLastN:  64,
		Seed:          uint32(time.Now().Unix()),
	}
}

// Clamp brings every field into its valid range. NaN falls back to the
// neutral value of the field.
func (p Params) Clamp() Params {
	p.TopK = max(p.TopK, 0)
	p.TopP = clampUnit(p.TopP, 1)
	p.MinP = clampUnit(p.MinP, 0)
	if isNaN(p.Temperature) {
		p.Temperature = 0.7
	}
	p.Temperature = max(p.Temperature, 0)
	if isNaN(p.RepeatPenalty) {
		p.RepeatPenalty = 1
	}
	if isNaN(p.FrequencyPenalty) {
		p.FrequencyPenalty = 0
	}
	if isNaN(p.PresencePenalty) {
		p.PresencePenalty = 0
	}
	p.PenaltyLastN = max(p.PenaltyLastN, -1)
	return p
}

// penalized reports whether the penalty stage changes anything.
func (p Params) penalized() bool {
	return p.RepeatPenalty != 1 || p.FrequencyPenalty != 0 || p.PresencePenalty != 0
}

// Pipeline is an ordered set of stages. It is not safe for concurrent use.
type Pipeline struct {
	params Params
	stages []Stage
	cands  Candidates
}

// New builds a pipeline. nCtx resolves PenaltyLastN == -1.
func New(p Params, nCtx int) *Pipeline {
	p = p.Clamp()
	stages := []Stage{
		topK{k: p.TopK},
		topP{p: p.TopP, minKeep: 1},
	}
	if p.MinP > 0 {
		stages = append(stages, minP{p: p.MinP, minKeep: 1})
	}
	if p.penalized() {
		lastN := p.PenaltyLastN
		if lastN < 0 {
			lastN = max(nCtx, 0)
		}
		stages = append(stages, newPenalties(lastN, p.RepeatPenalty, p.FrequencyPenalty, p.PresencePenalty))
	}
	stages = append(stages, temperature{t: p.Temperature}, newDist(p.Seed))
	return &Pipeline{params: p, stages: stages}
}

// Params returns the clamped configuration.
func (pl *Pipeline) Params() Params { return pl.params }

// StageNames lists the stages in execution order.
func (pl *Pipeline) StageNames() []string {
	out := make([]string, len(pl.stages))
	for i, s := range pl.stages {
		out[i] = s.Name()
	}
	return out
}

// Sample runs every stage over logits and returns the drawn token id.
func (pl *Pipeline) Sample(logits []float32) (int32, error) {
	if len(logits) == 0 {
		return 0, ErrNoCandidates
	}
	pl.cands.reset(logits)
	for _, s := range pl.stages {
		s.Apply(&pl.cands)
		if len(pl.cands.Items) == 0 {
			return 0, ErrNoCandidates
		}
	}
	if pl.cands.Selected < 0 {
		return 0, ErrNoCandidates
	}
	return pl.cands.Items[pl.cands.Selected].ID, nil
}

// Accept records tok in the stage histories.
func (pl *Pipeline) Accept(tok int32) {
	for _, s := range pl.stages {
		s.Accept(tok)
	}
}

// Reset clears histories and reseeds the draw. Parameters are kept.
func (pl *Pipeline) Reset() {
	for _, s := range pl.stages {
		s.Reset()
	}
}

func clampUnit(v, nan float32) float32 {
	if isNaN(v) {
		return nan
	}
	return min(max(v, 0), 1)
}

func isNaN(v float32) bool { return math.IsNaN(float64(v)) }
