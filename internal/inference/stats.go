package inference

// Stats reports the native counters of a ready Context.
type Stats struct {
	StartMs          float64 `json:"t_start_ms"`
	LoadMs           float64 `json:"t_load_ms"`
	PromptEvalMs     float64 `json:"t_p_eval_ms"`
	EvalMs           float64 `json:"t_eval_ms"`
	PromptEvalTokens int     `json:"n_p_eval"`
	EvalTokens       int     `json:"n_eval"`
	ReusedTokens     int     `json:"n_reused"`
	ContextSize      int     `json:"n_ctx"`
}

// PromptTokensPerSecond is the prompt evaluation rate, 0 without samples.
func (s Stats) PromptTokensPerSecond() float64 { return rate(s.PromptEvalTokens, s.PromptEvalMs) }

// TokensPerSecond is the generation rate, 0 without samples.
func (s Stats) TokensPerSecond() float64 { return rate(s.EvalTokens, s.EvalMs) }

func rate(n int, ms float64) float64 {
	if n == 0 || ms <= 0 {
		return 0
	}
	return float64(n) / (ms / 1000)
}

// Stats returns the counters, or false when the Context is not ready.
func (c *Context) Stats() (Stats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.readyLocked() {
		return Stats{}, false
	}
	p := c.dec.Perf()
	return Stats{
		StartMs:          p.StartMs,
		LoadMs:           p.LoadMs,
		PromptEvalMs:     p.PromptEvalMs,
		EvalMs:           p.EvalMs,
		PromptEvalTokens: p.PromptEvalCount,
		EvalTokens:       p.EvalCount,
		ReusedTokens:     p.Reused,
		ContextSize:      c.dec.ContextSize(),
	}, true
}
