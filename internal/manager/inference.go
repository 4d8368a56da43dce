package manager

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"llamactx/internal/inference"
	"llamactx/pkg/types"
)

// streamedError wraps a generation failure that was already reported to
// the client as an NDJSON error line.
type streamedError struct{ err error }

func (e streamedError) Error() string  { return e.err.Error() }
func (e streamedError) Unwrap() error  { return e.err }
func (e streamedError) Streamed() bool { return true }

// IsStreamed reports whether err was already written to the response body,
// so the caller must not write a status or error payload of its own.
func IsStreamed(err error) bool {
	var e interface{ Streamed() bool }
	return errors.As(err, &e) && e.Streamed()
}

// RequestParams maps the optional request fields onto GenerateParams.
func RequestParams(req types.InferRequest) inference.GenerateParams {
	return inference.GenerateParams{
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		MinP:             req.MinP,
		TopK:             req.TopK,
		RepeatPenalty:    req.RepeatPenalty,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		PenaltyLastN:     req.PenaltyLastN,
		Seed:             req.Seed,
		Stop:             req.Stop,
		StopSequences:    req.StopSequences,
	}
}

// ndjson serializes token events to the response as they are produced.
// Write failures cancel the generation.
type ndjson struct {
	mu      sync.Mutex
	w       io.Writer
	flush   func()
	stream  bool
	wrote   bool
	err     error
	onError func()
}

func (n *ndjson) line(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	if _, err := n.w.Write(append(b, '\n')); err != nil {
		n.err = err
		if n.onError != nil {
			n.onError()
		}
		return err
	}
	n.wrote = true
	if n.flush != nil {
		n.flush()
	}
	return nil
}

func (n *ndjson) Publish(e inference.Event) {
	if !n.stream || e.Kind != inference.EventTokenGenerated {
		return
	}
	_ = n.line(types.TokenLine{Token: e.Text, TokenID: e.Token})
}

// Infer runs one generation on the requested session (or the model's
// default session) and writes NDJSON lines to w: one per token when
// req.Stream is set, then a final line.
func (m *Manager) Infer(ctx context.Context, req types.InferRequest, w io.Writer, flusher func()) error {
	s, err := m.resolveSession(ctx, req.Model, req.Session)
	if err != nil {
		return err
	}
	release, err := m.beginGeneration(ctx, s)
	if err != nil {
		return err
	}
	defer release()

	out := &ndjson{w: w, flush: flusher, stream: req.Stream, onError: s.ictx.Cancel}
	params := RequestParams(req).Merge(m.genParams)
	s.ictx.SetPrompt(req.Prompt)
	start := time.Now()
	text, err := s.ictx.GenerateStream(ctx, inference.DefaultMaxTokens, params, out)
	res := s.ictx.LastResult()
	m.observeGeneration(s.ModelID, res, err)

	if err != nil {
		m.log.Warn().Str("event", "infer_error").Str("model", s.ModelID).Str("session", s.ID).
			Str("code", string(inference.CodeOf(err))).Err(err).Msg("manager")
		if !out.wrote {
			return err
		}
		_ = out.line(types.ErrorLine{Done: true, Error: err.Error(), Kind: string(inference.CodeOf(err)), Content: text})
		return streamedError{err: err}
	}
	if out.err != nil {
		return out.err
	}
	m.log.Debug().Str("event", "infer_done").Str("model", s.ModelID).Str("session", s.ID).
		Str("reason", string(res.Reason)).Int("tokens", res.CompletionTokens).Dur("dur", time.Since(start)).Msg("manager")
	return out.line(types.FinalLine{
		Done:         true,
		Content:      text,
		FinishReason: string(res.Reason),
		Usage: types.Usage{
			PromptTokens:     res.PromptTokens,
			CompletionTokens: res.CompletionTokens,
			TotalTokens:      res.PromptTokens + res.CompletionTokens,
		},
		Session:    s.ID,
		DurationMs: res.Duration.Milliseconds(),
	})
}

func (m *Manager) observeGeneration(model string, res inference.Result, err error) {
	if err != nil {
		generationFinish.WithLabelValues(model, string(inference.FinishError)).Inc()
		return
	}
	generationFinish.WithLabelValues(model, string(res.Reason)).Inc()
	generatedTokens.WithLabelValues(model, "prompt").Add(float64(res.PromptTokens))
	generatedTokens.WithLabelValues(model, "completion").Add(float64(res.CompletionTokens))
	generationDuration.WithLabelValues(model).Observe(res.Duration.Seconds())
}
