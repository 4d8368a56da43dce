package inference

import (
	"context"
	"strings"
	"time"

	"llamactx/internal/llm"
	"llamactx/internal/sampler"
	"llamactx/internal/stopseq"
)

// FinishReason says why a generation ended.
type FinishReason string

const (
	FinishLength    FinishReason = "length"
	FinishEOG       FinishReason = "eog"
	FinishStop      FinishReason = "stop"
	FinishCancelled FinishReason = "cancelled"
	FinishError     FinishReason = "error"
)

// Result summarizes one generation call.
type Result struct {
	Text             string
	Reason           FinishReason
	PromptTokens     int
	CompletionTokens int
	Duration         time.Duration
}

// Generate runs the decode loop and returns the produced text. Only the
// finished and error events are published.
func (c *Context) Generate(ctx context.Context, maxTokens int, p GenerateParams) (string, error) {
	return c.generate(ctx, maxTokens, p, false, nil)
}

// GenerateStream is Generate that also publishes one token event per piece,
// to the Context publisher and to every extra publisher.
func (c *Context) GenerateStream(ctx context.Context, maxTokens int, p GenerateParams, extra ...Publisher) (string, error) {
	return c.generate(ctx, maxTokens, p, true, extra)
}

type run struct {
	c      *Context
	extra  []Publisher
	start  time.Time
	result Result
}

func (r *run) emit(e Event) {
	r.c.pub.Publish(e)
	for _, p := range r.extra {
		if p != nil {
			p.Publish(e)
		}
	}
}

// fail publishes the error event and records the result.
func (r *run) fail(text string, err error) (string, error) {
	r.emit(Event{Kind: EventGenerationError, Text: err.Error()})
	r.c.log.Warn().Err(err).Str("code", string(CodeOf(err))).Msg("generation failed")
	r.finish(text, FinishError)
	return text, err
}

func (r *run) finish(text string, reason FinishReason) {
	r.result.Text = text
	r.result.Reason = reason
	r.result.Duration = time.Since(r.start)
	r.c.mu.Lock()
	r.c.last = r.result
	r.c.mu.Unlock()
}

func (c *Context) generate(ctx context.Context, maxTokens int, p GenerateParams, stream bool, extra []Publisher) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !c.running.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	defer c.running.Store(false)

	r := &run{c: c, extra: extra, start: time.Now()}

	c.mu.Lock()
	if !c.created {
		c.mu.Unlock()
		return "", ErrUnconfigured
	}
	if !c.readyLocked() {
		c.mu.Unlock()
		return r.fail("", ErrNotReady)
	}
	if c.prompt == "" {
		c.mu.Unlock()
		return r.fail("", ErrEmptyPrompt)
	}
	model, dec, prompt := c.model, c.dec, c.prompt
	rp := p.resolve(maxTokens, c.now())
	if rp.maxTokens <= 0 {
		c.last = Result{Reason: FinishLength}
		c.mu.Unlock()
		return "", nil
	}
	pipe := sampler.New(rp.sampler, dec.ContextSize())
	c.pipe = pipe
	c.cancel.Store(false)
	c.mu.Unlock()

	tokens, err := model.Tokenize(prompt, true)
	if err != nil {
		return r.fail("", newError(CodeTokenizationFailed, "tokenization failed", err))
	}
	if len(tokens) == 0 {
		return r.fail("", ErrTokenizationFailed)
	}
	r.result.PromptTokens = len(tokens)
	if err := dec.Decode(tokens); err != nil {
		return r.fail("", newError(CodeDecodeFailed, "prompt decode failed", err))
	}

	stop := stopseq.New(rp.stop...)
	var out strings.Builder
	reason := FinishLength
	for i := 0; i < rp.maxTokens; i++ {
		if c.cancel.Load() || ctx.Err() != nil {
			reason = FinishCancelled
			break
		}
		tok, err := pipe.Sample(dec.Logits())
		if err != nil {
			return r.fail(out.String(), newError(CodeDecodeFailed, "sampling failed", err))
		}
		if model.IsEOG(tok) {
			reason = FinishEOG
			break
		}
		piece := model.TokenToPiece(tok)
		out.WriteString(piece)
		r.result.CompletionTokens++
		if cut, ok := stop.Check(out.String()); ok {
			kept := out.String()[:cut]
			out.Reset()
			out.WriteString(kept)
			reason = FinishStop
			break
		}
		if stream {
			r.emit(Event{Kind: EventTokenGenerated, Text: piece, Token: tok})
		}
		pipe.Accept(tok)
		if err := dec.Decode([]llm.Token{tok}); err != nil {
			return r.fail(out.String(), newError(CodeDecodeFailed, "token decode failed", err))
		}
	}

	text := out.String()
	r.emit(Event{Kind: EventGenerationFinished, Text: text})
	r.finish(text, reason)
	c.log.Debug().
		Str("finish_reason", string(reason)).
		Int("prompt_tokens", r.result.PromptTokens).
		Int("completion_tokens", r.result.CompletionTokens).
		Dur("took", r.result.Duration).
		Msg("generation finished")
	return text, nil
}
