package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"llamactx/internal/llm"
	"llamactx/internal/toymodel"
)

const testCorpus = "Q: hi\nA: Hello world! Bye."
const testPrompt = "Q: hi\nA:"
const testAnswer = " Hello world! Bye."

var fixedClock = func() time.Time { return time.Unix(1700000000, 0) }

func greedy() GenerateParams { return GenerateParams{TopK: Ptr(1), Seed: Ptr[int64](1)} }

func newTestContext(t *testing.T, opts toymodel.Options, cp ContextParams) (*Context, *toymodel.Model, *MemoryPublisher) {
	t.Helper()
	m := toymodel.New("test", testCorpus, opts)
	pub := NewMemoryPublisher()
	c := New(WithPublisher(pub), WithClock(fixedClock))
	if err := c.Create(m, cp); err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, m, pub
}

func TestGenerateBeforeCreate(t *testing.T) {
	pub := NewMemoryPublisher()
	c := New(WithPublisher(pub))
	c.SetPrompt("x")
	_, err := c.Generate(context.Background(), 10, GenerateParams{})
	if !errors.Is(err, ErrUnconfigured) {
		t.Fatalf("expected ErrUnconfigured, got %v", err)
	}
	if len(pub.Events()) != 0 {
		t.Fatalf("expected no events, got %v", pub.Events())
	}
	if _, ok := c.Stats(); ok {
		t.Fatalf("stats should be empty before create")
	}
	if c.SaveState() != nil {
		t.Fatalf("state should be empty before create")
	}
	if err := c.LoadState([]byte{1}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if err := c.Reset(); err != nil {
		t.Fatalf("reset before create: %v", err)
	}
}

func TestCreateRequiresLoadedModel(t *testing.T) {
	c := New()
	if err := c.Create(nil, ContextParams{}); CodeOf(err) != CodeUnconfigured {
		t.Fatalf("nil model: got %v", err)
	}
	m := toymodel.New("m", "abc", toymodel.Options{})
	m.Unload()
	if err := c.Create(m, ContextParams{}); CodeOf(err) != CodeUnconfigured {
		t.Fatalf("unloaded model: got %v", err)
	}
}

func TestCreateFailureLeavesUnconfigured(t *testing.T) {
	c := New()
	ok := toymodel.New("ok", "abc", toymodel.Options{})
	if err := c.Create(ok, ContextParams{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	bad := toymodel.New("bad", "abc", toymodel.Options{FailNewDecoder: true})
	err := c.Create(bad, ContextParams{})
	if !errors.Is(err, ErrCreationFailed) {
		t.Fatalf("expected ErrCreationFailed, got %v", err)
	}
	if c.Initialized() || c.Model() != nil {
		t.Fatalf("failed create must release the previous state")
	}
	c.SetPrompt("abc")
	if _, err := c.Generate(context.Background(), 4, GenerateParams{}); !errors.Is(err, ErrUnconfigured) {
		t.Fatalf("expected ErrUnconfigured after failed create, got %v", err)
	}
}

func TestCreateParams(t *testing.T) {
	c, _, _ := newTestContext(t, toymodel.Options{}, ContextParams{})
	want := llm.DecoderParams{
		NCtx: 2048, NBatch: 512, NUBatch: 512,
		Threads: int32(DefaultThreads()), ThreadsBatch: int32(DefaultThreads()),
	}
	if diff := cmp.Diff(want, c.Params()); diff != "" {
		t.Fatalf("defaults (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"top-k", "top-p", "temperature", "dist"}, c.StageNames()); diff != "" {
		t.Fatalf("default pipeline:\n%s", diff)
	}

	m := toymodel.New("m", "abc", toymodel.Options{})
	if err := c.Create(m, ContextParams{NBatch: Ptr(64), Threads: Ptr(0), ThreadsBatch: Ptr(3)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	p := c.Params()
	if p.NBatch != 64 || p.NUBatch != 64 || p.Threads != 1 || p.ThreadsBatch != 3 {
		t.Fatalf("overrides not applied: %+v", p)
	}
	if err := c.Create(m, ContextParams{NCtx: Ptr(-1)}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestCloseReturnsToUnconfigured(t *testing.T) {
	c, _, pub := newTestContext(t, toymodel.Options{}, ContextParams{})
	c.SetPrompt(testPrompt)
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := c.Generate(context.Background(), 4, greedy()); !errors.Is(err, ErrUnconfigured) {
		t.Fatalf("expected ErrUnconfigured, got %v", err)
	}
	if len(pub.Events()) != 0 {
		t.Fatalf("unexpected events %v", pub.Events())
	}
}

func TestResetClearsCacheAndCounters(t *testing.T) {
	c, _, _ := newTestContext(t, toymodel.Options{}, ContextParams{NCtx: Ptr(40)})
	c.SetPrompt(testPrompt)
	if _, err := c.Generate(context.Background(), 20, greedy()); err != nil {
		t.Fatalf("first: %v", err)
	}
	// 9 prompt tokens plus up to 18 generated fill most of a 40-token window.
	if _, err := c.Generate(context.Background(), 20, greedy()); !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("expected the window to overflow, got %v", err)
	}
	if err := c.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	st, ok := c.Stats()
	if !ok || st.EvalTokens != 0 || st.PromptEvalTokens != 0 {
		t.Fatalf("counters not reset: %+v", st)
	}
	got, err := c.Generate(context.Background(), 20, greedy())
	if err != nil || got != testAnswer {
		t.Fatalf("after reset got %q, %v", got, err)
	}
	if err := c.ClearKVCache(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := c.Generate(context.Background(), 20, greedy()); err != nil {
		t.Fatalf("after clear: %v", err)
	}
}

func TestStats(t *testing.T) {
	c, _, _ := newTestContext(t, toymodel.Options{}, ContextParams{})
	c.SetPrompt(testPrompt)
	got, err := c.Generate(context.Background(), 5, greedy())
	if err != nil || got != " Hell" {
		t.Fatalf("got %q, %v", got, err)
	}
	st, ok := c.Stats()
	if !ok {
		t.Fatalf("stats unavailable")
	}
	if st.PromptEvalTokens != len(testPrompt)+1 || st.EvalTokens != 5 || st.ContextSize != 2048 {
		t.Fatalf("stats = %+v", st)
	}
	if st.StartMs <= 0 {
		t.Fatalf("start time not reported")
	}
	res := c.LastResult()
	if res.Reason != FinishLength || res.PromptTokens != 9 || res.CompletionTokens != 5 || res.Text != " Hell" {
		t.Fatalf("last result = %+v", res)
	}
}

func TestNotReadyAfterModelUnload(t *testing.T) {
	c, m, pub := newTestContext(t, toymodel.Options{}, ContextParams{})
	c.SetPrompt(testPrompt)
	m.Unload()
	if _, err := c.Generate(context.Background(), 4, greedy()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if diff := cmp.Diff([]EventKind{EventGenerationError}, pub.Kinds()); diff != "" {
		t.Fatalf("events:\n%s", diff)
	}
	if _, ok := c.Stats(); ok {
		t.Fatalf("stats should be empty when not ready")
	}
	if err := c.SaveStateFile(t.TempDir() + "/s"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}
