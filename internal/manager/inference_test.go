package manager

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"llamactx/internal/inference"
	"llamactx/internal/toymodel"
)

func TestInferStreamsTokensAndFinalLine(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	var buf bytes.Buffer
	flushes := 0
	if err := m.Infer(testCtx(t), greedyRequest(testPrompt), &buf, func() { flushes++ }); err != nil {
		t.Fatalf("infer: %v", err)
	}
	got := parseLines(t, buf.Bytes())
	if got.final == nil {
		t.Fatalf("no final line in %q", buf.String())
	}
	var joined strings.Builder
	for _, tl := range got.tokens {
		joined.WriteString(tl.Token)
	}
	if joined.String() != testAnswer || got.final.Content != testAnswer {
		t.Fatalf("tokens %q final %q", joined.String(), got.final.Content)
	}
	if got.final.FinishReason != "eog" || got.final.Usage.CompletionTokens != len(testAnswer) || got.final.Usage.PromptTokens == 0 {
		t.Fatalf("final = %+v", got.final)
	}
	if got.final.Session == "" || flushes != len(got.tokens)+1 {
		t.Fatalf("session %q flushes %d", got.final.Session, flushes)
	}
}

func TestInferWithoutStreamWritesOnlyFinal(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	req := greedyRequest(testPrompt)
	req.Stream = false
	req.Stop = []string{"world"}
	var buf bytes.Buffer
	if err := m.Infer(testCtx(t), req, &buf, nil); err != nil {
		t.Fatalf("infer: %v", err)
	}
	got := parseLines(t, buf.Bytes())
	if len(got.tokens) != 0 || got.final == nil {
		t.Fatalf("lines = %+v", got)
	}
	if got.final.Content != " Hello " || got.final.FinishReason != "stop" {
		t.Fatalf("final = %+v", got.final)
	}
}

func TestInferUsesConfiguredDefaults(t *testing.T) {
	m := newTestManager(t, ManagerConfig{Generation: inference.GenerateParams{MaxTokens: inference.Ptr(3)}})
	var buf bytes.Buffer
	if err := m.Infer(testCtx(t), greedyRequest(testPrompt), &buf, nil); err != nil {
		t.Fatalf("infer: %v", err)
	}
	got := parseLines(t, buf.Bytes())
	if got.final.Content != " He" || got.final.FinishReason != "length" {
		t.Fatalf("final = %+v", got.final)
	}
}

func TestInferEmptyPromptFailsBeforeStreaming(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	var buf bytes.Buffer
	err := m.Infer(testCtx(t), greedyRequest(""), &buf, nil)
	if !errors.Is(err, inference.ErrEmptyPrompt) || IsStreamed(err) {
		t.Fatalf("expected plain ErrEmptyPrompt, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("nothing should be written, got %q", buf.String())
	}
}

func TestInferDecodeFailureMidStream(t *testing.T) {
	m := newTestManager(t, ManagerConfig{Open: toyOpen(toymodel.Options{FailDecodeAt: 3})})
	var buf bytes.Buffer
	err := m.Infer(testCtx(t), greedyRequest(testPrompt), &buf, nil)
	if !errors.Is(err, inference.ErrDecodeFailed) || !IsStreamed(err) {
		t.Fatalf("expected streamed decode failure, got %v", err)
	}
	got := parseLines(t, buf.Bytes())
	if len(got.tokens) != 2 || got.errln == nil || got.final != nil {
		t.Fatalf("lines = %+v", got)
	}
	if got.errln.Kind != string(inference.CodeDecodeFailed) || got.errln.Content != " H" {
		t.Fatalf("error line = %+v", got.errln)
	}
}

func TestInferWriteErrorCancels(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	w := &errWriter{}
	err := m.Infer(testCtx(t), greedyRequest(testPrompt), w, nil)
	if err == nil {
		t.Fatalf("expected write error")
	}
	// The session is free again.
	var buf bytes.Buffer
	if err := m.Infer(testCtx(t), greedyRequest(testPrompt), &buf, nil); err != nil {
		t.Fatalf("second infer: %v", err)
	}
}

func TestInferUnknownModelAndSession(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	req := greedyRequest(testPrompt)
	req.Model = "missing"
	if err := m.Infer(testCtx(t), req, &bytes.Buffer{}, nil); !IsModelNotFound(err) {
		t.Fatalf("expected model not found, got %v", err)
	}
	req = greedyRequest(testPrompt)
	req.Session = "nope"
	if err := m.Infer(testCtx(t), req, &bytes.Buffer{}, nil); !IsSessionNotFound(err) {
		t.Fatalf("expected session not found, got %v", err)
	}
	noDefault := newTestManager(t, ManagerConfig{Registry: m.ListModels()})
	if err := noDefault.Infer(testCtx(t), greedyRequest(testPrompt), &bytes.Buffer{}, nil); !IsModelNotFound(err) {
		t.Fatalf("expected model not found without default, got %v", err)
	}
}
